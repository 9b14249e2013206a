package peripheral

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatStore() *Store {
	return NewStore(ChatServiceDefinition(DefaultChatOptions()).Characteristics...)
}

func TestStoreReadDefault(t *testing.T) {
	s := newChatStore()
	assert.Equal(t, []byte("hello"), s.Read(ChatCharacteristicUUID))
	assert.Nil(t, s.Read(uuid.New()))
}

func TestStoreReadReturnsCopy(t *testing.T) {
	s := newChatStore()
	require.NoError(t, s.Write(ChatCharacteristicUUID, []byte("abc")))

	v := s.Read(ChatCharacteristicUUID)
	v[0] = 'X'
	assert.Equal(t, []byte("abc"), s.Read(ChatCharacteristicUUID))
}

func TestStoreWriteRoundTrip(t *testing.T) {
	s := newChatStore()
	for _, msg := range []string{"", "hi", "héllo wörld", "日本語", "emoji 🎉"} {
		require.NoError(t, s.Write(ChatCharacteristicUUID, []byte(msg)), msg)
		assert.Equal(t, msg, string(s.Read(ChatCharacteristicUUID)))
	}
}

func TestStoreWriteRejectsInvalidValues(t *testing.T) {
	s := NewStore(
		ChatServiceDefinition(ChatOptions{InitialMessage: "hello", MaxLength: 4}).Characteristics[0],
		BatteryServiceDefinition(100).Characteristics[0],
	)

	tests := []struct {
		name   string
		char   uuid.UUID
		value  []byte
		status Status
	}{
		{"invalid utf8", ChatCharacteristicUUID, []byte{0xff, 0xfe}, StatusValueNotAllowed},
		{"too long", ChatCharacteristicUUID, []byte("hello"), StatusInvalidAttributeValueLength},
		{"uint8 too wide", BatteryLevelUUID, []byte{1, 2}, StatusInvalidAttributeValueLength},
		{"uint8 out of range", BatteryLevelUUID, []byte{101}, StatusValueNotAllowed},
		{"unknown", uuid.New(), []byte{1}, StatusAttributeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Read(tt.char)
			err := s.Write(tt.char, tt.value)
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusForError(err))
			assert.Equal(t, before, s.Read(tt.char))
		})
	}
}

func TestStoreSubscriptions(t *testing.T) {
	s := newChatStore()
	c := ChatCharacteristicUUID

	assert.True(t, s.Subscribe(c, "a"), "first subscriber")
	assert.False(t, s.Subscribe(c, "a"), "repeat subscribe")
	assert.False(t, s.Subscribe(c, "b"))
	assert.Equal(t, []CentralID{"a", "b"}, s.Subscribers(c))
	assert.True(t, s.IsSubscribed(c, "b"))

	assert.False(t, s.Unsubscribe(c, "zzz"), "non-member")
	assert.False(t, s.Unsubscribe(c, "a"))
	assert.True(t, s.Unsubscribe(c, "b"), "last subscriber")
	assert.False(t, s.HasSubscribers(c))

	assert.False(t, s.Subscribe(uuid.New(), "a"), "unknown characteristic")
}

func TestStoreUnsubscribeAll(t *testing.T) {
	s := NewStore(
		ChatServiceDefinition(DefaultChatOptions()).Characteristics[0],
		BatteryServiceDefinition(100).Characteristics[0],
	)
	s.Subscribe(ChatCharacteristicUUID, "a")
	s.Subscribe(BatteryLevelUUID, "a")
	s.Subscribe(BatteryLevelUUID, "b")

	removed := s.UnsubscribeAll("a")
	assert.ElementsMatch(t, []uuid.UUID{ChatCharacteristicUUID, BatteryLevelUUID}, removed)
	assert.False(t, s.HasSubscribers(ChatCharacteristicUUID))
	assert.Equal(t, []CentralID{"b"}, s.Subscribers(BatteryLevelUUID))
	assert.Empty(t, s.UnsubscribeAll("a"))
}

func TestUUID16(t *testing.T) {
	assert.Equal(t, "0000180f-0000-1000-8000-00805f9b34fb", BatteryServiceUUID.String())
	short, ok := Short(BatteryLevelUUID)
	require.True(t, ok)
	assert.Equal(t, uint16(0x2A19), short)

	_, ok = Short(ChatServiceUUID)
	assert.False(t, ok)
}
