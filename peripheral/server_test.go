package peripheral

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/blechat-peripheral/events"
)

func newTestServer(t *testing.T, tr Transport, em events.Emitter) (*Server, *ChatService, *BatteryService) {
	t.Helper()
	chat := NewChatService(tr, em, DefaultChatOptions())
	opts := DefaultBatteryOptions()
	opts.Interval = time.Hour
	battery, err := NewBatteryService(tr, em, opts)
	require.NoError(t, err)

	srv, err := NewServer(em, chat, battery)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, chat, battery
}

func TestServerDefinitions(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	defs := srv.ServiceDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, ChatServiceUUID, defs[0].ID)
	assert.Equal(t, BatteryServiceUUID, defs[1].ID)
}

func TestServerRejectsDuplicateService(t *testing.T) {
	a := NewChatService(nil, nil, DefaultChatOptions())
	b := NewChatService(nil, nil, DefaultChatOptions())

	_, err := NewServer(nil, a, b)
	assert.Error(t, err)
}

func TestServerRoutesByCharacteristic(t *testing.T) {
	srv, chat, battery := newTestServer(t, nil, nil)

	assert.Equal(t, StatusSuccess, srv.OnCharacteristicWrite("a", ChatCharacteristicUUID, []byte("yo")))
	assert.Equal(t, "yo", chat.Message())

	resp := srv.OnCharacteristicRead("a", BatteryLevelUUID)
	assert.Equal(t, []byte{100}, resp.Value)

	assert.Equal(t, StatusWriteNotPermitted, srv.OnCharacteristicWrite("a", BatteryLevelUUID, []byte{1}))

	unknown := uuid.New()
	assert.Equal(t, StatusAttributeNotFound, srv.OnCharacteristicWrite("a", unknown, nil))
	assert.Equal(t, StatusAttributeNotFound, srv.OnCharacteristicRead("a", unknown).Status)

	srv.OnNotifyingEnabled("a", BatteryLevelUUID)
	assert.True(t, battery.Running())
	srv.OnNotifyingDisabled("a", BatteryLevelUUID)
	assert.False(t, battery.Running())
}

func TestServerConnectionEvents(t *testing.T) {
	em := &recordingEmitter{}
	srv, _, _ := newTestServer(t, nil, em)

	srv.OnCentralConnected("bob")
	srv.OnCentralConnected("alice")
	srv.OnCentralConnected("alice")
	assert.Equal(t, []CentralID{"alice", "bob"}, srv.ConnectedCentrals())

	srv.OnCentralDisconnected("bob")
	srv.OnCentralDisconnected("nobody")
	assert.True(t, srv.AnyConnected())

	assert.Equal(t, []string{"connected bob", "connected alice", "disconnected bob"}, em.payloads(events.KindConnectionState))
	assert.Equal(t, []string{"bob", "alice\nbob", "alice"}, em.payloads(events.KindConnectedDevices))
}

func TestServerSubscriptionAndAdvertiserEvents(t *testing.T) {
	em := &recordingEmitter{}
	srv, _, _ := newTestServer(t, nil, em)

	srv.OnAdvertisingStarted()
	srv.OnNotifyingEnabled("a", ChatCharacteristicUUID)
	srv.OnNotifyingDisabled("a", ChatCharacteristicUUID)
	srv.OnNotifyingEnabled("a", uuid.New())
	srv.OnAdvertisingStopped()

	assert.Equal(t, []string{"ON", "OFF"}, em.payloads(events.KindAdvertiserState))
	assert.Equal(t, []string{
		"notifications enabled " + ChatCharacteristicUUID.String(),
		"notifications disabled " + ChatCharacteristicUUID.String(),
	}, em.payloads(events.KindSubscriptionState))
}

func TestServerDisconnectPurgesSubscriptions(t *testing.T) {
	srv, chat, battery := newTestServer(t, nil, nil)

	srv.OnCentralConnected("a")
	srv.OnNotifyingEnabled("a", ChatCharacteristicUUID)
	srv.OnNotifyingEnabled("a", BatteryLevelUUID)
	require.True(t, battery.Running())

	srv.OnCentralDisconnected("a")
	assert.False(t, chat.Store().HasSubscribers(ChatCharacteristicUUID))
	assert.False(t, battery.Running())
}

func TestServerDisconnectReportsDroppedSubscriptions(t *testing.T) {
	em := &recordingEmitter{}
	srv, _, _ := newTestServer(t, nil, em)

	srv.OnCentralConnected("a")
	srv.OnCentralConnected("b")
	srv.OnNotifyingEnabled("a", ChatCharacteristicUUID)
	srv.OnNotifyingEnabled("a", BatteryLevelUUID)
	srv.OnNotifyingEnabled("b", ChatCharacteristicUUID)

	srv.OnCentralDisconnected("a")
	srv.OnCentralDisconnected("a")

	assert.Equal(t, []string{
		"notifications enabled " + ChatCharacteristicUUID.String(),
		"notifications enabled " + BatteryLevelUUID.String(),
		"notifications enabled " + ChatCharacteristicUUID.String(),
		"notifications disabled " + ChatCharacteristicUUID.String(),
		"notifications disabled " + BatteryLevelUUID.String(),
	}, em.payloads(events.KindSubscriptionState))
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusSuccess},
		{ErrInvalidValue, StatusValueNotAllowed},
		{errInvalidLength, StatusInvalidAttributeValueLength},
		{ErrUnsupported, StatusWriteNotPermitted},
		{ErrUnknownCharacteristic, StatusAttributeNotFound},
		{assert.AnError, StatusRequestNotSupported},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "Value Not Allowed", StatusValueNotAllowed.String())
	assert.Equal(t, "Status(0x7F)", Status(0x7F).String())
}
