package ui

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/blechat-peripheral/events"
)

func event(kind events.Kind, payload string, seq uint64) events.Event {
	return events.Event{Kind: kind, Payload: payload, Seq: seq, Time: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, h, 2)

	require.NoError(t, h.Observe(event(events.KindChatMessage, "hi", 1)))

	for _, conn := range []*websocket.Conn{a, b} {
		m := readMessage(t, conn)
		assert.Equal(t, events.KindChatMessage, m.Type)
		assert.Equal(t, "hi", m.Payload)
		assert.Equal(t, uint64(1), m.Seq)
	}
}

func TestHubReplaysLatestState(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	require.NoError(t, h.Observe(event(events.KindBatteryLevel, "99", 1)))
	require.NoError(t, h.Observe(event(events.KindAdvertiserState, "ON", 2)))
	require.NoError(t, h.Observe(event(events.KindBatteryLevel, "98", 3)))

	conn := dial(t, srv)
	first := readMessage(t, conn)
	second := readMessage(t, conn)

	// Replay follows the order of events.Kinds.
	assert.Equal(t, events.KindAdvertiserState, first.Type)
	assert.Equal(t, "ON", first.Payload)
	assert.Equal(t, events.KindBatteryLevel, second.Type)
	assert.Equal(t, "98", second.Payload)
}

func TestHubForgetsClosedClients(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
	assert.NoError(t, h.Observe(event(events.KindChatMessage, "nobody", 1)))
}

func TestConsolePlain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.Observe(event(events.KindBatteryLevel, "42", 1)))
	require.NoError(t, c.Observe(event(events.KindConnectedDevices, "a\nb", 2)))
	require.NoError(t, c.Observe(event(events.KindConnectedDevices, "", 3)))
	require.NoError(t, c.Observe(event(events.KindChatMessage, "hey", 4)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "03:04:05.000 battery-level      42%", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "a, b"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "(none)"), lines[2])
	assert.True(t, strings.HasSuffix(lines[3], `"hey"`), lines[3])
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestConsoleColored(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	require.NoError(t, c.Observe(event(events.KindChatMessage, "hey", 1)))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestConsoleThroughBridge(t *testing.T) {
	var buf bytes.Buffer
	b := events.NewBridge(8)
	b.Subscribe(NewConsole(&buf, false))

	b.Emit(events.KindAdvertiserState, "ON")
	b.Close()

	assert.Contains(t, buf.String(), "advertiser-state")
	assert.Contains(t, buf.String(), "ON")
}
