package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/user/blechat-peripheral/config"
	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/scenario"
	"github.com/user/blechat-peripheral/testreport"
	"github.com/user/blechat-peripheral/wire"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runLoadConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var cfg *config.Config
	var loadErr error
	app := newApp()
	app.Action = func(c *cli.Context) error {
		cfg, loadErr = loadConfig(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"blechat"}, args...)))
	return cfg, loadErr
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	cfg, err := runLoadConfig(t, "--name", "Desk", "--no-echo", "--battery-interval", "2s", "--quiet")
	require.NoError(t, err)
	assert.Equal(t, "Desk", cfg.DeviceName)
	assert.False(t, cfg.Chat.EchoToWriter)
	assert.Equal(t, 2*time.Second, cfg.Battery.Interval.Duration)
	assert.False(t, cfg.UI.Console)
	assert.Equal(t, "hello", cfg.Chat.InitialMessage)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"battery":{"initial_level":150}}`), 0644))

	_, err := runLoadConfig(t, "--config", path)
	assert.ErrorContains(t, err, "initial_level")
}

func TestDemoEndToEnd(t *testing.T) {
	t.Setenv("BLECHAT_DIR", t.TempDir())
	cfg := config.Default()
	cfg.Battery.Interval.Duration = 5 * time.Millisecond
	cfg.Events.RecordPath = "demo.jsonl"

	out := &lockedBuffer{}
	s, err := newStack(cfg, wire.PerfectSimulationConfig(), out)
	require.NoError(t, err)
	require.NoError(t, runDemo(context.Background(), s, out, 40*time.Millisecond))
	s.Close()

	text := out.String()
	assert.Contains(t, text, `Discovered "BleChatServer" advertising 2 service(s)`)
	assert.Contains(t, text, `[alice] 📖 chat reads "hello"`)
	assert.Contains(t, text, `[bob] 🔔 chat "hi bob"`)
	assert.Contains(t, text, `[alice] 🔔 chat "hi bob"`)
	assert.Contains(t, text, `[alice] 🔔 chat "hey alice 👋"`)
	assert.Contains(t, text, `[alice] 🔔 battery 99%`)
	assert.Contains(t, text, "code 0x03")
	assert.Contains(t, text, "chat-message")
	assert.Contains(t, text, "✅ Demo complete")
	assert.NotContains(t, text, "[bob] 🔔 battery")

	f, err := os.Open(cfg.RecordPath())
	require.NoError(t, err)
	defer f.Close()
	recorded, err := events.ReadRecording(f)
	require.NoError(t, err)

	var chats []string
	for _, e := range recorded {
		if e.Kind == events.KindChatMessage {
			chats = append(chats, e.Payload)
		}
	}
	assert.Equal(t, []string{"hi bob", "hey alice 👋"}, chats)
	assert.Equal(t, events.KindAdvertiserState, recorded[0].Kind)

	out2 := filepath.Join(t.TempDir(), "demo.json")
	require.NoError(t, writeScenario(cfg.RecordPath(), out2))
	sc, err := scenario.LoadScenario(out2)
	require.NoError(t, err)
	assert.Empty(t, sc.Validate())
	assert.Equal(t, []string{"alice", "bob"}, sc.Centrals)

	report, err := testreport.Generate(cfg.RecordPath(), t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, report)
}

func TestReplayFiltersKinds(t *testing.T) {
	var rec bytes.Buffer
	r := events.NewRecorder(&rec)
	start := time.Unix(1000, 0)
	require.NoError(t, r.Observe(events.Event{Kind: events.KindBatteryLevel, Payload: "99", Seq: 1, Time: start}))
	require.NoError(t, r.Observe(events.Event{Kind: events.KindChatMessage, Payload: "hi", Seq: 2, Time: start.Add(time.Millisecond)}))
	require.NoError(t, r.Observe(events.Event{Kind: events.KindBatteryLevel, Payload: "98", Seq: 3, Time: start.Add(2 * time.Millisecond)}))

	var got []string
	collect := events.ObserverFunc(func(e events.Event) error {
		got = append(got, e.Payload)
		return nil
	})
	require.NoError(t, replay(bytes.NewReader(rec.Bytes()), collect, []string{"battery-level"}, true))
	assert.Equal(t, []string{"99", "98"}, got)
}
