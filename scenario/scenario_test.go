package scenario

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/peripheral"
	"github.com/user/blechat-peripheral/wire"
)

func newTarget(t *testing.T) Target {
	t.Helper()
	link := wire.NewPeripheral(wire.Options{})
	chat := peripheral.NewChatService(link, events.Discard, peripheral.DefaultChatOptions())
	opts := peripheral.DefaultBatteryOptions()
	opts.Interval = 5 * time.Millisecond
	battery, err := peripheral.NewBatteryService(link, events.Discard, opts)
	if err != nil {
		t.Fatalf("NewBatteryService: %v", err)
	}
	srv, err := peripheral.NewServer(events.Discard, chat, battery)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	link.Attach(srv)
	if err := link.StartAdvertising(); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}
	t.Cleanup(func() {
		link.Close()
		srv.Close()
	})
	return Target{Link: link, Server: srv, Chat: chat, Battery: battery}
}

func chatScenario() *Scenario {
	return &Scenario{
		Name:     "two centrals chat",
		Centrals: []string{"alice", "bob"},
		Timeline: []Step{
			{TimeMs: 0, Action: ActionConnect, Central: "alice"},
			{TimeMs: 0, Action: ActionConnect, Central: "bob"},
			{TimeMs: 0, Action: ActionExchangeMTU, Central: "alice", Value: "517"},
			{TimeMs: 0, Action: ActionRead, Central: "bob", Char: "chat", Expect: "hello"},
			{TimeMs: 5, Action: ActionSubscribe, Central: "bob", Char: "chat"},
			{TimeMs: 10, Action: ActionWrite, Central: "alice", Char: "chat", Value: "hi bob"},
			{TimeMs: 10, Action: ActionWrite, Central: "alice", Char: "battery", Value: "5", Expect: "error:0x03"},
			{TimeMs: 15, Action: ActionSubscribe, Central: "alice", Char: "battery"},
			{TimeMs: 40, Action: ActionDisconnect, Central: "bob"},
		},
		Assertions: []Assertion{
			{Type: AssertReceived, Central: "bob", Char: "chat", Value: "hi bob"},
			{Type: AssertNotReceived, Central: "alice", Char: "chat", Value: "hi bob"},
			{Type: AssertReceived, Central: "alice", Char: "battery", Value: "99"},
			{Type: AssertChatMessage, Value: "hi bob"},
			{Type: AssertBatteryRunning, Value: "true"},
			{Type: AssertConnected, Value: "1"},
		},
	}
}

func TestRunnerChatScenario(t *testing.T) {
	runner := NewRunner(chatScenario(), newTarget(t), 20*time.Millisecond)
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if failed := result.Failed(); len(failed) > 0 {
		for _, f := range failed {
			t.Errorf("❌ %s: %s", f.What, f.Message)
		}
	}
	// read expectation + write expectation + six assertions
	if len(result.Results) != 8 {
		t.Errorf("Expected 8 results, got %d", len(result.Results))
	}
	if len(result.Log) == 0 {
		t.Errorf("Expected a non-empty event log")
	}
	t.Logf("✅ %d checks passed", len(result.Results))
}

func TestRunnerReportsFailures(t *testing.T) {
	s := &Scenario{
		Name:     "wrong expectations",
		Centrals: []string{"alice"},
		Timeline: []Step{
			{TimeMs: 0, Action: ActionRead, Central: "alice", Char: "chat"},
			{TimeMs: 0, Action: ActionConnect, Central: "alice"},
			{TimeMs: 0, Action: ActionRead, Central: "alice", Char: "chat", Expect: "goodbye"},
		},
		Assertions: []Assertion{
			{Type: AssertChatMessage, Value: "nope"},
		},
	}
	result, err := NewRunner(s, newTarget(t), 0).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	failed := result.Failed()
	if len(failed) != 3 {
		t.Fatalf("Expected 3 failures, got %+v", failed)
	}
	if !strings.Contains(failed[0].Message, "not connected") {
		t.Errorf("Expected not-connected failure first, got %q", failed[0].Message)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		s    Scenario
		want string
	}{
		{"unknown central", Scenario{Timeline: []Step{{Action: ActionConnect, Central: "ghost"}}}, "unknown central"},
		{"unknown action", Scenario{Timeline: []Step{{Action: "dance"}}}, "unknown action"},
		{"bad char", Scenario{Centrals: []string{"a"}, Timeline: []Step{{Action: ActionRead, Central: "a", Char: "toaster"}}}, "unknown characteristic"},
		{"bad mtu", Scenario{Centrals: []string{"a"}, Timeline: []Step{{Action: ActionExchangeMTU, Central: "a", Value: "big"}}}, "MTU"},
		{"time travel", Scenario{Centrals: []string{"a"}, Timeline: []Step{
			{TimeMs: 10, Action: ActionConnect, Central: "a"},
			{TimeMs: 5, Action: ActionDisconnect, Central: "a"},
		}}, "back in time"},
		{"bad assertion", Scenario{Assertions: []Assertion{{Type: "vibes"}}}, "unknown assertion"},
		{"duplicate", Scenario{Centrals: []string{"a", "a"}}, "Duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := strings.Join(tt.s.Validate(), "\n")
			if !strings.Contains(problems, tt.want) {
				t.Errorf("Expected problem containing %q, got %q", tt.want, problems)
			}
		})
	}

	if problems := chatScenario().Validate(); len(problems) != 0 {
		t.Errorf("Expected chat scenario to be valid, got %v", problems)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	if err := chatScenario().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if loaded.Name != "two centrals chat" || len(loaded.Timeline) != 9 {
		t.Errorf("Loaded scenario differs: %+v", loaded)
	}
	if loaded.Duration() != 40*time.Millisecond {
		t.Errorf("Expected 40ms duration, got %v", loaded.Duration())
	}
}

func TestFromRecording(t *testing.T) {
	start := time.Unix(0, 0)
	ev := func(ms int, kind events.Kind, payload string) events.Event {
		return events.Event{Kind: kind, Payload: payload, Time: start.Add(time.Duration(ms) * time.Millisecond)}
	}
	recorded := []events.Event{
		ev(0, events.KindAdvertiserState, "ON"),
		ev(10, events.KindConnectionState, "connected alice"),
		ev(20, events.KindSubscriptionState, "notifications enabled "+peripheral.ChatCharacteristicUUID.String()),
		ev(30, events.KindChatMessage, "hey"),
		ev(40, events.KindConnectionState, "connected bob"),
		ev(50, events.KindChatMessage, "from bob"),
		ev(60, events.KindConnectionState, "disconnected bob"),
		ev(60, events.KindConnectedDevices, "alice"),
		ev(60, events.KindSubscriptionState, "notifications disabled "+peripheral.ChatCharacteristicUUID.String()),
	}

	s := FromRecording("replayed", recorded)
	if problems := s.Validate(); len(problems) != 0 {
		t.Fatalf("Generated scenario invalid: %v", problems)
	}
	if len(s.Centrals) != 2 {
		t.Errorf("Expected 2 centrals, got %v", s.Centrals)
	}

	var writes []Step
	for _, step := range s.Timeline {
		switch step.Action {
		case ActionWrite:
			writes = append(writes, step)
		case ActionUnsubscribe:
			t.Errorf("Disconnect purge became an unsubscribe step: %+v", step)
		}
	}
	if len(writes) != 2 || writes[0].Central != "alice" || writes[1].Central != "bob" || writes[1].TimeMs != 50 {
		t.Errorf("Unexpected writes %+v", writes)
	}
	if s.Assertions[0].Type != AssertChatMessage || s.Assertions[0].Value != "from bob" {
		t.Errorf("Unexpected chat assertion %+v", s.Assertions[0])
	}
	if s.Assertions[1].Value != "1" {
		t.Errorf("Expected 1 central connected at the end, got %s", s.Assertions[1].Value)
	}

	result, err := NewRunner(s, newTarget(t), 10*time.Millisecond).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if failed := result.Failed(); len(failed) > 0 {
		t.Errorf("Replayed scenario failed: %+v", failed)
	}
}
