package testreport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/blechat-peripheral/events"
)

func stream(pairs ...string) []events.Event {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var out []events.Event
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, events.Event{
			Kind:    events.Kind(pairs[i]),
			Payload: pairs[i+1],
			Seq:     uint64(i/2 + 1),
			Time:    start.Add(time.Duration(i/2) * time.Second),
		})
	}
	return out
}

func TestBuildCleanSession(t *testing.T) {
	r := Build(stream(
		"advertiser-state", "ON",
		"connection-state", "connected alice",
		"subscription-state", "notifications enabled 00002a19-0000-1000-8000-00805f9b34fb",
		"battery-level", "99",
		"battery-level", "98",
		"chat-message", "hi",
		"connection-state", "disconnected alice",
	))

	if len(r.Issues) != 0 {
		t.Fatalf("Expected no issues, got %+v", r.Issues)
	}
	if r.Events != 7 {
		t.Errorf("Expected 7 events, got %d", r.Events)
	}
	if len(r.Centrals) != 1 || r.Centrals[0] != "alice" {
		t.Errorf("Expected centrals [alice], got %v", r.Centrals)
	}
	if len(r.BatteryLevels) != 2 || r.BatteryLevels[1] != 98 {
		t.Errorf("Unexpected battery levels %v", r.BatteryLevels)
	}
	if r.End.Sub(r.Start) != 6*time.Second {
		t.Errorf("Expected 6s span, got %v", r.End.Sub(r.Start))
	}

	md := r.Markdown("test")
	for _, want := range []string{"# Session Report: test", "- alice", `"hi"`, "**Last:** 98%", "No Issues"} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q:\n%s", want, md)
		}
	}
	t.Logf("✅ Clean session report has no issues")
}

func TestBuildFindsIssues(t *testing.T) {
	evs := stream(
		"connection-state", "connected bob",
		"battery-level", "50",
		"battery-level", "49",
		"battery-level", "51",
		"connection-state", "disconnected bob",
		"chat-message", "ghost",
		"battery-level", "abc",
		"connection-state", "disconnected carol",
	)
	evs[len(evs)-1].Seq += 3

	r := Build(evs)
	var descs []string
	for _, i := range r.Issues {
		descs = append(descs, i.Severity+": "+i.Description)
	}
	joined := strings.Join(descs, "\n")

	for _, want := range []string{
		"WARNING: battery changed direction at 51%",
		`ERROR: chat message "ghost" while no central was connected`,
		`ERROR: battery level "abc" is not a percentage`,
		"WARNING: 3 event(s) missing",
		"WARNING: carol disconnected without a recorded connect",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Missing issue %q in:\n%s", want, joined)
		}
	}
	if len(r.Errors()) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(r.Errors()))
	}
}

func TestGenerateWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	recording := filepath.Join(dir, "events.jsonl")
	f, err := os.Create(recording)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := events.NewRecorder(f)
	for _, e := range stream("advertiser-state", "ON", "chat-message", "yo") {
		if err := rec.Observe(e); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	f.Close()

	path, err := Generate(recording, dir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), `"yo"`) {
		t.Errorf("Report does not contain the chat line:\n%s", data)
	}

	empty := filepath.Join(dir, "empty.jsonl")
	os.WriteFile(empty, nil, 0644)
	if _, err := Generate(empty, dir); err == nil {
		t.Errorf("Expected error for empty recording")
	}
}
