package logger

import (
	"bytes"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := GetLevel()
	SetOutput(buf)
	t.Cleanup(func() {
		SetOutput(nopWriter{})
		SetLevel(prev)
	})
	return buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"trace", TRACE},
		{"DEBUG", DEBUG},
		{"Info", INFO},
		{"warning", WARN},
		{"error", ERROR},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(WARN)

	Info("chat", "should not appear")
	Warn("chat", "dropped %d events", 3)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("info message logged at WARN level: %s", out)
	}
	if !strings.Contains(out, "dropped 3 events") {
		t.Errorf("warn message missing: %s", out)
	}
	if !strings.Contains(out, "prefix=chat") {
		t.Errorf("prefix field missing: %s", out)
	}
}

func TestSetLevelRoundTrip(t *testing.T) {
	captureOutput(t)
	for _, lvl := range []LogLevel{TRACE, DEBUG, INFO, WARN, ERROR} {
		SetLevel(lvl)
		if got := GetLevel(); got != lvl {
			t.Errorf("GetLevel() = %v after SetLevel(%v)", got, lvl)
		}
	}
}

func TestToJSONProtoMessage(t *testing.T) {
	msg, err := structpb.NewStruct(map[string]interface{}{"kind": "battery-level", "payload": "57"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	out := ToJSON(msg)
	if !strings.Contains(out, "battery-level") || !strings.Contains(out, "57") {
		t.Errorf("unexpected proto JSON: %s", out)
	}
}

func TestToJSONStruct(t *testing.T) {
	out := ToJSON(struct {
		Name string `json:"name"`
	}{Name: "gopher"})
	if !strings.Contains(out, `"name": "gopher"`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}
