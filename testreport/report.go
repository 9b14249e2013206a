// Package testreport turns a recorded event stream into a markdown session
// report with a list of anything that looks wrong.
package testreport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/blechat-peripheral/events"
)

// Issue is one problem found in a recording.
type Issue struct {
	Severity    string // "ERROR" or "WARNING"
	Seq         uint64
	Description string
}

// ChatLine is one accepted chat message.
type ChatLine struct {
	Time    time.Time
	Message string
}

// Report summarizes one recording.
type Report struct {
	Start, End    time.Time
	Events        int
	ByKind        map[events.Kind]int
	Centrals      []string // every central seen connecting, in order
	Chat          []ChatLine
	BatteryLevels []int
	Subscriptions []string
	Issues        []Issue
}

// Build analyzes events in recording order.
func Build(recorded []events.Event) *Report {
	r := &Report{ByKind: make(map[events.Kind]int)}
	seen := make(map[string]bool)
	connected := make(map[string]bool)
	var lastSeq uint64
	batteryDir := 0

	for _, e := range recorded {
		r.Events++
		r.ByKind[e.Kind]++
		if r.Start.IsZero() || e.Time.Before(r.Start) {
			r.Start = e.Time
		}
		if e.Time.After(r.End) {
			r.End = e.Time
		}
		if lastSeq != 0 && e.Seq > lastSeq+1 {
			r.warn(e.Seq, "%d event(s) missing between seq %d and %d (bridge queue overflow?)", e.Seq-lastSeq-1, lastSeq, e.Seq)
		}
		if e.Seq > lastSeq {
			lastSeq = e.Seq
		}

		switch e.Kind {
		case events.KindConnectionState:
			state, id, _ := strings.Cut(e.Payload, " ")
			switch state {
			case "connected":
				connected[id] = true
				if !seen[id] {
					seen[id] = true
					r.Centrals = append(r.Centrals, id)
				}
			case "disconnected":
				if !connected[id] {
					r.warn(e.Seq, "%s disconnected without a recorded connect", id)
				}
				delete(connected, id)
			}

		case events.KindChatMessage:
			r.Chat = append(r.Chat, ChatLine{Time: e.Time, Message: e.Payload})
			if len(connected) == 0 && len(seen) > 0 {
				r.errorf(e.Seq, "chat message %q while no central was connected", e.Payload)
			}

		case events.KindBatteryLevel:
			level, err := strconv.Atoi(e.Payload)
			if err != nil || level < 0 || level > 100 {
				r.errorf(e.Seq, "battery level %q is not a percentage", e.Payload)
				continue
			}
			if n := len(r.BatteryLevels); n > 0 {
				dir := sign(level - r.BatteryLevels[n-1])
				if dir != 0 && batteryDir != 0 && dir != batteryDir {
					r.warn(e.Seq, "battery changed direction at %d%%", level)
				}
				if dir != 0 {
					batteryDir = dir
				}
			}
			r.BatteryLevels = append(r.BatteryLevels, level)

		case events.KindSubscriptionState:
			r.Subscriptions = append(r.Subscriptions, e.Payload)
		}
	}
	return r
}

func (r *Report) warn(seq uint64, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Severity: "WARNING", Seq: seq, Description: fmt.Sprintf(format, args...)})
}

func (r *Report) errorf(seq uint64, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Severity: "ERROR", Seq: seq, Description: fmt.Sprintf(format, args...)})
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Errors returns only the ERROR issues.
func (r *Report) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == "ERROR" {
			out = append(out, i)
		}
	}
	return out
}

// Markdown renders the report.
func (r *Report) Markdown(title string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Session Report: %s\n\n", title))

	sb.WriteString("## Overview\n\n")
	sb.WriteString(fmt.Sprintf("- **Events:** %d\n", r.Events))
	if r.Events > 0 {
		sb.WriteString(fmt.Sprintf("- **Span:** %s to %s (%v)\n",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.End.Sub(r.Start).Round(time.Millisecond)))
	}
	kinds := make([]string, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", k, r.ByKind[events.Kind(k)]))
	}
	sb.WriteString("\n")

	sb.WriteString("## Centrals\n\n")
	if len(r.Centrals) == 0 {
		sb.WriteString("No central connected.\n\n")
	} else {
		for _, c := range r.Centrals {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Chat\n\n")
	if len(r.Chat) == 0 {
		sb.WriteString("No messages.\n\n")
	} else {
		for _, line := range r.Chat {
			sb.WriteString(fmt.Sprintf("- `%s` %q\n", line.Time.Format("15:04:05.000"), line.Message))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Battery\n\n")
	if n := len(r.BatteryLevels); n == 0 {
		sb.WriteString("No battery updates.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("- **Updates:** %d\n", n))
		sb.WriteString(fmt.Sprintf("- **First:** %d%%\n", r.BatteryLevels[0]))
		sb.WriteString(fmt.Sprintf("- **Last:** %d%%\n\n", r.BatteryLevels[n-1]))
	}

	if len(r.Subscriptions) > 0 {
		sb.WriteString("## Subscriptions\n\n")
		for _, s := range r.Subscriptions {
			sb.WriteString(fmt.Sprintf("- %s\n", s))
		}
		sb.WriteString("\n")
	}

	if len(r.Issues) == 0 {
		sb.WriteString("## ✅ No Issues\n")
		return sb.String()
	}
	sb.WriteString("## Issues\n\n")
	for i, issue := range r.Issues {
		sb.WriteString(fmt.Sprintf("%d. [%s] seq %d: %s\n", i+1, issue.Severity, issue.Seq, issue.Description))
	}
	return sb.String()
}

// Generate reads recordingPath and writes session_report_<timestamp>.md
// into outDir, returning the report path.
func Generate(recordingPath, outDir string) (string, error) {
	f, err := os.Open(recordingPath)
	if err != nil {
		return "", fmt.Errorf("error opening recording: %w", err)
	}
	defer f.Close()

	recorded, err := events.ReadRecording(f)
	if err != nil {
		return "", err
	}
	if len(recorded) == 0 {
		return "", fmt.Errorf("no events in %s", recordingPath)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	reportPath := filepath.Join(outDir, fmt.Sprintf("session_report_%s.md", timestamp))
	report := Build(recorded)
	if err := os.WriteFile(reportPath, []byte(report.Markdown(timestamp)), 0644); err != nil {
		return "", fmt.Errorf("error writing report: %w", err)
	}
	return reportPath, nil
}
