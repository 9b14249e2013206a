// Package scenario scripts simulated centrals against a running peripheral:
// a JSON timeline of connects, subscriptions, reads and writes followed by
// assertions on what the centrals saw.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/peripheral"
)

// Scenario is one scripted session.
type Scenario struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Centrals    []string    `json:"centrals"`
	Timeline    []Step      `json:"timeline"`
	Assertions  []Assertion `json:"assertions,omitempty"`
}

// Step is an action at a point in time. Expect, when set on read or write
// steps, is checked against the outcome: the value read, or "error:0xNN"
// for a rejected request.
type Step struct {
	TimeMs  int    `json:"time_ms"`
	Action  string `json:"action"`
	Central string `json:"central,omitempty"`
	Char    string `json:"char,omitempty"`
	Value   string `json:"value,omitempty"`
	Expect  string `json:"expect,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Action types
const (
	ActionConnect          = "connect"
	ActionDisconnect       = "disconnect"
	ActionExchangeMTU      = "exchange_mtu"
	ActionSubscribe        = "subscribe"
	ActionUnsubscribe      = "unsubscribe"
	ActionRead             = "read"
	ActionWrite            = "write"
	ActionWriteCommand     = "write_command"
	ActionStartAdvertising = "start_advertising"
	ActionStopAdvertising  = "stop_advertising"
)

var centralActions = map[string]bool{
	ActionConnect:      true,
	ActionDisconnect:   true,
	ActionExchangeMTU:  true,
	ActionSubscribe:    true,
	ActionUnsubscribe:  true,
	ActionRead:         true,
	ActionWrite:        true,
	ActionWriteCommand: true,
}

var charActions = map[string]bool{
	ActionSubscribe:    true,
	ActionUnsubscribe:  true,
	ActionRead:         true,
	ActionWrite:        true,
	ActionWriteCommand: true,
}

// Assertion is an expected outcome checked after the timeline.
type Assertion struct {
	Type    string `json:"type"`
	Central string `json:"central,omitempty"`
	Char    string `json:"char,omitempty"`
	Value   string `json:"value,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Assertion types
const (
	AssertReceived       = "received"        // Central got a notification on Char with Value
	AssertNotReceived    = "not_received"    // it did not
	AssertChatMessage    = "chat_message"    // current chat value is Value
	AssertBatteryRunning = "battery_running" // countdown running is Value ("true"/"false")
	AssertConnected      = "connected"       // Value centrals connected
)

// LoadScenario loads a scenario from a JSON file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the scenario as indented JSON.
func (s *Scenario) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Duration returns the time of the last step.
func (s *Scenario) Duration() time.Duration {
	maxTime := 0
	for _, step := range s.Timeline {
		if step.TimeMs > maxTime {
			maxTime = step.TimeMs
		}
	}
	return time.Duration(maxTime) * time.Millisecond
}

// Validate returns every problem found; an empty result means the scenario
// can run.
func (s *Scenario) Validate() []string {
	var problems []string
	known := make(map[string]bool)
	for _, c := range s.Centrals {
		if known[c] {
			problems = append(problems, "Duplicate central: "+c)
		}
		known[c] = true
	}

	for i, step := range s.Timeline {
		where := fmt.Sprintf("Step %d (%s)", i+1, step.Action)
		switch {
		case centralActions[step.Action]:
			if !known[step.Central] {
				problems = append(problems, where+" references unknown central: "+step.Central)
			}
		case step.Action == ActionStartAdvertising, step.Action == ActionStopAdvertising:
		default:
			problems = append(problems, where+": unknown action")
		}
		if charActions[step.Action] {
			if _, err := ResolveChar(step.Char); err != nil {
				problems = append(problems, where+": "+err.Error())
			}
		}
		if step.Action == ActionExchangeMTU {
			if _, err := strconv.Atoi(step.Value); err != nil {
				problems = append(problems, where+": MTU must be a number")
			}
		}
		if i > 0 && step.TimeMs < s.Timeline[i-1].TimeMs {
			problems = append(problems, where+" goes back in time")
		}
	}

	for i, a := range s.Assertions {
		where := fmt.Sprintf("Assertion %d (%s)", i+1, a.Type)
		switch a.Type {
		case AssertReceived, AssertNotReceived:
			if !known[a.Central] {
				problems = append(problems, where+" references unknown central: "+a.Central)
			}
			if _, err := ResolveChar(a.Char); err != nil {
				problems = append(problems, where+": "+err.Error())
			}
		case AssertChatMessage, AssertBatteryRunning, AssertConnected:
		default:
			problems = append(problems, where+": unknown assertion type")
		}
	}
	return problems
}

// ResolveChar maps "chat", "battery" or a UUID string to a characteristic.
func ResolveChar(name string) (uuid.UUID, error) {
	switch name {
	case "chat":
		return peripheral.ChatCharacteristicUUID, nil
	case "battery":
		return peripheral.BatteryLevelUUID, nil
	}
	u, err := uuid.Parse(name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("unknown characteristic %q", name)
	}
	return u, nil
}

// encodeValue turns a step value into bytes: battery levels are decimal,
// everything else is text.
func encodeValue(char uuid.UUID, value string) ([]byte, error) {
	if char == peripheral.BatteryLevelUUID {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("battery value %q: %w", value, err)
		}
		return peripheral.EncodeUint8(n), nil
	}
	return []byte(value), nil
}

// formatValue is the inverse of encodeValue.
func formatValue(char uuid.UUID, value []byte) string {
	if char == peripheral.BatteryLevelUUID && len(value) == 1 {
		return strconv.Itoa(peripheral.DecodeUint8(value))
	}
	return string(value)
}
