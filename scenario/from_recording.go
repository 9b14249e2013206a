package scenario

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/peripheral"
)

// FromRecording rebuilds a scenario from a recorded event stream so a
// session can be re-run. Recordings do not name the central behind a
// subscription or a chat write; those steps go to the most recently
// connected central that is still connected. Subscriptions dropped by a
// disconnect are implied by the disconnect step and are skipped.
func FromRecording(name string, recorded []events.Event) *Scenario {
	s := &Scenario{
		Name:        name,
		Description: "Auto-generated from an event recording",
	}
	if len(recorded) == 0 {
		return s
	}

	start := recorded[0].Time
	known := make(map[string]bool)
	var connected []string
	lastChat := ""
	sawChat := false
	purging := false

	for _, e := range recorded {
		at := int(e.Time.Sub(start).Milliseconds())
		if at < 0 {
			at = 0
		}
		current := ""
		if len(connected) > 0 {
			current = connected[len(connected)-1]
		}

		switch e.Kind {
		case events.KindConnectionState:
			state, id, _ := strings.Cut(e.Payload, " ")
			switch state {
			case "connected":
				purging = false
				if !known[id] {
					known[id] = true
					s.Centrals = append(s.Centrals, id)
				}
				connected = append(connected, id)
				s.Timeline = append(s.Timeline, Step{TimeMs: at, Action: ActionConnect, Central: id})
				s.Timeline = append(s.Timeline, Step{TimeMs: at, Action: ActionExchangeMTU, Central: id, Value: "517"})
			case "disconnected":
				connected = remove(connected, id)
				purging = true
				if known[id] {
					s.Timeline = append(s.Timeline, Step{TimeMs: at, Action: ActionDisconnect, Central: id})
				}
			}

		case events.KindSubscriptionState:
			fields := strings.Fields(e.Payload)
			if current == "" || len(fields) != 3 || (purging && fields[1] == "disabled") {
				continue
			}
			action := ActionSubscribe
			if fields[1] == "disabled" {
				action = ActionUnsubscribe
			}
			s.Timeline = append(s.Timeline, Step{TimeMs: at, Action: action, Central: current, Char: charName(fields[2])})

		case events.KindChatMessage:
			lastChat, sawChat = e.Payload, true
			purging = false
			if current == "" {
				continue
			}
			s.Timeline = append(s.Timeline, Step{TimeMs: at, Action: ActionWrite, Central: current, Char: "chat", Value: e.Payload})
		}
	}

	if sawChat {
		s.Assertions = append(s.Assertions, Assertion{Type: AssertChatMessage, Value: lastChat})
	}
	s.Assertions = append(s.Assertions, Assertion{Type: AssertConnected, Value: strconv.Itoa(len(connected))})
	return s
}

func charName(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	switch u {
	case peripheral.ChatCharacteristicUUID:
		return "chat"
	case peripheral.BatteryLevelUUID:
		return "battery"
	}
	return id
}

func remove(list []string, id string) []string {
	out := list[:0]
	for _, x := range list {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
