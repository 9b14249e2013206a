package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/user/blechat-peripheral/events"
)

// Console prints events as one colored line each, the terminal version of
// the app's status screen.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	colors map[events.Kind]*color.Color
	plain  *color.Color
}

// NewConsole writes to w. With colored false the output carries no escape
// codes regardless of the terminal.
func NewConsole(w io.Writer, colored bool) *Console {
	c := &Console{
		w: w,
		colors: map[events.Kind]*color.Color{
			events.KindAdvertiserState:   color.New(color.FgBlue),
			events.KindConnectionState:   color.New(color.FgCyan),
			events.KindSubscriptionState: color.New(color.FgMagenta),
			events.KindConnectedDevices:  color.New(color.FgWhite, color.Faint),
			events.KindBatteryLevel:      color.New(color.FgYellow),
			events.KindChatMessage:       color.New(color.FgGreen, color.Bold),
		},
		plain: color.New(color.Reset),
	}
	for _, col := range c.colors {
		if colored {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	c.plain.DisableColor()
	return c
}

// Observe implements events.Observer.
func (c *Console) Observe(e events.Event) error {
	col, ok := c.colors[e.Kind]
	if !ok {
		col = c.plain
	}
	line := fmt.Sprintf("%s %-18s %s", e.Time.Format("15:04:05.000"), e.Kind, render(e))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := col.Fprintln(c.w, line)
	return err
}

func render(e events.Event) string {
	switch e.Kind {
	case events.KindConnectedDevices:
		if e.Payload == "" {
			return "(none)"
		}
		return strings.ReplaceAll(e.Payload, "\n", ", ")
	case events.KindBatteryLevel:
		return e.Payload + "%"
	case events.KindChatMessage:
		return fmt.Sprintf("%q", e.Payload)
	}
	return e.Payload
}

var _ events.Observer = (*Console)(nil)
