package scenario

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/logger"
	"github.com/user/blechat-peripheral/peripheral"
	"github.com/user/blechat-peripheral/wire"
	"github.com/user/blechat-peripheral/wire/att"
)

// Target is the peripheral a scenario runs against.
type Target struct {
	Link    *wire.Peripheral
	Server  *peripheral.Server
	Chat    *peripheral.ChatService
	Battery *peripheral.BatteryService
}

// EventLogEntry records something that happened during the run.
type EventLogEntry struct {
	TimeMs    int
	Central   string
	EventType string
	Message   string
}

// AssertionResult is the outcome of one assertion or step expectation.
type AssertionResult struct {
	What    string
	Passed  bool
	Message string
}

// Result is the outcome of a run.
type Result struct {
	Log     []EventLogEntry
	Results []AssertionResult
}

// Failed returns the results that did not pass.
func (r *Result) Failed() []AssertionResult {
	var out []AssertionResult
	for _, a := range r.Results {
		if !a.Passed {
			out = append(out, a)
		}
	}
	return out
}

type received struct {
	char  uuid.UUID
	value string
}

// Runner executes a scenario.
type Runner struct {
	scenario *Scenario
	target   Target
	settle   time.Duration

	startTime time.Time
	centrals  map[string]*wire.Central
	watchers  sync.WaitGroup

	mu       sync.Mutex
	log      []EventLogEntry
	results  []AssertionResult
	received map[string][]received
}

// NewRunner prepares a run. settle is how long to wait after the last step
// before checking assertions.
func NewRunner(s *Scenario, t Target, settle time.Duration) *Runner {
	return &Runner{
		scenario: s,
		target:   t,
		settle:   settle,
		centrals: make(map[string]*wire.Central),
		received: make(map[string][]received),
	}
}

// Run executes the timeline in real time, then checks assertions. The error
// is only for scenarios that cannot run; failed expectations are in Result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if problems := r.scenario.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("scenario validation failed: %s", strings.Join(problems, "; "))
	}

	r.startTime = time.Now()
	for _, step := range r.scenario.Timeline {
		at := r.startTime.Add(time.Duration(step.TimeMs) * time.Millisecond)
		select {
		case <-ctx.Done():
			r.teardown()
			return nil, ctx.Err()
		case <-time.After(time.Until(at)):
		}
		r.execute(ctx, step)
	}

	select {
	case <-ctx.Done():
	case <-time.After(r.settle):
	}
	r.checkAssertions()
	r.teardown()

	r.mu.Lock()
	defer r.mu.Unlock()
	return &Result{Log: r.log, Results: r.results}, nil
}

func (r *Runner) elapsedMs() int {
	return int(time.Since(r.startTime) / time.Millisecond)
}

func (r *Runner) logEvent(central, eventType, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.log = append(r.log, EventLogEntry{TimeMs: r.elapsedMs(), Central: central, EventType: eventType, Message: msg})
	r.mu.Unlock()
	logger.Debug("scenario", "[%s] %s: %s", central, eventType, msg)
}

func (r *Runner) record(what string, passed bool, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, AssertionResult{What: what, Passed: passed, Message: fmt.Sprintf(format, args...)})
}

func (r *Runner) execute(ctx context.Context, step Step) {
	name := step.Central
	c := r.centrals[name]
	char, _ := ResolveChar(step.Char)
	what := fmt.Sprintf("%dms %s %s", step.TimeMs, step.Action, name)

	if c == nil && centralActions[step.Action] && step.Action != ActionConnect {
		r.record(what, false, "%s is not connected", name)
		return
	}

	var err error
	switch step.Action {
	case ActionStartAdvertising:
		err = r.target.Link.StartAdvertising()
	case ActionStopAdvertising:
		r.target.Link.StopAdvertising()

	case ActionConnect:
		c, err = r.target.Link.Connect(peripheral.CentralID(name))
		if err == nil {
			r.centrals[name] = c
			r.watchers.Add(1)
			go r.watch(name, c)
		}
	case ActionDisconnect:
		err = c.Disconnect()
		delete(r.centrals, name)
	case ActionExchangeMTU:
		mtu, _ := strconv.Atoi(step.Value)
		var got int
		got, err = c.ExchangeMTU(ctx, mtu)
		if err == nil {
			r.logEvent(name, "mtu", "%d", got)
		}
	case ActionSubscribe:
		err = c.Subscribe(ctx, char)
	case ActionUnsubscribe:
		err = c.Unsubscribe(ctx, char)

	case ActionRead:
		var value []byte
		value, err = c.Read(ctx, char)
		if err == nil {
			got := formatValue(char, value)
			r.logEvent(name, "read", "%s = %q", step.Char, got)
			if step.Expect != "" {
				r.record(what, got == step.Expect, "read %q, expected %q", got, step.Expect)
			}
			return
		}

	case ActionWrite, ActionWriteCommand:
		var value []byte
		value, err = encodeValue(char, step.Value)
		if err != nil {
			break
		}
		if step.Action == ActionWrite {
			err = c.Write(ctx, char, value)
		} else {
			err = c.WriteCommand(char, value)
		}
	}

	if step.Expect != "" && strings.HasPrefix(step.Expect, "error:") {
		got := "ok"
		if err != nil {
			got = fmt.Sprintf("error:0x%02X", att.Code(err))
		}
		r.record(what, strings.EqualFold(got, step.Expect), "got %s, expected %s", got, step.Expect)
		return
	}
	if err != nil {
		r.logEvent(name, "error", "%s: %v", step.Action, err)
		r.record(what, false, "%v", err)
		return
	}
	r.logEvent(name, step.Action, "%s %s", step.Char, step.Value)
}

func (r *Runner) watch(name string, c *wire.Central) {
	defer r.watchers.Done()
	for n := range c.Notifications() {
		v := formatValue(n.Char, n.Value)
		r.mu.Lock()
		r.received[name] = append(r.received[name], received{char: n.Char, value: v})
		r.mu.Unlock()
		r.logEvent(name, "notification", "%s = %q", n.Char, v)
	}
}

func (r *Runner) gotNotification(central string, char uuid.UUID, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.received[central] {
		if n.char == char && n.value == value {
			return true
		}
	}
	return false
}

func (r *Runner) checkAssertions() {
	for _, a := range r.scenario.Assertions {
		what := a.Type
		if a.Central != "" {
			what += " " + a.Central
		}
		switch a.Type {
		case AssertReceived, AssertNotReceived:
			char, _ := ResolveChar(a.Char)
			got := r.gotNotification(a.Central, char, a.Value)
			want := a.Type == AssertReceived
			r.record(what, got == want, "%s %q on %s: received=%v", a.Central, a.Value, a.Char, got)
		case AssertChatMessage:
			got := r.target.Chat.Message()
			r.record(what, got == a.Value, "chat is %q, expected %q", got, a.Value)
		case AssertBatteryRunning:
			got := strconv.FormatBool(r.target.Battery.Running())
			r.record(what, got == a.Value, "battery running=%s, expected %s", got, a.Value)
		case AssertConnected:
			got := strconv.Itoa(len(r.target.Server.ConnectedCentrals()))
			r.record(what, got == a.Value, "%s central(s) connected, expected %s", got, a.Value)
		}
	}
}

func (r *Runner) teardown() {
	for name, c := range r.centrals {
		c.Disconnect()
		delete(r.centrals, name)
	}
	r.watchers.Wait()
}
