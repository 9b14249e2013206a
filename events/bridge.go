// Package events carries state changes from the peripheral core to whatever
// is watching it (a UI, a recorder, a test) without the core knowing who.
package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/blechat-peripheral/logger"
)

// Kind names an observer-visible event.
type Kind string

const (
	KindAdvertiserState   Kind = "advertiser-state"
	KindConnectionState   Kind = "connection-state"
	KindSubscriptionState Kind = "subscription-state"
	KindConnectedDevices  Kind = "connected-devices"
	KindBatteryLevel      Kind = "battery-level"
	KindChatMessage       Kind = "chat-message"
)

// Kinds lists every kind the peripheral emits.
var Kinds = []Kind{
	KindAdvertiserState,
	KindConnectionState,
	KindSubscriptionState,
	KindConnectedDevices,
	KindBatteryLevel,
	KindChatMessage,
}

// ErrDeliveryFailure wraps anything that kept an event from reaching an
// observer. It is only ever logged.
var ErrDeliveryFailure = errors.New("events: delivery failure")

// DefaultQueueSize is used when NewBridge is given a non-positive size.
const DefaultQueueSize = 256

// Event is a single named event with a string payload.
type Event struct {
	Kind    Kind
	Payload string
	Time    time.Time
	Seq     uint64
}

// Observer receives events. Returning an error does not affect the emitter.
type Observer interface {
	Observe(Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event) error

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) error { return f(e) }

// Emitter is the narrow side of the bridge handed to the core.
type Emitter interface {
	Emit(kind Kind, payload string)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Kind, string) {}

// Bridge fans events out to observers from a single dispatcher goroutine.
// Emit never blocks: when the queue is full the event is dropped and logged.
type Bridge struct {
	mu        sync.RWMutex
	observers []Observer
	closed    bool

	queue chan Event
	done  chan struct{}
	seq   uint64
	seqMu sync.Mutex
	now   func() time.Time

	dropped uint64
}

// NewBridge starts a bridge with the given queue size.
func NewBridge(queueSize int) *Bridge {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bridge{
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go b.dispatch()
	return b
}

// Subscribe registers an observer for all subsequent events.
func (b *Bridge) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Emit queues an event for delivery.
func (b *Bridge) Emit(kind Kind, payload string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		logger.Debug("events", "bridge closed, dropping %s", kind)
		return
	}

	// seqMu is held until the event is queued so queue order matches Seq.
	b.seqMu.Lock()
	b.seq++
	e := Event{Kind: kind, Payload: payload, Time: b.now(), Seq: b.seq}
	select {
	case b.queue <- e:
		b.seqMu.Unlock()
	default:
		b.dropped++
		b.seqMu.Unlock()
		logger.Warn("events", "%v: queue full, dropped %s %q", ErrDeliveryFailure, kind, payload)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (b *Bridge) Dropped() uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	return b.dropped
}

// Close stops accepting events and waits until queued ones are delivered.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.done
}

func (b *Bridge) dispatch() {
	defer close(b.done)
	for e := range b.queue {
		b.mu.RLock()
		observers := make([]Observer, len(b.observers))
		copy(observers, b.observers)
		b.mu.RUnlock()

		logger.TraceJSON("events", "dispatch", e.Proto())
		for _, o := range observers {
			if err := deliver(o, e); err != nil {
				logger.Warn("events", "%v", err)
			}
		}
	}
}

func deliver(o Observer, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: observer panicked on %s: %v", ErrDeliveryFailure, e.Kind, r)
		}
	}()
	if oerr := o.Observe(e); oerr != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailure, e.Kind, oerr)
	}
	return nil
}
