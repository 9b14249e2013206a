package peripheral

import (
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/user/blechat-peripheral/events"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) NotifyCharacteristicChanged(char uuid.UUID, value []byte, exclude ...CentralID) error {
	args := m.Called(char, value, exclude)
	return args.Error(0)
}

type notification struct {
	char    uuid.UUID
	value   []byte
	exclude []CentralID
}

// recordingTransport is safe to call from scheduler goroutines.
type recordingTransport struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (r *recordingTransport) NotifyCharacteristicChanged(char uuid.UUID, value []byte, exclude ...CentralID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{char, append([]byte(nil), value...), exclude})
	return r.err
}

func (r *recordingTransport) notifications() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.sent...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(kind events.Kind, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events.Event{Kind: kind, Payload: payload})
}

func (r *recordingEmitter) payloads(kind events.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Payload)
		}
	}
	return out
}
