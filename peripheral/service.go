package peripheral

import (
	"sync"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
)

// ReadResponse answers a characteristic read.
type ReadResponse struct {
	Status Status
	Value  []byte
}

// Transport is what the core asks of the radio side.
// NotifyCharacteristicChanged pushes value to every central subscribed to
// char except those listed in exclude. It must not block.
type Transport interface {
	NotifyCharacteristicChanged(char uuid.UUID, value []byte, exclude ...CentralID) error
}

// Handler is the callback contract the transport drives. Server implements
// it by routing to the owning Service.
type Handler interface {
	OnCentralConnected(central CentralID)
	OnCentralDisconnected(central CentralID)
	OnCharacteristicRead(central CentralID, char uuid.UUID) ReadResponse
	OnCharacteristicWrite(central CentralID, char uuid.UUID, value []byte) Status
	OnCharacteristicWriteCompleted(central CentralID, char uuid.UUID, value []byte)
	OnNotifyingEnabled(central CentralID, char uuid.UUID)
	OnNotifyingDisabled(central CentralID, char uuid.UUID)
}

// Service is implemented by every GATT service variant. Callbacks of one
// service are serialized; different services run concurrently.
type Service interface {
	Definition() ServiceDefinition
	Name() string

	OnCentralConnected(central CentralID)
	// OnCentralDisconnected is told how many centrals remain connected and
	// returns the characteristics the central was subscribed to.
	OnCentralDisconnected(central CentralID, remaining int) []uuid.UUID
	OnCharacteristicRead(central CentralID, char uuid.UUID) ReadResponse
	OnCharacteristicWrite(central CentralID, char uuid.UUID, value []byte) Status
	OnCharacteristicWriteCompleted(central CentralID, char uuid.UUID, value []byte)
	OnNotifyingEnabled(central CentralID, char uuid.UUID)
	OnNotifyingDisabled(central CentralID, char uuid.UUID)

	// Close stops background work owned by the service.
	Close()
}

// serviceCore is the plumbing shared by the service variants: the lock that
// forms the service's serialization domain, its store and its collaborators.
type serviceCore struct {
	mu        sync.Mutex
	def       ServiceDefinition
	store     *Store
	transport Transport
	events    events.Emitter
	prefix    string
}

func (c *serviceCore) init(def ServiceDefinition, t Transport, e events.Emitter) {
	if e == nil {
		e = events.Discard
	}
	c.def = def
	c.store = NewStore(def.Characteristics...)
	c.transport = t
	c.events = e
	c.prefix = def.Name
}

func (c *serviceCore) Definition() ServiceDefinition { return c.def }

func (c *serviceCore) Name() string { return c.def.Name }

// Store exposes the service's characteristic store, read-mostly for tests
// and diagnostics.
func (c *serviceCore) Store() *Store { return c.store }

func (c *serviceCore) OnCentralConnected(CentralID) {}

// readLocked serves a read from the store, honoring the read property.
func (c *serviceCore) readLocked(char uuid.UUID) ReadResponse {
	spec, ok := c.store.Spec(char)
	if !ok {
		return ReadResponse{Status: StatusAttributeNotFound}
	}
	if !spec.Properties.Has(PropRead) {
		return ReadResponse{Status: StatusReadNotPermitted}
	}
	return ReadResponse{Status: StatusSuccess, Value: c.store.Read(char)}
}

// notifyLocked hands the new value to the transport if anyone besides the
// excluded centrals is listening. Transport errors are logged, never returned.
func (c *serviceCore) notifyLocked(char uuid.UUID, value []byte, exclude ...CentralID) {
	subs := c.store.Subscribers(char)
	listening := 0
	for _, s := range subs {
		if !contains(exclude, s) {
			listening++
		}
	}
	if listening == 0 {
		logger.Trace(c.prefix, "no subscribers for %s, skipping notify", char)
		return
	}
	if c.transport == nil {
		return
	}
	if err := c.transport.NotifyCharacteristicChanged(char, value, exclude...); err != nil {
		logger.Warn(c.prefix, "notify %s failed: %v", char, err)
		return
	}
	logger.Trace(c.prefix, "notified %d subscriber(s) of %s (%d bytes)", listening, char, len(value))
}

func contains(list []CentralID, c CentralID) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
