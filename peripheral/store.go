package peripheral

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// CentralID is the opaque connection handle the transport hands us.
type CentralID string

// Store holds the current value and the subscriber set of each
// characteristic of one service. All methods are safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	specs       map[uuid.UUID]CharacteristicSpec
	values      map[uuid.UUID][]byte
	subscribers map[uuid.UUID]map[CentralID]struct{}
}

// NewStore creates a store for the given characteristics. Values start unset
// and read as the spec's Default.
func NewStore(specs ...CharacteristicSpec) *Store {
	s := &Store{
		specs:       make(map[uuid.UUID]CharacteristicSpec, len(specs)),
		values:      make(map[uuid.UUID][]byte, len(specs)),
		subscribers: make(map[uuid.UUID]map[CentralID]struct{}, len(specs)),
	}
	for _, spec := range specs {
		s.specs[spec.ID] = spec
		s.subscribers[spec.ID] = make(map[CentralID]struct{})
	}
	return s
}

// Read returns a copy of the current value, falling back to the default.
// Unknown characteristics read as nil.
func (s *Store) Read(char uuid.UUID) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[char]; ok {
		return append([]byte(nil), v...)
	}
	if spec, ok := s.specs[char]; ok {
		return append([]byte(nil), spec.Default...)
	}
	return nil
}

// Write replaces the current value after checking it against the format.
func (s *Store) Write(char uuid.UUID, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec, ok := s.specs[char]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownCharacteristic, char)
	}
	if spec.Format != nil {
		if err := spec.Format.Validate(value); err != nil {
			return err
		}
	}
	s.values[char] = append([]byte(nil), value...)
	return nil
}

// Subscribe adds central to the subscriber set. It reports whether the set
// went from empty to non-empty.
func (s *Store) Subscribe(char uuid.UUID, central CentralID) (first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subscribers[char]
	if !ok {
		return false
	}
	if _, already := subs[central]; already {
		return false
	}
	subs[central] = struct{}{}
	return len(subs) == 1
}

// Unsubscribe removes central from the subscriber set. It reports whether
// this call emptied the set; removing a non-member is a no-op.
func (s *Store) Unsubscribe(char uuid.UUID, central CentralID) (last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subscribers[char]
	if !ok {
		return false
	}
	if _, member := subs[central]; !member {
		return false
	}
	delete(subs, central)
	return len(subs) == 0
}

// UnsubscribeAll removes central everywhere and returns the characteristics
// it was subscribed to.
func (s *Store) UnsubscribeAll(central CentralID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []uuid.UUID
	for char, subs := range s.subscribers {
		if _, member := subs[central]; member {
			delete(subs, central)
			removed = append(removed, char)
		}
	}
	return removed
}

// HasSubscribers reports whether anyone is subscribed to char.
func (s *Store) HasSubscribers(char uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[char]) > 0
}

// IsSubscribed reports whether central is subscribed to char.
func (s *Store) IsSubscribed(char uuid.UUID, central CentralID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscribers[char][central]
	return ok
}

// Subscribers returns the subscriber set of char, sorted.
func (s *Store) Subscribers(char uuid.UUID) []CentralID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CentralID, 0, len(s.subscribers[char]))
	for c := range s.subscribers[char] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Spec returns the declared spec of char.
func (s *Store) Spec(char uuid.UUID) (CharacteristicSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[char]
	return spec, ok
}
