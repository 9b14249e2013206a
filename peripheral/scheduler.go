package peripheral

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/logger"
)

// TickFunc is called after every tick has stored its value. It runs with the
// owning service's lock held.
type TickFunc func(value int, encoded []byte)

// Scheduler periodically steps a one-byte numeric characteristic towards a
// terminal value, e.g. a battery level counting down to 0.
//
// The scheduler shares the owning service's lock. A tick only mutates the
// store while holding that lock and only if its generation is still current,
// so once Stop returns no further tick changes anything. A tick that already
// holds the lock when Stop is called finishes first and is the last one.
type Scheduler struct {
	lock   sync.Locker
	store  *Store
	char   uuid.UUID
	onTick TickFunc
	prefix string

	running  bool
	gen      uint64
	timer    *time.Timer
	interval time.Duration
	step     int
	terminal int
	ticks    int
}

// NewScheduler binds a scheduler to one characteristic of store. lock must
// be the lock that serializes every other access to that characteristic.
func NewScheduler(lock sync.Locker, store *Store, char uuid.UUID, onTick TickFunc) *Scheduler {
	return &Scheduler{
		lock:   lock,
		store:  store,
		char:   char,
		onTick: onTick,
		prefix: "scheduler",
	}
}

// Start begins ticking every interval, adding step to the stored value until
// it reaches terminal. It returns false and does nothing if the scheduler is
// already running, the value already sits at terminal or the arguments are
// unusable. A restart resumes from the stored value.
func (s *Scheduler) Start(interval time.Duration, step, terminal int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.startLocked(interval, step, terminal)
}

// Stop cancels any pending tick. It is idempotent.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopLocked()
}

// Running reports whether a tick is scheduled.
func (s *Scheduler) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.running
}

// Ticks reports how many ticks have changed the value since creation.
func (s *Scheduler) Ticks() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ticks
}

func (s *Scheduler) startLocked(interval time.Duration, step, terminal int) bool {
	if err := checkSchedule(interval, step); err != nil {
		logger.Error(s.prefix, "not starting %s: %v", s.char, err)
		return false
	}
	if s.running {
		return false
	}

	current := DecodeUint8(s.store.Read(s.char))
	if reached(current, step, terminal) {
		logger.Debug(s.prefix, "%s already at terminal %d, not starting", s.char, terminal)
		return false
	}

	s.interval = interval
	s.step = step
	s.terminal = terminal
	s.running = true
	s.gen++
	s.scheduleLocked(s.gen)
	logger.Info(s.prefix, "started %s at %d (step %d every %v, until %d)", s.char, current, step, interval, terminal)
	return true
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	logger.Info(s.prefix, "stopped %s at %d", s.char, DecodeUint8(s.store.Read(s.char)))
}

func (s *Scheduler) scheduleLocked(gen uint64) {
	s.timer = time.AfterFunc(s.interval, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.running || gen != s.gen {
		return
	}

	next := DecodeUint8(s.store.Read(s.char)) + s.step
	if s.step < 0 && next < s.terminal || s.step > 0 && next > s.terminal {
		next = s.terminal
	}

	encoded := EncodeUint8(next)
	if err := s.store.Write(s.char, encoded); err != nil {
		logger.Error(s.prefix, "tick rejected by store, stopping: %v", err)
		s.running = false
		s.timer = nil
		return
	}
	s.ticks++
	logger.Trace(s.prefix, "tick %d: %s = %d", s.ticks, s.char, next)

	if s.onTick != nil {
		s.onTick(next, encoded)
	}

	if next == s.terminal {
		s.running = false
		s.timer = nil
		logger.Info(s.prefix, "%s reached terminal value %d", s.char, next)
		return
	}
	s.scheduleLocked(gen)
}

func checkSchedule(interval time.Duration, step int) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidValue, interval)
	}
	if step == 0 {
		return fmt.Errorf("%w: step must not be 0", ErrInvalidValue)
	}
	return nil
}

func reached(current, step, terminal int) bool {
	if step < 0 {
		return current <= terminal
	}
	return current >= terminal
}
