package peripheral

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/user/blechat-peripheral/events"
	"github.com/user/blechat-peripheral/logger"
)

// BatteryOptions tunes the simulated battery.
type BatteryOptions struct {
	InitialLevel int
	Interval     time.Duration
	Step         int
	Terminal     int
	// AutoStart begins draining at construction instead of on first subscribe.
	AutoStart bool
	// StopWhenIdle pauses the countdown when nobody is listening.
	StopWhenIdle bool
}

// DefaultBatteryOptions drains from 100 to 0 by one percent a second while
// someone is subscribed.
func DefaultBatteryOptions() BatteryOptions {
	return BatteryOptions{
		InitialLevel: 100,
		Interval:     time.Second,
		Step:         -1,
		Terminal:     0,
		StopWhenIdle: true,
	}
}

// Validate checks the options before a service is built from them.
func (o BatteryOptions) Validate() error {
	if o.InitialLevel < 0 || o.InitialLevel > 100 {
		return fmt.Errorf("%w: battery initial level %d outside 0..100", ErrInvalidValue, o.InitialLevel)
	}
	if o.Terminal < 0 || o.Terminal > 100 {
		return fmt.Errorf("%w: battery terminal level %d outside 0..100", ErrInvalidValue, o.Terminal)
	}
	return checkSchedule(o.Interval, o.Step)
}

// BatteryService is the standard Battery Service (0x180F) whose level is
// driven by a Scheduler instead of real hardware.
type BatteryService struct {
	serviceCore
	opts      BatteryOptions
	scheduler *Scheduler
}

// BatteryServiceDefinition describes the battery service starting at level.
func BatteryServiceDefinition(level int) ServiceDefinition {
	return ServiceDefinition{
		ID:   BatteryServiceUUID,
		Name: "battery",
		Characteristics: []CharacteristicSpec{{
			ID:          BatteryLevelUUID,
			Name:        "battery-level",
			Properties:  PropRead | PropNotify,
			Permissions: PermRead,
			Format:      Uint8Format{Min: 0, Max: 100},
			Default:     EncodeUint8(level),
		}},
	}
}

// NewBatteryService validates opts and creates the battery service. The
// countdown starts at once only with opts.AutoStart.
func NewBatteryService(t Transport, e events.Emitter, opts BatteryOptions) (*BatteryService, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &BatteryService{opts: opts}
	s.init(BatteryServiceDefinition(opts.InitialLevel), t, e)
	s.scheduler = NewScheduler(&s.mu, s.store, BatteryLevelUUID, s.onTick)

	if opts.AutoStart {
		s.scheduler.Start(opts.Interval, opts.Step, opts.Terminal)
	}
	return s, nil
}

// onTick runs under s.mu from the scheduler.
func (s *BatteryService) onTick(level int, encoded []byte) {
	s.notifyLocked(BatteryLevelUUID, encoded)
	s.events.Emit(events.KindBatteryLevel, strconv.Itoa(level))
}

// Level returns the current battery level.
func (s *BatteryService) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DecodeUint8(s.store.Read(BatteryLevelUUID))
}

// Running reports whether the countdown is active.
func (s *BatteryService) Running() bool {
	return s.scheduler.Running()
}

// Scheduler exposes the countdown, mostly for tests.
func (s *BatteryService) Scheduler() *Scheduler { return s.scheduler }

func (s *BatteryService) OnCentralDisconnected(central CentralID, remaining int) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.store.UnsubscribeAll(central)
	if !s.opts.StopWhenIdle {
		return removed
	}
	if remaining == 0 || !s.store.HasSubscribers(BatteryLevelUUID) {
		s.scheduler.stopLocked()
	}
	return removed
}

func (s *BatteryService) OnCharacteristicRead(central CentralID, char uuid.UUID) ReadResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := s.readLocked(char)
	logger.Trace(s.prefix, "read by %s: %s %v", central, resp.Status, resp.Value)
	return resp
}

func (s *BatteryService) OnCharacteristicWrite(central CentralID, char uuid.UUID, value []byte) Status {
	if _, ok := s.def.Characteristic(char); !ok {
		return StatusAttributeNotFound
	}
	logger.Warn(s.prefix, "%s tried to write %s", central, char)
	return StatusForError(fmt.Errorf("%w: battery level is read-only", ErrUnsupported))
}

func (s *BatteryService) OnCharacteristicWriteCompleted(central CentralID, char uuid.UUID, value []byte) {
	logger.Debug(s.prefix, "write to %s by %s completed", char, central)
}

func (s *BatteryService) OnNotifyingEnabled(central CentralID, char uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Subscribe(char, central) || char != BatteryLevelUUID {
		return
	}
	if !s.scheduler.running {
		s.scheduler.startLocked(s.opts.Interval, s.opts.Step, s.opts.Terminal)
	}
}

func (s *BatteryService) OnNotifyingDisabled(central CentralID, char uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.Unsubscribe(char, central) && char == BatteryLevelUUID && s.opts.StopWhenIdle {
		s.scheduler.stopLocked()
	}
}

func (s *BatteryService) Close() {
	s.scheduler.Stop()
}
