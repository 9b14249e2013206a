package wire

import (
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls how unreliable the loopback link is.
type SimulationConfig struct {
	// ResponseLoss is the probability that a response PDU never reaches
	// the central. The request itself was still executed.
	ResponseLoss float64
	// MaxRetries bounds how often a central retransmits a request whose
	// response was lost.
	MaxRetries int
	// RetryDelay is the pause between retransmissions.
	RetryDelay time.Duration
	// Seed makes loss reproducible; 0 seeds from the clock.
	Seed int64
}

// PerfectSimulationConfig never loses anything.
func PerfectSimulationConfig() SimulationConfig {
	return SimulationConfig{MaxRetries: 3, RetryDelay: time.Millisecond}
}

// LossySimulationConfig loses responses at rate but retries enough that
// requests practically always complete.
func LossySimulationConfig(rate float64, seed int64) SimulationConfig {
	return SimulationConfig{ResponseLoss: rate, MaxRetries: 20, RetryDelay: time.Millisecond, Seed: seed}
}

type simulator struct {
	mu   sync.Mutex
	cfg  SimulationConfig
	rng  *rand.Rand
	lost int
}

func newSimulator(cfg SimulationConfig) *simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &simulator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (s *simulator) responseLost() bool {
	if s.cfg.ResponseLoss <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() < s.cfg.ResponseLoss {
		s.lost++
		return true
	}
	return false
}

func (s *simulator) lostCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}
