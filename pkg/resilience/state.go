package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State - состояние Breaker
type State int

const (
	// StateClosed - вызовы проходят
	StateClosed State = iota

	// StateHalfOpen - пробный вызов после Cooldown
	StateHalfOpen

	// StateOpen - вызовы отклоняются до истечения Cooldown
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// transition - смена состояния, о которой нужно сообщить после снятия lock
type transition struct {
	from, to State
}

// stateManager - конечный автомат Breaker
type stateManager struct {
	mu         sync.Mutex
	config     Config
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
	opened     int
	now        func() time.Time
}

func newStateManager(config Config) *stateManager {
	return &stateManager{config: config, now: time.Now}
}

// current возвращает состояние с учетом истекшего Cooldown
func (sm *stateManager) current() (State, *transition) {
	if sm.state == StateOpen && !sm.now().Before(sm.expiry) {
		return StateHalfOpen, sm.setState(StateHalfOpen)
	}
	return sm.state, nil
}

// before - допуск вызова; возвращает поколение для after
func (sm *stateManager) before() (uint64, *transition, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, tr := sm.current()
	if state == StateOpen {
		return sm.generation, tr, ErrOpen
	}
	return sm.generation, tr, nil
}

// after учитывает результат вызова своего поколения
func (sm *stateManager) after(generation uint64, failed bool) *transition {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if generation != sm.generation {
		return nil
	}

	sm.counts.Requests++
	if !failed {
		sm.counts.TotalSuccesses++
		sm.counts.ConsecutiveSuccesses++
		sm.counts.ConsecutiveFailures = 0
		if sm.state == StateHalfOpen && sm.counts.ConsecutiveSuccesses >= sm.config.SuccessThreshold {
			return sm.setState(StateClosed)
		}
		return nil
	}

	sm.counts.TotalFailures++
	sm.counts.ConsecutiveFailures++
	sm.counts.ConsecutiveSuccesses = 0
	switch sm.state {
	case StateClosed:
		if sm.counts.ConsecutiveFailures >= sm.config.MaxFailures {
			return sm.setState(StateOpen)
		}
	case StateHalfOpen:
		return sm.setState(StateOpen)
	}
	return nil
}

// setState меняет состояние под lock и сбрасывает счетчики
func (sm *stateManager) setState(to State) *transition {
	from := sm.state
	if from == to {
		return nil
	}
	sm.state = to
	sm.generation++
	sm.counts = Counts{}
	if to == StateOpen {
		sm.expiry = sm.now().Add(sm.config.Cooldown)
		sm.opened++
	}
	return &transition{from: from, to: to}
}

func (sm *stateManager) reset() *transition {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.setState(StateClosed)
}

func (sm *stateManager) snapshot() Stats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state := sm.state
	var until time.Duration
	if state == StateOpen {
		if until = sm.expiry.Sub(sm.now()); until < 0 {
			until = 0
		}
	}
	return Stats{
		State:      state,
		Generation: sm.generation,
		Counts:     sm.counts,
		Opened:     sm.opened,
		RetryIn:    until,
	}
}

// Stats - снимок состояния Breaker
type Stats struct {
	State      State         `json:"state"`
	Generation uint64        `json:"generation"`
	Counts     Counts        `json:"counts"`
	Opened     int           `json:"opened"`
	RetryIn    time.Duration `json:"retry_in"`
}
