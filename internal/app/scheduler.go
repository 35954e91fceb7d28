package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DeadlineScheduler arms at most one pending question deadline per lobby.
// Each timer carries an immutable (lobbyID, questionIndex) token; the fire
// callback is responsible for re-validating the token against live lobby
// state, so a stale timer that slips past Cancel is harmless.
type DeadlineScheduler struct {
	clock  clockwork.Clock
	fire   func(lobbyID string, questionIndex int)
	logger zerolog.Logger

	mu     sync.Mutex
	timers map[string]*armedDeadline
}

type armedDeadline struct {
	timer         clockwork.Timer
	questionIndex int
	cancelled     chan struct{}
}

func NewDeadlineScheduler(clock clockwork.Clock, fire func(lobbyID string, questionIndex int), logger zerolog.Logger) *DeadlineScheduler {
	return &DeadlineScheduler{
		clock:  clock,
		fire:   fire,
		logger: logger,
		timers: make(map[string]*armedDeadline),
	}
}

// Arm schedules a deadline for the lobby's question, replacing any deadline
// already armed for that lobby.
func (s *DeadlineScheduler) Arm(lobbyID string, questionIndex int, d time.Duration) {
	armed := &armedDeadline{
		timer:         s.clock.NewTimer(d),
		questionIndex: questionIndex,
		cancelled:     make(chan struct{}),
	}

	s.mu.Lock()
	if prev, ok := s.timers[lobbyID]; ok {
		stopAndDrain(prev.timer)
		close(prev.cancelled)
	}
	s.timers[lobbyID] = armed
	s.mu.Unlock()

	s.logger.Debug().Str("lobbyId", lobbyID).Int("questionIndex", questionIndex).
		Dur("duration", d).Msg("deadline armed")

	go func() {
		select {
		case <-armed.timer.Chan():
			s.remove(lobbyID, armed)
			s.fire(lobbyID, questionIndex)
		case <-armed.cancelled:
			stopAndDrain(armed.timer)
		}
	}()
}

// Cancel drops the pending deadline for a lobby, if any. A fire already in
// flight is not stopped here; the callback's re-validation no-ops it.
func (s *DeadlineScheduler) Cancel(lobbyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if armed, ok := s.timers[lobbyID]; ok {
		stopAndDrain(armed.timer)
		close(armed.cancelled)
		delete(s.timers, lobbyID)
	}
}

// Pending reports whether a deadline is currently armed for the lobby.
func (s *DeadlineScheduler) Pending(lobbyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[lobbyID]
	return ok
}

// remove clears the map entry only if it still points at this timer, so a
// replacement armed in the meantime is left alone.
func (s *DeadlineScheduler) remove(lobbyID string, armed *armedDeadline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.timers[lobbyID]; ok && current == armed {
		delete(s.timers, lobbyID)
	}
}

// stopAndDrain stops a timer and drains its channel, per the time.Timer.Stop
// contract, so no goroutine is left blocked on a fired channel.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
