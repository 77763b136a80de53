package schedule

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/program"
)

// refreshPeriod covers the timelapse during DST: per-trigger timers are only
// armed this far ahead and re-derived at every window boundary.
const refreshPeriod = 6 * time.Hour

// triggerBuffer bounds the outgoing trigger channel. Timer callbacks never
// block on it; an overrun drops the trigger with a warning.
const triggerBuffer = 16

var ErrAlreadyStarted = errors.New("scheduler is already started")

// Trigger is one scheduled firing of a cycle.
type Trigger struct {
	Cycle program.Cycle
	At    time.Time
}

// Scheduler owns the active program and fires cycle triggers at wall-clock
// time. Triggers are delivered on the channel returned by Triggers.
type Scheduler struct {
	logger   *logger.Logger
	triggers chan Trigger

	mu           sync.Mutex // guards program and all timer state
	prog         program.Program
	refreshTimer *time.Timer
	windowTimers []*time.Timer
	lastRefresh  time.Time
	started      bool
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a scheduler with an empty program.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		logger:   log,
		triggers: make(chan Trigger, triggerBuffer),
	}
}

// Triggers returns the channel scheduled firings are delivered on.
func (s *Scheduler) Triggers() <-chan Trigger {
	return s.triggers
}

// Program returns the active program.
func (s *Scheduler) Program() program.Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prog
}

// SetProgram validates the program and, on success, atomically swaps it in
// and re-initializes all trigger timers from now. On failure the previous
// program stays active.
func (s *Scheduler) SetProgram(p program.Program) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prog = p
	if s.started {
		s.initTimersLocked()
	}
	return nil
}

// Start arms the trigger timers. It returns immediately; firings run on
// timer goroutines until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.initTimersLocked()

	go func() {
		<-s.ctx.Done()
		s.Stop()
	}()

	s.logger.Info("scheduler started",
		logger.Field{Key: "cycles", Value: len(s.prog.Cycles)})
	return nil
}

// Stop cancels and drains all armed timers. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.cancel()
	s.stopTimersLocked()
	s.logger.Info("scheduler stopped")
}

// NextCycles returns the merged upcoming trigger sequence from now, against
// the currently active program.
func (s *Scheduler) NextCycles(now time.Time) iter.Seq2[program.Cycle, time.Time] {
	return NextCycles(s.Program(), now)
}

// Next returns the first upcoming trigger from now, if any.
func (s *Scheduler) Next(now time.Time) (program.Cycle, time.Time, bool) {
	for c, at := range s.NextCycles(now) {
		return c, at, true
	}
	return program.Cycle{}, time.Time{}, false
}

func (s *Scheduler) stopTimersLocked() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	for _, t := range s.windowTimers {
		t.Stop()
	}
	s.windowTimers = nil
}

func (s *Scheduler) initTimersLocked() {
	s.stopTimersLocked()
	s.lastRefresh = time.Now()
	s.refreshLocked()
}

// refreshLocked arms one short-lived timer per trigger falling inside the
// current window, then a timer for the window boundary. The boundary chains
// from the previous one so no trigger is lost between windows, while each
// timer delay is derived from the current wall clock.
func (s *Scheduler) refreshLocked() {
	windowEnd := s.lastRefresh.Add(refreshPeriod)

	for c, at := range NextCycles(s.prog, s.lastRefresh) {
		if !at.Before(windowEnd) {
			break
		}
		cycle, instant := c, at
		s.windowTimers = append(s.windowTimers, time.AfterFunc(time.Until(instant), func() {
			s.fire(cycle, instant)
		}))
	}

	s.lastRefresh = windowEnd
	s.refreshTimer = time.AfterFunc(time.Until(windowEnd), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.started {
			return
		}
		s.windowTimers = nil
		s.refreshLocked()
	})
}

// fire runs on a timer goroutine and must not block.
func (s *Scheduler) fire(c program.Cycle, at time.Time) {
	select {
	case s.triggers <- Trigger{Cycle: c, At: at}:
	default:
		s.logger.Warn("trigger channel full, dropping trigger",
			logger.Field{Key: "cycle", Value: c.Name})
	}
}
