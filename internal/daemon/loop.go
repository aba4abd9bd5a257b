// Package daemon implements the control loop that drives the automation
// through Running, Paused and Exiting.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/pause"
	"github.com/eliteGoblin/navpilot/internal/state"
	"github.com/eliteGoblin/navpilot/internal/usecase"
)

// Navigator runs one navigation cycle.
type Navigator interface {
	Navigate(ctx context.Context) (*usecase.CycleResult, error)
}

// TerminalManager provides the console shown while paused.
type TerminalManager interface {
	Acquire(ctx context.Context) (*domain.TerminalHandle, error)
	Release(h *domain.TerminalHandle)
}

// KeyHook is the Escape subscription lifecycle.
type KeyHook interface {
	Start(ctx context.Context) error
	Stop()
}

// LoopConfig holds control loop timing.
type LoopConfig struct {
	TargetURL string
	Cadence   time.Duration // Wait between navigation cycles
	Slice     time.Duration // Poll interval while paused
}

// DefaultLoopConfig returns default control loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TargetURL: "twitter.com",
		Cadence:   1200 * time.Millisecond,
		Slice:     pause.MaxSlice,
	}
}

// Interrupted returns the cancellation check for waits on the Running
// path: a press nobody has consumed yet, or any state other than Running.
func Interrupted(shared *state.Shared, cursor *state.Cursor) func() bool {
	return func() bool {
		return cursor.Pending() || shared.State() != domain.StateRunning
	}
}

// ControlLoop is the top-level automation state machine. It owns every
// side effect of a state change; the hook only flips atomics.
type ControlLoop struct {
	config    LoopConfig
	shared    *state.Shared
	cursor    *state.Cursor
	sleeper   *pause.Sleeper
	navigator Navigator
	terminals TerminalManager
	hook      KeyHook
	announcer *Announcer
	logger    *zap.Logger

	terminal *domain.TerminalHandle
	paused   bool
	degraded bool
}

// NewControlLoop creates a control loop. cursor and sleeper must be the
// ones whose cancellation check comes from Interrupted, and cursor must
// not be consumed anywhere else.
func NewControlLoop(
	config LoopConfig,
	shared *state.Shared,
	cursor *state.Cursor,
	sleeper *pause.Sleeper,
	navigator Navigator,
	terminals TerminalManager,
	hook KeyHook,
	announcer *Announcer,
	logger *zap.Logger,
) *ControlLoop {
	return &ControlLoop{
		config:    config,
		shared:    shared,
		cursor:    cursor,
		sleeper:   sleeper,
		navigator: navigator,
		terminals: terminals,
		hook:      hook,
		announcer: announcer,
		logger:    logger,
	}
}

// Degraded reports whether the loop runs without pause/exit support.
func (l *ControlLoop) Degraded() bool {
	return l.degraded
}

// Run blocks until the user exits with Escape (returns nil) or ctx is
// cancelled (returns ctx.Err()).
func (l *ControlLoop) Run(ctx context.Context) error {
	if err := l.hook.Start(ctx); err != nil {
		l.degraded = true
		l.logger.Warn("keyboard hook unavailable, Escape will not pause or exit",
			zap.Error(err))
	}

	l.logger.Info("automation started",
		zap.String("target", l.config.TargetURL),
		zap.Duration("cadence", l.config.Cadence),
		zap.Bool("degraded", l.degraded))

	for {
		if ctx.Err() != nil {
			l.interrupt()
			return ctx.Err()
		}

		switch l.shared.State() {
		case domain.StateRunning:
			l.runCycle(ctx)
		case domain.StatePaused:
			l.waitWhilePaused(ctx)
		case domain.StateExiting:
			l.exit(ctx)
			return nil
		}
	}
}

// runCycle navigates once and then waits out the cadence. Both steps stop
// early on a pending press.
func (l *ControlLoop) runCycle(ctx context.Context) {
	_, err := l.navigator.Navigate(ctx)
	switch {
	case err == nil:
	case errors.Is(err, pause.ErrCancelled), ctx.Err() != nil:
		l.logger.Debug("navigation interrupted")
	case errors.Is(err, usecase.ErrPlatformQuery):
		l.logger.Warn("skipping navigation cycle", zap.Error(err))
	default:
		l.logger.Warn("navigation gesture failed", zap.Error(err))
	}
	l.handlePresses(ctx)

	if l.shared.State() != domain.StateRunning {
		return
	}
	if err := l.sleeper.Sleep(ctx, l.config.Cadence); err != nil {
		l.handlePresses(ctx)
	}
}

// waitWhilePaused polls every slice until the state leaves Paused.
func (l *ControlLoop) waitWhilePaused(ctx context.Context) {
	l.handlePresses(ctx)

	ticker := time.NewTicker(l.sleeper.Slice())
	defer ticker.Stop()

	for l.shared.State() == domain.StatePaused {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		l.handlePresses(ctx)
	}
	l.handlePresses(ctx)
}

// handlePresses consumes new presses and performs the side effects of the
// current state. The pause setup keys off the state rather than the press
// count, since the hook publishes the state before the counter.
func (l *ControlLoop) handlePresses(ctx context.Context) {
	if l.cursor.Pending() {
		n := l.cursor.Consume()
		l.logger.Debug("escape presses consumed",
			zap.Uint64("new", n),
			zap.Uint64("total", l.cursor.Consumed()),
			zap.Stringer("state", l.shared.State()))
	}

	if l.shared.State() == domain.StatePaused && !l.paused {
		l.enterPause(ctx)
	}
}

// enterPause runs once per run, even when no terminal could be acquired.
func (l *ControlLoop) enterPause(ctx context.Context) {
	l.paused = true
	l.logger.Info("Paused. Press Escape again to exit.")

	h, err := l.terminals.Acquire(ctx)
	if h != nil {
		l.terminal = h
	}
	if err != nil {
		l.logger.Warn("pause terminal unavailable, shutdown message will print locally",
			zap.Error(err))
		return
	}
	l.logger.Debug("pause terminal ready",
		zap.String("ownership", string(h.Ownership)),
		zap.Int("pid", h.PID))
}

// exit delivers the shutdown message, closes an owned terminal and
// unregisters the hook, in that order.
func (l *ControlLoop) exit(ctx context.Context) {
	l.handlePresses(ctx)

	delivery := l.announcer.Deliver(ctx, l.terminal)
	l.terminals.Release(l.terminal)
	l.hook.Stop()

	l.logger.Info("automation exited",
		zap.String("delivery", string(delivery)),
		zap.Uint64("escape_presses", l.shared.Presses()))
}

// interrupt tears down after a signal: no shutdown message, but owned
// resources are still released.
func (l *ControlLoop) interrupt() {
	l.shared.ForceExit()
	l.terminals.Release(l.terminal)
	l.hook.Stop()
	l.logger.Info("automation interrupted")
}
