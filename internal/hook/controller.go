// Package hook owns the system-wide keyboard subscription that lets a
// physical Escape press pause and then stop the automation.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/state"
)

// ErrInstall indicates the keyboard subscription could not be installed.
// The automation keeps running without pause or exit capability.
var ErrInstall = errors.New("keyboard hook installation failed")

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("keyboard hook already started")

// Status is the lifecycle state of the controller.
type Status int32

const (
	StatusStopped Status = iota
	StatusInstalling
	StatusListening
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusInstalling:
		return "installing"
	case StatusListening:
		return "listening"
	default:
		return "unknown"
	}
}

// Config holds controller settings.
type Config struct {
	Debounce       time.Duration // Window after a synthetic Escape during which Escape is ignored
	InstallTimeout time.Duration
}

// Controller runs the key event source on its own goroutine and turns
// genuine Escape presses into state transitions on the shared handle.
//
// The callback path only filters events and touches atomics. Everything
// else (focusing terminals, teardown) belongs to the control loop.
type Controller struct {
	source domain.KeyEventSource
	shared *state.Shared
	config Config
	clock  domain.Clock
	logger *zap.Logger

	// onExit runs once on the hook thread when the second press lands.
	onExit func()

	status    atomic.Int32
	escHeld   atomic.Bool
	injected  atomic.Uint64
	debounced atomic.Uint64

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewController creates a controller. onExit may be nil and must not block.
func NewController(
	source domain.KeyEventSource,
	shared *state.Shared,
	config Config,
	clock domain.Clock,
	onExit func(),
	logger *zap.Logger,
) *Controller {
	if clock == nil {
		clock = domain.ClockFunc(time.Now)
	}
	return &Controller{
		source: source,
		shared: shared,
		config: config,
		clock:  clock,
		onExit: onExit,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status {
	return Status(c.status.Load())
}

// Start launches the subscription thread and waits until it reports that
// the subscription is installed, failed, or the install timeout elapsed.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.status.Store(int32(StatusInstalling))

	ready := make(chan error, 1)
	go func() {
		defer close(c.done)
		defer c.status.Store(int32(StatusStopped))

		err := c.source.Run(c.HandleKey, func(err error) {
			select {
			case ready <- err:
			default:
			}
		})
		if err != nil {
			c.logger.Debug("keyboard hook thread exited", zap.Error(err))
		}
	}()

	timer := time.NewTimer(c.config.InstallTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInstall, err)
		}
		c.status.CompareAndSwap(int32(StatusInstalling), int32(StatusListening))
		c.logger.Info("keyboard hook listening")
		return nil
	case <-timer.C:
		_ = c.source.Stop()
		return fmt.Errorf("%w: timed out after %s", ErrInstall, c.config.InstallTimeout)
	case <-ctx.Done():
		_ = c.source.Stop()
		return fmt.Errorf("%w: %w", ErrInstall, ctx.Err())
	}
}

// Stop unregisters the subscription and waits for the thread to exit.
// Only the first call has any effect.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if !c.started.Load() {
			return
		}
		if err := c.source.Stop(); err != nil {
			c.logger.Warn("failed to stop keyboard hook", zap.Error(err))
		}
		select {
		case <-c.done:
		case <-time.After(time.Second):
			c.logger.Warn("keyboard hook thread did not exit in time")
		}
		c.logger.Info("keyboard hook stopped",
			zap.Uint64("injected_ignored", c.injected.Load()),
			zap.Uint64("debounced", c.debounced.Load()))
	})
}

// NoteSyntheticEscape opens the debounce window. Call it right before
// injecting an Escape.
func (c *Controller) NoteSyntheticEscape() {
	c.shared.IgnoreUntil(c.clock.Now().Add(c.config.Debounce))
}

// HandleKey is the subscription callback. It runs on the hook thread.
func (c *Controller) HandleKey(ev domain.KeyEvent) {
	if ev.Code != domain.KeyEscape {
		return
	}
	if ev.Injected {
		if ev.Down {
			c.injected.Add(1)
		}
		return
	}
	if !ev.Down {
		c.escHeld.Store(false)
		return
	}
	// Auto-repeat delivers more key-downs while the key stays held.
	if c.escHeld.Swap(true) {
		return
	}

	at := ev.At
	if at.IsZero() {
		at = c.clock.Now()
	}
	if c.shared.Ignoring(at) {
		c.debounced.Add(1)
		return
	}

	next, changed := c.shared.RecordEscape()
	if !changed {
		return
	}
	switch next {
	case domain.StatePaused:
		c.shared.IgnoreUntil(at.Add(c.config.Debounce))
	case domain.StateExiting:
		if c.onExit != nil {
			c.onExit()
		}
	}
}

// Injected returns how many injected Escape presses were ignored.
func (c *Controller) Injected() uint64 { return c.injected.Load() }

// Debounced returns how many genuine presses fell inside a debounce window.
func (c *Controller) Debounced() uint64 { return c.debounced.Load() }
