// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/motion"
	"github.com/eliteGoblin/navpilot/internal/pause"
	"github.com/eliteGoblin/navpilot/internal/verify"
)

var (
	// ErrPlatformQuery indicates the cursor or window bounds could not be read.
	ErrPlatformQuery = errors.New("platform query failed")

	// ErrInjection indicates an input injection call failed mid-gesture.
	ErrInjection = errors.New("input injection failed")
)

// Waiter blocks for a duration unless cancelled.
type Waiter interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// NavigatorConfig holds the target and address-bar geometry.
type NavigatorConfig struct {
	TargetURL   string
	OffsetX     int // Address bar position relative to the window's top-left corner
	OffsetY     int
	ClickSettle time.Duration // Pause between arriving and clicking
}

// CycleResult captures what happened during a single navigation cycle.
type CycleResult struct {
	ClickedAt  domain.Point
	Typed      int
	Verified   bool
	Corrected  bool
	ExecutedAt time.Time
	DurationMs int64
}

// Navigator drives the foreground browser window to the target URL.
type Navigator struct {
	cursor   domain.CursorController
	windows  domain.WindowManager
	motion   *motion.Synthesizer
	keys     verify.Keyer
	verifier *verify.Verifier
	waiter   Waiter
	config   NavigatorConfig
	logger   *zap.Logger

	// beforeEscape runs right before each synthetic Escape.
	beforeEscape func()
}

// NewNavigator creates a navigator.
func NewNavigator(
	cursor domain.CursorController,
	windows domain.WindowManager,
	synth *motion.Synthesizer,
	k verify.Keyer,
	verifier *verify.Verifier,
	waiter Waiter,
	config NavigatorConfig,
	beforeEscape func(),
	logger *zap.Logger,
) *Navigator {
	return &Navigator{
		cursor:       cursor,
		windows:      windows,
		motion:       synth,
		keys:         k,
		verifier:     verifier,
		waiter:       waiter,
		config:       config,
		beforeEscape: beforeEscape,
		logger:       logger,
	}
}

// Navigate runs one cycle: glide to the address bar, click, replace its
// content with the target, dismiss suggestions, verify, and press Enter.
// Any wait may be cancelled; the cancellation error is returned unchanged.
func (n *Navigator) Navigate(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{ExecutedAt: start}

	target, err := n.addressBar()
	if err != nil {
		return result, err
	}
	result.ClickedAt = target

	if err := n.glideAndClick(ctx, target); err != nil {
		return result, err
	}

	if err := n.keys.Combo(ctx, domain.KeyControl, 'A'); err != nil {
		return result, injectionOr(err, "select address bar")
	}
	typed, err := n.keys.Type(ctx, n.config.TargetURL)
	result.Typed = typed
	if err != nil {
		return result, injectionOr(err, "type target")
	}
	if err := verify.DismissAutocomplete(ctx, n.keys, n.beforeEscape); err != nil {
		return result, injectionOr(err, "dismiss autocomplete")
	}

	vr, err := n.verifier.Verify(ctx, n.config.TargetURL)
	if err != nil {
		return result, injectionOr(err, "verify address bar")
	}
	result.Verified = vr.Matched
	result.Corrected = vr.Corrected

	if err := n.keys.Press(ctx, domain.KeyEnter); err != nil {
		return result, injectionOr(err, "submit")
	}

	result.DurationMs = time.Since(start).Milliseconds()
	n.logger.Info("navigated",
		zap.String("target", n.config.TargetURL),
		zap.Bool("verified", result.Verified),
		zap.Bool("corrected", result.Corrected),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

// addressBar locates the click target from the foreground window bounds.
func (n *Navigator) addressBar() (domain.Point, error) {
	w := n.windows.ForegroundWindow()
	if w == 0 {
		return domain.Point{}, fmt.Errorf("%w: no foreground window", ErrPlatformQuery)
	}
	rect, err := n.windows.WindowRect(w)
	if err != nil {
		return domain.Point{}, fmt.Errorf("%w: window bounds: %w", ErrPlatformQuery, err)
	}
	if rect.Empty() {
		return domain.Point{}, fmt.Errorf("%w: foreground window has no area", ErrPlatformQuery)
	}
	return domain.Point{
		X: rect.Left + min(n.config.OffsetX, rect.Width()-1),
		Y: rect.Top + min(n.config.OffsetY, rect.Height()-1),
	}, nil
}

// glideAndClick moves along a synthesized path, then clicks.
func (n *Navigator) glideAndClick(ctx context.Context, target domain.Point) error {
	from, err := n.cursor.CursorPos()
	if err != nil {
		return fmt.Errorf("%w: cursor position: %w", ErrPlatformQuery, err)
	}

	if err := n.Glide(ctx, from, target); err != nil {
		return err
	}
	if err := n.waiter.Sleep(ctx, n.config.ClickSettle); err != nil {
		return err
	}
	if err := n.cursor.MouseDown(); err != nil {
		return fmt.Errorf("%w: mouse down: %w", ErrInjection, err)
	}
	if err := n.cursor.MouseUp(); err != nil {
		return fmt.Errorf("%w: mouse up: %w", ErrInjection, err)
	}
	return nil
}

// Glide places the cursor on each waypoint from from to to, waiting the
// waypoint's delay between steps.
func (n *Navigator) Glide(ctx context.Context, from, to domain.Point) error {
	for _, wp := range n.motion.Path(from, to) {
		if err := n.cursor.SetCursorPos(domain.Point{X: wp.X, Y: wp.Y}); err != nil {
			return fmt.Errorf("%w: set cursor (%d,%d): %w", ErrInjection, wp.X, wp.Y, err)
		}
		if err := n.waiter.Sleep(ctx, wp.Delay); err != nil {
			return err
		}
	}
	return nil
}

// injectionOr tags key-injection failures while letting cancellations
// through untouched.
func injectionOr(err error, step string) error {
	if errors.Is(err, pause.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInjection, step, err)
}
