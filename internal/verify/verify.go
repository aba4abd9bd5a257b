// Package verify confirms the address bar holds the target URL by copying
// its content through the system clipboard.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// ErrClipboardUnavailable is reported when every clipboard read failed.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// NormalizeURLText trims surrounding whitespace, lowercases, strips a
// leading http:// or https:// scheme and trailing slashes.
func NormalizeURLText(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(normalized, scheme) {
			normalized = normalized[len(scheme):]
			break
		}
	}
	return strings.TrimRight(normalized, "/")
}

// URLTextMatchesTarget reports whether copied address-bar text names the
// same address as target. Blank text never matches.
func URLTextMatchesTarget(text, target string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return NormalizeURLText(text) == NormalizeURLText(target)
}

// Keyer is the keystroke surface the verifier drives.
type Keyer interface {
	Press(ctx context.Context, code domain.KeyCode) error
	Type(ctx context.Context, text string) (int, error)
	Combo(ctx context.Context, modifier, key domain.KeyCode) error
}

// Waiter blocks for a duration unless cancelled.
type Waiter interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Options controls clipboard polling.
type Options struct {
	ClipboardAttempts int
	ClipboardInterval time.Duration
	CopySettle        time.Duration
}

// Result describes one verification pass.
type Result struct {
	Matched   bool   // Address bar held the target on the first check
	Corrected bool   // The corrective retype ran
	Copied    string // Raw clipboard text, empty when unreadable
	Reads     int    // Clipboard read attempts made
}

// Verifier runs the select-all / copy / compare loop.
type Verifier struct {
	keys      Keyer
	clipboard domain.Clipboard
	waiter    Waiter
	opts      Options
	logger    *zap.Logger

	// beforeEscape is called right before a synthetic Escape is injected.
	beforeEscape func()
}

// NewVerifier creates a verifier. beforeEscape may be nil.
func NewVerifier(k Keyer, cb domain.Clipboard, w Waiter, opts Options, beforeEscape func(), logger *zap.Logger) *Verifier {
	if opts.ClipboardAttempts <= 0 {
		opts.ClipboardAttempts = 1
	}
	return &Verifier{
		keys:         k,
		clipboard:    cb,
		waiter:       w,
		opts:         opts,
		beforeEscape: beforeEscape,
		logger:       logger,
	}
}

// Verify copies the focused address bar and compares it with target. On a
// mismatch, including an unreadable clipboard, it retypes target exactly
// once. A failed correction is not retried.
func (v *Verifier) Verify(ctx context.Context, target string) (Result, error) {
	var result Result

	if err := v.keys.Combo(ctx, domain.KeyControl, 'A'); err != nil {
		return result, fmt.Errorf("select address bar: %w", err)
	}
	if err := v.keys.Combo(ctx, domain.KeyControl, 'C'); err != nil {
		return result, fmt.Errorf("copy address bar: %w", err)
	}
	if err := v.waiter.Sleep(ctx, v.opts.CopySettle); err != nil {
		return result, err
	}

	copied, reads, err := v.readClipboard(ctx)
	result.Copied = copied
	result.Reads = reads
	if err != nil && !errors.Is(err, ErrClipboardUnavailable) {
		return result, err
	}
	if err != nil {
		v.logger.Warn("clipboard unreadable, treating as mismatch",
			zap.Int("attempts", reads))
	}

	if URLTextMatchesTarget(copied, target) {
		result.Matched = true
		v.logger.Debug("address bar verified", zap.String("text", copied))
		return result, nil
	}

	v.logger.Info("address bar mismatch, retyping",
		zap.String("expected", target),
		zap.String("copied", copied))

	result.Corrected = true
	if err := v.correct(ctx, target); err != nil {
		return result, fmt.Errorf("corrective retype: %w", err)
	}
	return result, nil
}

// readClipboard polls the clipboard, which may briefly be held by the
// process that serviced the copy.
func (v *Verifier) readClipboard(ctx context.Context) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= v.opts.ClipboardAttempts; attempt++ {
		text, err := v.clipboard.ReadText()
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err
		if attempt == v.opts.ClipboardAttempts {
			break
		}
		if err := v.waiter.Sleep(ctx, v.opts.ClipboardInterval); err != nil {
			return "", attempt, err
		}
	}
	return "", v.opts.ClipboardAttempts, fmt.Errorf("%w: %w", ErrClipboardUnavailable, lastErr)
}

func (v *Verifier) correct(ctx context.Context, target string) error {
	if err := v.keys.Combo(ctx, domain.KeyControl, 'A'); err != nil {
		return err
	}
	if err := v.keys.Press(ctx, domain.KeyDelete); err != nil {
		return err
	}
	if _, err := v.keys.Type(ctx, target); err != nil {
		return err
	}
	return DismissAutocomplete(ctx, v.keys, v.beforeEscape)
}

// DismissAutocomplete injects a synthetic Escape to close the address-bar
// suggestion list. beforeEscape, if set, runs first so the keyboard hook can
// open its debounce window.
func DismissAutocomplete(ctx context.Context, k Keyer, beforeEscape func()) error {
	if beforeEscape != nil {
		beforeEscape()
	}
	return k.Press(ctx, domain.KeyEscape)
}
