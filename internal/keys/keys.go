// Package keys maps characters to virtual keys and types them with a
// humanized cadence.
package keys

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// ErrUnmapped indicates a character outside the supported key set.
var ErrUnmapped = errors.New("character has no key mapping")

// VirtualKeyForRune maps ASCII letters (either case) and '.' to virtual keys.
// Every other character is unmapped.
func VirtualKeyForRune(r rune) (domain.KeyCode, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return domain.KeyCode(r - 'a' + 'A'), true
	case r >= 'A' && r <= 'Z':
		return domain.KeyCode(r), true
	case r == '.':
		return domain.KeyPeriod, true
	default:
		return 0, false
	}
}

// Mappable reports whether every rune of text has a key mapping.
func Mappable(text string) bool {
	for _, r := range text {
		if _, ok := VirtualKeyForRune(r); !ok {
			return false
		}
	}
	return true
}

// Waiter blocks for a duration unless cancelled.
type Waiter interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Timing holds the ranges keystroke delays are drawn from.
type Timing struct {
	MinHold        time.Duration
	MaxHold        time.Duration
	MinInterKey    time.Duration
	MaxInterKey    time.Duration
	MinModifierGap time.Duration
	MaxModifierGap time.Duration
}

// Typist injects keystrokes with randomized hold and gap durations.
type Typist struct {
	keyboard domain.KeyboardController
	waiter   Waiter
	timing   Timing

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTypist creates a typist. A nil rng uses a time-seeded source.
func NewTypist(kb domain.KeyboardController, waiter Waiter, timing Timing, rng *rand.Rand) *Typist {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Typist{keyboard: kb, waiter: waiter, timing: timing, rng: rng}
}

// Press taps a single key: down, hold, up.
// A cancelled hold still releases the key so nothing is left stuck down.
func (t *Typist) Press(ctx context.Context, code domain.KeyCode) error {
	if err := t.keyboard.KeyDown(code); err != nil {
		return fmt.Errorf("key down 0x%02X: %w", uint16(code), err)
	}
	holdErr := t.waiter.Sleep(ctx, t.between(t.timing.MinHold, t.timing.MaxHold))
	if err := t.keyboard.KeyUp(code); err != nil {
		return fmt.Errorf("key up 0x%02X: %w", uint16(code), err)
	}
	return holdErr
}

// Type presses the key for each mappable rune of text, pausing a random
// inter-key delay after each one. Unmapped runes are skipped silently.
// It returns how many runes were typed.
func (t *Typist) Type(ctx context.Context, text string) (int, error) {
	typed := 0
	for _, r := range text {
		code, ok := VirtualKeyForRune(r)
		if !ok {
			continue
		}
		if err := t.Press(ctx, code); err != nil {
			return typed, err
		}
		typed++
		if err := t.Gap(ctx); err != nil {
			return typed, err
		}
	}
	return typed, nil
}

// Gap waits one random inter-key delay.
func (t *Typist) Gap(ctx context.Context) error {
	return t.waiter.Sleep(ctx, t.between(t.timing.MinInterKey, t.timing.MaxInterKey))
}

// Combo presses key while modifier is held, staggering each transition:
// modifier down, gap, key down, hold, key up, gap, modifier up.
func (t *Typist) Combo(ctx context.Context, modifier, key domain.KeyCode) (err error) {
	if err := t.keyboard.KeyDown(modifier); err != nil {
		return fmt.Errorf("modifier down 0x%02X: %w", uint16(modifier), err)
	}
	defer func() {
		if upErr := t.keyboard.KeyUp(modifier); upErr != nil && err == nil {
			err = fmt.Errorf("modifier up 0x%02X: %w", uint16(modifier), upErr)
		}
	}()

	if err := t.modifierGap(ctx); err != nil {
		return err
	}
	if err := t.Press(ctx, key); err != nil {
		return err
	}
	return t.modifierGap(ctx)
}

func (t *Typist) modifierGap(ctx context.Context) error {
	return t.waiter.Sleep(ctx, t.between(t.timing.MinModifierGap, t.timing.MaxModifierGap))
}

func (t *Typist) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo + time.Duration(t.rng.Int63n(int64(hi-lo)+1))
}
