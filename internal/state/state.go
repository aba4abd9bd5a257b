// Package state holds the automation state shared between the keyboard hook
// thread and the control loop. Every field is an atomic; there are no locks.
//
// The hook thread is the only writer of the state and the press counter.
// The control loop reads both and keeps its own high-water mark of consumed
// presses, so the consumed value can never run ahead of the counter.
package state

import (
	"sync/atomic"
	"time"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// Shared is the process-wide automation state handle.
type Shared struct {
	state       atomic.Int32
	presses     atomic.Uint64
	ignoreUntil atomic.Int64 // UnixNano; zero means no debounce window

	messagePrinted   atomic.Bool
	messageDelivered atomic.Bool
}

// New returns a handle in the Running state.
func New() *Shared {
	return &Shared{}
}

// State returns the current automation state.
func (s *Shared) State() domain.AutomationState {
	return domain.AutomationState(s.state.Load())
}

// Presses returns the number of genuine Escape presses recorded.
func (s *Shared) Presses() uint64 {
	return s.presses.Load()
}

// RecordEscape advances the state by one step for a genuine Escape press and
// counts the press. It returns the new state and whether a transition
// happened. Presses after Exiting change nothing. The counter is bumped
// after the state, so a reader may briefly see the new state with the old
// count.
func (s *Shared) RecordEscape() (domain.AutomationState, bool) {
	for {
		cur := domain.AutomationState(s.state.Load())
		var next domain.AutomationState
		switch cur {
		case domain.StateRunning:
			next = domain.StatePaused
		case domain.StatePaused:
			next = domain.StateExiting
		default:
			return cur, false
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			s.presses.Add(1)
			return next, true
		}
	}
}

// ForceExit moves any state to Exiting. Used for signal-driven shutdown.
// It does not count as an Escape press.
func (s *Shared) ForceExit() {
	s.state.Store(int32(domain.StateExiting))
}

// IgnoreUntil opens a debounce window ending at t. Genuine Escape events
// observed before t are discarded.
func (s *Shared) IgnoreUntil(t time.Time) {
	s.ignoreUntil.Store(t.UnixNano())
}

// Ignoring reports whether now falls inside the debounce window.
func (s *Shared) Ignoring(now time.Time) bool {
	deadline := s.ignoreUntil.Load()
	return deadline != 0 && now.UnixNano() < deadline
}

// MarkPrinted claims the one-shot right to print the shutdown message
// locally. Only the first caller gets true.
func (s *Shared) MarkPrinted() bool {
	return !s.messagePrinted.Swap(true)
}

// Printed reports whether the shutdown message was printed locally.
func (s *Shared) Printed() bool {
	return s.messagePrinted.Load()
}

// MarkDelivered claims the one-shot right to deliver the shutdown message
// to a terminal. Only the first caller gets true.
func (s *Shared) MarkDelivered() bool {
	return !s.messageDelivered.Swap(true)
}

// Delivered reports whether shutdown delivery has been claimed.
func (s *Shared) Delivered() bool {
	return s.messageDelivered.Load()
}

// Cursor is a consumer's private high-water mark over the press counter.
// It must only be used from one goroutine.
type Cursor struct {
	shared   *Shared
	consumed uint64
}

// NewCursor starts consuming from the current counter value.
func NewCursor(s *Shared) *Cursor {
	return &Cursor{shared: s, consumed: s.Presses()}
}

// Pending reports whether presses arrived since the last Consume.
func (c *Cursor) Pending() bool {
	return c.shared.Presses() > c.consumed
}

// Consume marks every press seen so far as handled and returns how many
// were new.
func (c *Cursor) Consume() uint64 {
	now := c.shared.Presses()
	n := now - c.consumed
	c.consumed = now
	return n
}

// Consumed returns the high-water mark.
func (c *Cursor) Consumed() uint64 {
	return c.consumed
}
