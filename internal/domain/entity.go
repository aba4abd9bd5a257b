// Package domain contains core business entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import "time"

// Point is an absolute screen coordinate in pixels.
type Point struct {
	X int
	Y int
}

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() int { return r.Bottom - r.Top }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Waypoint is one step of a synthesized cursor path.
type Waypoint struct {
	X     int
	Y     int
	Delay time.Duration // Pause after placing the cursor here
}

// AutomationState is the process-wide automation mode.
// Transitions are monotonic: Running -> Paused -> Exiting.
type AutomationState int32

const (
	StateRunning AutomationState = iota
	StatePaused
	StateExiting
)

// String returns the state name for logs.
func (s AutomationState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// KeyCode is a platform virtual-key code.
type KeyCode uint16

// Virtual-key codes used by the automation. Letters map to their uppercase
// ASCII value and need no constant.
const (
	KeyBackspace KeyCode = 0x08
	KeyEnter     KeyCode = 0x0D
	KeyControl   KeyCode = 0x11
	KeyEscape    KeyCode = 0x1B
	KeySpace     KeyCode = 0x20
	KeyDelete    KeyCode = 0x2E
	KeyPeriod    KeyCode = 0xBE
)

// KeyEvent is a single key transition observed by a system-wide subscription.
type KeyEvent struct {
	Code     KeyCode
	Down     bool // true for press, false for release
	Injected bool // true when the OS flags the event as software-synthesized
	At       time.Time
}

// TerminalOwnership governs whether a pause terminal may be force-closed.
type TerminalOwnership string

const (
	// TerminalLaunchedByApp marks a terminal process spawned by navpilot.
	TerminalLaunchedByApp TerminalOwnership = "launched-by-app"
	// TerminalPreExisting marks a console that existed before the pause.
	TerminalPreExisting TerminalOwnership = "pre-existing"
)

// WindowHandle is an opaque OS window identifier. Zero means none.
type WindowHandle uintptr

// TerminalHandle identifies the window used as the pause/exit console.
type TerminalHandle struct {
	Window    WindowHandle
	PID       int // Process ID owning the console (0 when unknown)
	Ownership TerminalOwnership
	CreatedAt time.Time
}

// Owned reports whether this terminal was spawned by navpilot and may be killed.
func (h *TerminalHandle) Owned() bool {
	return h != nil && h.Ownership == TerminalLaunchedByApp
}
