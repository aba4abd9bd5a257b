package domain

import "time"

// CursorController places the cursor and presses mouse buttons.
type CursorController interface {
	// CursorPos returns the current absolute cursor position.
	CursorPos() (Point, error)

	// SetCursorPos moves the cursor to an absolute position.
	SetCursorPos(p Point) error

	// MouseDown presses the left mouse button at the current position.
	MouseDown() error

	// MouseUp releases the left mouse button at the current position.
	MouseUp() error
}

// KeyboardController injects key transitions.
type KeyboardController interface {
	KeyDown(code KeyCode) error
	KeyUp(code KeyCode) error
}

// Clipboard reads the system clipboard.
// Implementation: atotto/clipboard on Windows.
type Clipboard interface {
	// ReadText returns the clipboard text. It fails when another process
	// holds the clipboard open.
	ReadText() (string, error)
}

// WindowManager queries and focuses top-level windows.
type WindowManager interface {
	// ForegroundWindow returns the focused window or zero.
	ForegroundWindow() WindowHandle

	// WindowRect returns the bounds of a window.
	WindowRect(w WindowHandle) (Rect, error)

	// WindowTitle returns the caption of a window.
	WindowTitle(w WindowHandle) (string, error)

	// Focus brings a window to the foreground.
	Focus(w WindowHandle) error

	// WindowForProcess returns the first visible top-level window owned by pid.
	WindowForProcess(pid int) (WindowHandle, error)

	// ConsoleWindow returns the console window attached to this process, or zero.
	ConsoleWindow() WindowHandle
}

// ProcessLauncher spawns processes fire-and-forget.
type ProcessLauncher interface {
	// Launch starts path with args in a new console and returns its PID.
	Launch(path string, args ...string) (int, error)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// Kill terminates a process by PID.
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Name returns the executable name of a running process.
	Name(pid int) (string, error)

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// ConsoleWriter writes text straight into another process's console buffer.
type ConsoleWriter interface {
	WriteConsole(pid int, text string) error
}

// KeyEventSource is a system-wide low-level keyboard subscription. The
// subscription is bound to the thread that calls Run.
type KeyEventSource interface {
	// Run installs the subscription, reports the outcome through ready
	// exactly once, then delivers events to handler until Stop is called.
	// handler runs on the subscription thread and must return quickly.
	Run(handler func(KeyEvent), ready func(error)) error

	// Stop unregisters the subscription and makes Run return.
	Stop() error
}

// Platform bundles every capability the automation core consumes.
type Platform interface {
	CursorController
	KeyboardController
	Clipboard
	WindowManager
	ProcessLauncher
	ConsoleWriter

	// Name identifies the adapter in logs.
	Name() string
}

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function literal to the Clock interface.
type ClockFunc func() time.Time

// Now calls the underlying function.
func (f ClockFunc) Now() time.Time { return f() }
