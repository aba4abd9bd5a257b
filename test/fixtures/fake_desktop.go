// Package fixtures provides in-memory platform fakes for unit and integration tests.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// ErrFake is returned by fake operations configured to fail.
var ErrFake = errors.New("fake platform failure")

// Action is one recorded platform call.
type Action struct {
	Kind  string // "move", "down", "up", "keydown", "keyup", "focus", "launch", "console"
	Point domain.Point
	Key   domain.KeyCode
	Text  string
}

// FakeDesktop implements domain.Platform in memory and records every call.
type FakeDesktop struct {
	mu sync.Mutex

	cursor     domain.Point
	foreground domain.WindowHandle
	rects      map[domain.WindowHandle]domain.Rect
	titles     map[domain.WindowHandle]string
	processWin map[int]domain.WindowHandle
	console    domain.WindowHandle
	nextPID    int

	// ClipboardTexts is consumed one entry per ReadText call; the last
	// entry repeats. An entry of ClipboardBusy fails the read.
	ClipboardTexts []string
	clipboardReads int

	// CopyFromTyped makes ReadText return the address-bar text captured by
	// the last ctrl+C when ClipboardTexts is empty.
	CopyFromTyped bool
	typed         []rune
	selected      bool
	copied        string
	ctrlDown      bool

	FailCursorPos   bool
	FailSetCursor   bool
	FailKeys        bool
	FailLaunch      bool
	FailConsole     bool
	LaunchWindowLag int // WindowForProcess calls before the launched window appears

	windowLookups map[int]int
	actions       []Action
	onKeyDown     func(domain.KeyCode)
}

// ClipboardBusy marks a clipboard read that fails.
const ClipboardBusy = "\x00busy"

// NewFakeDesktop creates a desktop with a single browser window in front.
func NewFakeDesktop() *FakeDesktop {
	browser := domain.WindowHandle(100)
	return &FakeDesktop{
		cursor:        domain.Point{X: 400, Y: 400},
		foreground:    browser,
		rects:         map[domain.WindowHandle]domain.Rect{browser: {Left: 0, Top: 0, Right: 1280, Bottom: 800}},
		titles:        map[domain.WindowHandle]string{browser: "New Tab - Google Chrome"},
		processWin:    make(map[int]domain.WindowHandle),
		windowLookups: make(map[int]int),
		nextPID:       4000,
	}
}

// Name identifies the adapter in logs.
func (f *FakeDesktop) Name() string { return "fake" }

// OnKeyDown registers a hook invoked after every injected key press.
func (f *FakeDesktop) OnKeyDown(fn func(domain.KeyCode)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onKeyDown = fn
}

// SetConsoleWindow attaches a pre-existing console to the fake process.
func (f *FakeDesktop) SetConsoleWindow(w domain.WindowHandle, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.console = w
	f.titles[w] = title
	f.rects[w] = domain.Rect{Right: 640, Bottom: 400}
}

// SetForeground changes the focused window.
func (f *FakeDesktop) SetForeground(w domain.WindowHandle, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foreground = w
	if title != "" {
		f.titles[w] = title
	}
}

// Actions returns a copy of the recorded calls.
func (f *FakeDesktop) Actions() []Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Action, len(f.actions))
	copy(out, f.actions)
	return out
}

// Count returns how many recorded calls have the given kind.
func (f *FakeDesktop) Count(kind string) int {
	n := 0
	for _, a := range f.Actions() {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// PressedKeys returns the key-down codes in order.
func (f *FakeDesktop) PressedKeys() []domain.KeyCode {
	var keys []domain.KeyCode
	for _, a := range f.Actions() {
		if a.Kind == "keydown" {
			keys = append(keys, a.Key)
		}
	}
	return keys
}

// TypedText returns the address-bar text the fake has accumulated.
func (f *FakeDesktop) TypedText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.typed)
}

func (f *FakeDesktop) record(a Action) {
	f.actions = append(f.actions, a)
}

// CursorPos implements domain.CursorController.
func (f *FakeDesktop) CursorPos() (domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCursorPos {
		return domain.Point{}, ErrFake
	}
	return f.cursor, nil
}

// SetCursorPos implements domain.CursorController.
func (f *FakeDesktop) SetCursorPos(p domain.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSetCursor {
		return ErrFake
	}
	f.cursor = p
	f.record(Action{Kind: "move", Point: p})
	return nil
}

// MouseDown implements domain.CursorController.
func (f *FakeDesktop) MouseDown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Action{Kind: "down", Point: f.cursor})
	return nil
}

// MouseUp implements domain.CursorController.
func (f *FakeDesktop) MouseUp() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Action{Kind: "up", Point: f.cursor})
	return nil
}

// KeyDown implements domain.KeyboardController and models a minimal address bar.
func (f *FakeDesktop) KeyDown(code domain.KeyCode) error {
	f.mu.Lock()
	if f.FailKeys {
		f.mu.Unlock()
		return ErrFake
	}
	f.record(Action{Kind: "keydown", Key: code})
	switch {
	case code == domain.KeyControl:
		f.ctrlDown = true
	case f.ctrlDown && code == 'A':
		f.selected = true
	case f.ctrlDown && code == 'C':
		f.copied = string(f.typed)
	case f.ctrlDown:
	case code == domain.KeyDelete || code == domain.KeyBackspace:
		switch {
		case f.selected:
			f.typed = f.typed[:0]
		case code == domain.KeyBackspace && len(f.typed) > 0:
			f.typed = f.typed[:len(f.typed)-1]
		}
		f.selected = false
	case code >= 'A' && code <= 'Z':
		f.insert(rune(code - 'A' + 'a'))
	case code == domain.KeyPeriod:
		f.insert('.')
	case code == domain.KeySpace:
		f.insert(' ')
	default:
		f.selected = false
	}
	hook := f.onKeyDown
	f.mu.Unlock()

	if hook != nil {
		hook(code)
	}
	return nil
}

// insert types r, replacing the selection if there is one.
func (f *FakeDesktop) insert(r rune) {
	if f.selected {
		f.typed = f.typed[:0]
		f.selected = false
	}
	f.typed = append(f.typed, r)
}

// SetAddressBar replaces the modeled address-bar text.
func (f *FakeDesktop) SetAddressBar(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = []rune(text)
	f.selected = false
}

// KeyUp implements domain.KeyboardController.
func (f *FakeDesktop) KeyUp(code domain.KeyCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailKeys {
		return ErrFake
	}
	if code == domain.KeyControl {
		f.ctrlDown = false
	}
	f.record(Action{Kind: "keyup", Key: code})
	return nil
}

// ReadText implements domain.Clipboard.
func (f *FakeDesktop) ReadText() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ClipboardTexts) == 0 {
		if f.CopyFromTyped {
			f.clipboardReads++
			return f.copied, nil
		}
		return "", ErrFake
	}
	idx := f.clipboardReads
	if idx >= len(f.ClipboardTexts) {
		idx = len(f.ClipboardTexts) - 1
	}
	f.clipboardReads++
	text := f.ClipboardTexts[idx]
	if text == ClipboardBusy {
		return "", ErrFake
	}
	return text, nil
}

// ClipboardReads returns how many times the clipboard was read.
func (f *FakeDesktop) ClipboardReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clipboardReads
}

// ForegroundWindow implements domain.WindowManager.
func (f *FakeDesktop) ForegroundWindow() domain.WindowHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

// WindowRect implements domain.WindowManager.
func (f *FakeDesktop) WindowRect(w domain.WindowHandle) (domain.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rects[w]
	if !ok {
		return domain.Rect{}, fmt.Errorf("window %d: %w", w, ErrFake)
	}
	return r, nil
}

// WindowTitle implements domain.WindowManager.
func (f *FakeDesktop) WindowTitle(w domain.WindowHandle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[w], nil
}

// Focus implements domain.WindowManager.
func (f *FakeDesktop) Focus(w domain.WindowHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rects[w]; !ok {
		return fmt.Errorf("focus window %d: %w", w, ErrFake)
	}
	f.foreground = w
	f.record(Action{Kind: "focus", Text: f.titles[w]})
	return nil
}

// WindowForProcess implements domain.WindowManager.
func (f *FakeDesktop) WindowForProcess(pid int) (domain.WindowHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windowLookups[pid]++
	w, ok := f.processWin[pid]
	if !ok || f.windowLookups[pid] <= f.LaunchWindowLag {
		return 0, nil
	}
	return w, nil
}

// ConsoleWindow implements domain.WindowManager.
func (f *FakeDesktop) ConsoleWindow() domain.WindowHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.console
}

// Launch implements domain.ProcessLauncher. The new process gets a
// terminal window once LaunchWindowLag lookups have passed.
func (f *FakeDesktop) Launch(path string, args ...string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailLaunch {
		return 0, ErrFake
	}
	f.nextPID++
	pid := f.nextPID
	w := domain.WindowHandle(pid)
	f.processWin[pid] = w
	f.rects[w] = domain.Rect{Right: 640, Bottom: 400}
	f.titles[w] = "navpilot paused"
	f.record(Action{Kind: "launch", Text: path})
	return pid, nil
}

// WriteConsole implements domain.ConsoleWriter.
func (f *FakeDesktop) WriteConsole(pid int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailConsole {
		return ErrFake
	}
	f.record(Action{Kind: "console", Text: text})
	return nil
}

var _ domain.Platform = (*FakeDesktop)(nil)

// InstantWaiter returns immediately from every sleep, honoring only the
// context, and records requested durations.
type InstantWaiter struct {
	mu     sync.Mutex
	Slept  []time.Duration
	Cancel func() bool // Optional: return true to cancel the sleep
}

// Sleep records d and returns without blocking.
func (w *InstantWaiter) Sleep(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.Slept = append(w.Slept, d)
	cancel := w.Cancel
	w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if cancel != nil && cancel() {
		return context.Canceled
	}
	return nil
}

// Total returns the summed requested sleep time.
func (w *InstantWaiter) Total() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total time.Duration
	for _, d := range w.Slept {
		total += d
	}
	return total
}
