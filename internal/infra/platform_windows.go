//go:build windows

package infra

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/atotto/clipboard"
	"golang.org/x/sys/windows"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetProcessDPIAware       = user32.NewProc("SetProcessDPIAware")
	procGetCursorPos             = user32.NewProc("GetCursorPos")
	procSetCursorPos             = user32.NewProc("SetCursorPos")
	procSendInput                = user32.NewProc("SendInput")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procShowWindow               = user32.NewProc("ShowWindow")
	procIsIconic                 = user32.NewProc("IsIconic")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")

	procGetConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	procAttachConsole    = kernel32.NewProc("AttachConsole")
	procFreeConsole      = kernel32.NewProc("FreeConsole")
)

const (
	inputMouse         = 0
	inputKeyboard      = 1
	mouseEventLeftDown = 0x0002
	mouseEventLeftUp   = 0x0004
	keyEventKeyUp      = 0x0002
	vkMenu             = 0x12
	swRestore          = 9
)

// ErrConsoleAttached means this process already owns a console and cannot
// attach to another one.
var ErrConsoleAttached = errors.New("process already attached to a console")

type point struct {
	X, Y int32
}

type rect struct {
	Left, Top, Right, Bottom int32
}

// MOUSEINPUT, the largest member of the INPUT union.
type mouseInput struct {
	Dx, Dy    int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// KEYBDINPUT
type keybdInput struct {
	Vk, Scan  uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// mouseEventInput and keyEventInput are INPUT with the union filled by one
// member. Both have the size SendInput expects as cbSize.
type mouseEventInput struct {
	Type uint32
	Mi   mouseInput
}

type keyEventInput struct {
	Type uint32
	Ki   keybdInput
	_    [unsafe.Sizeof(mouseInput{}) - unsafe.Sizeof(keybdInput{})]byte
}

// sendInput injects one event and fails unless Windows accepted it.
// Injection blocked by UIPI is reported the same way.
func sendInput(in unsafe.Pointer, size uintptr) error {
	r, _, err := procSendInput.Call(1, uintptr(in), size)
	if r != 1 {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

// WindowsPlatform implements domain.Platform with user32 and kernel32 calls.
type WindowsPlatform struct{}

func newPlatform() (domain.Platform, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("load user32: %w", err)
	}
	// Work in physical pixels so window bounds and cursor agree.
	_, _, _ = procSetProcessDPIAware.Call()
	return &WindowsPlatform{}, nil
}

// Name identifies the adapter in logs.
func (p *WindowsPlatform) Name() string { return "windows" }

// CursorPos implements domain.CursorController.
func (p *WindowsPlatform) CursorPos() (domain.Point, error) {
	var pt point
	r, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if r == 0 {
		return domain.Point{}, fmt.Errorf("GetCursorPos: %w", err)
	}
	return domain.Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

// SetCursorPos implements domain.CursorController.
func (p *WindowsPlatform) SetCursorPos(pt domain.Point) error {
	r, _, err := procSetCursorPos.Call(uintptr(int32(pt.X)), uintptr(int32(pt.Y)))
	if r == 0 {
		return fmt.Errorf("SetCursorPos(%d,%d): %w", pt.X, pt.Y, err)
	}
	return nil
}

// MouseDown implements domain.CursorController.
func (p *WindowsPlatform) MouseDown() error {
	return mouseButton(mouseEventLeftDown)
}

// MouseUp implements domain.CursorController.
func (p *WindowsPlatform) MouseUp() error {
	return mouseButton(mouseEventLeftUp)
}

func mouseButton(flags uint32) error {
	in := mouseEventInput{Type: inputMouse, Mi: mouseInput{Flags: flags}}
	if err := sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in)); err != nil {
		return fmt.Errorf("mouse button 0x%X: %w", flags, err)
	}
	return nil
}

// KeyDown implements domain.KeyboardController.
func (p *WindowsPlatform) KeyDown(code domain.KeyCode) error {
	return keybd(code, 0)
}

// KeyUp implements domain.KeyboardController.
func (p *WindowsPlatform) KeyUp(code domain.KeyCode) error {
	return keybd(code, keyEventKeyUp)
}

func keybd(code domain.KeyCode, flags uint32) error {
	if code == 0 || code > 0xFE {
		return fmt.Errorf("invalid virtual key 0x%X", uint16(code))
	}
	in := keyEventInput{Type: inputKeyboard, Ki: keybdInput{Vk: uint16(code), Flags: flags}}
	if err := sendInput(unsafe.Pointer(&in), unsafe.Sizeof(in)); err != nil {
		return fmt.Errorf("key 0x%X: %w", uint16(code), err)
	}
	return nil
}

// ReadText implements domain.Clipboard.
func (p *WindowsPlatform) ReadText() (string, error) {
	return clipboard.ReadAll()
}

// ForegroundWindow implements domain.WindowManager.
func (p *WindowsPlatform) ForegroundWindow() domain.WindowHandle {
	r, _, _ := procGetForegroundWindow.Call()
	return domain.WindowHandle(r)
}

// WindowRect implements domain.WindowManager.
func (p *WindowsPlatform) WindowRect(w domain.WindowHandle) (domain.Rect, error) {
	var rc rect
	r, _, err := procGetWindowRect.Call(uintptr(w), uintptr(unsafe.Pointer(&rc)))
	if r == 0 {
		return domain.Rect{}, fmt.Errorf("GetWindowRect: %w", err)
	}
	return domain.Rect{
		Left:   int(rc.Left),
		Top:    int(rc.Top),
		Right:  int(rc.Right),
		Bottom: int(rc.Bottom),
	}, nil
}

// WindowTitle implements domain.WindowManager.
func (p *WindowsPlatform) WindowTitle(w domain.WindowHandle) (string, error) {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(w))
	if n == 0 {
		return "", nil
	}
	buf := make([]uint16, n+1)
	r, _, err := procGetWindowTextW.Call(uintptr(w), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r == 0 {
		return "", fmt.Errorf("GetWindowTextW: %w", err)
	}
	return windows.UTF16ToString(buf[:r]), nil
}

// Focus implements domain.WindowManager. Windows refuses foreground changes
// from background processes unless the last input came from them, so a
// failed attempt is retried after an Alt tap.
func (p *WindowsPlatform) Focus(w domain.WindowHandle) error {
	if w == 0 {
		return errors.New("focus: no window")
	}
	if iconic, _, _ := procIsIconic.Call(uintptr(w)); iconic != 0 {
		_, _, _ = procShowWindow.Call(uintptr(w), swRestore)
	}
	if r, _, _ := procSetForegroundWindow.Call(uintptr(w)); r != 0 {
		return nil
	}

	_ = keybd(vkMenu, 0)
	_ = keybd(vkMenu, keyEventKeyUp)
	r, _, err := procSetForegroundWindow.Call(uintptr(w))
	if r == 0 {
		return fmt.Errorf("SetForegroundWindow: %w", err)
	}
	return nil
}

var (
	enumOnce     sync.Once
	enumCallback uintptr
	enumMu       sync.Mutex
	enumPID      uint32
	enumFound    uintptr
)

// WindowForProcess implements domain.WindowManager.
func (p *WindowsPlatform) WindowForProcess(pid int) (domain.WindowHandle, error) {
	enumOnce.Do(func() {
		enumCallback = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
			var owner uint32
			_, _, _ = procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&owner)))
			if owner != enumPID {
				return 1
			}
			if visible, _, _ := procIsWindowVisible.Call(hwnd); visible == 0 {
				return 1
			}
			enumFound = hwnd
			return 0
		})
	})

	enumMu.Lock()
	defer enumMu.Unlock()
	enumPID = uint32(pid)
	enumFound = 0
	// EnumWindows reports failure when the callback stops early.
	_, _, _ = procEnumWindows.Call(enumCallback, 0)
	return domain.WindowHandle(enumFound), nil
}

// ConsoleWindow implements domain.WindowManager.
func (p *WindowsPlatform) ConsoleWindow() domain.WindowHandle {
	r, _, _ := procGetConsoleWindow.Call()
	return domain.WindowHandle(r)
}

// Launch implements domain.ProcessLauncher. The child gets its own console
// and is not waited on.
func (p *WindowsPlatform) Launch(path string, args ...string) (int, error) {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_CONSOLE,
	}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// WriteConsole implements domain.ConsoleWriter by briefly attaching to the
// console of pid and writing to its screen buffer.
func (p *WindowsPlatform) WriteConsole(pid int, text string) error {
	if p.ConsoleWindow() != 0 {
		return ErrConsoleAttached
	}
	if pid == os.Getpid() {
		return ErrConsoleAttached
	}

	r, _, err := procAttachConsole.Call(uintptr(uint32(pid)))
	if r == 0 {
		return fmt.Errorf("AttachConsole(%d): %w", pid, err)
	}
	defer procFreeConsole.Call()

	name, err := windows.UTF16PtrFromString("CONOUT$")
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return fmt.Errorf("open console output: %w", err)
	}
	defer windows.CloseHandle(h)

	var written uint32
	if err := windows.WriteFile(h, []byte(text), &written, nil); err != nil {
		return fmt.Errorf("write console: %w", err)
	}
	// Give the console host a moment to render before we detach.
	time.Sleep(20 * time.Millisecond)
	return nil
}

var _ domain.Platform = (*WindowsPlatform)(nil)
