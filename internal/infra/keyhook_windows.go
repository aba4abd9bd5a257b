//go:build windows

package infra

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

var (
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetModuleHandleW    = kernel32.NewProc("GetModuleHandleW")
)

const (
	whKeyboardLL  = 13
	hcAction      = 0
	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmSysKeyDown  = 0x0104
	llkhfInjected = 0x10
)

// kbdLLHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
	Private uint32
}

var (
	hookCallbackOnce sync.Once
	hookCallback     uintptr
	activeHook       atomic.Pointer[KeyHook]
)

// KeyHook implements domain.KeyEventSource with a WH_KEYBOARD_LL hook. Only
// one hook may run per process.
type KeyHook struct {
	handler  func(domain.KeyEvent)
	threadID atomic.Uint32
	stopped  atomic.Bool
}

func newKeyEventSource() (domain.KeyEventSource, error) {
	return &KeyHook{}, nil
}

// Run implements domain.KeyEventSource. It locks the calling goroutine to
// its OS thread, since the hook is delivered through that thread's queue.
func (k *KeyHook) Run(handler func(domain.KeyEvent), ready func(error)) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !activeHook.CompareAndSwap(nil, k) {
		err := errors.New("keyboard hook already running")
		ready(err)
		return err
	}
	defer activeHook.Store(nil)

	k.handler = handler
	k.threadID.Store(windows.GetCurrentThreadId())
	hookCallbackOnce.Do(func() {
		hookCallback = windows.NewCallback(lowLevelKeyboardProc)
	})

	module, _, _ := procGetModuleHandleW.Call(0)
	hook, _, err := procSetWindowsHookExW.Call(whKeyboardLL, hookCallback, module, 0)
	if hook == 0 {
		err = fmt.Errorf("SetWindowsHookExW: %w", err)
		ready(err)
		return err
	}
	defer procUnhookWindowsHookEx.Call(hook)

	ready(nil)

	var m msg
	for !k.stopped.Load() {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case 0:
			return nil
		case -1:
			return fmt.Errorf("GetMessageW: %w", err)
		}
	}
	return nil
}

// Stop implements domain.KeyEventSource by posting WM_QUIT to the hook thread.
func (k *KeyHook) Stop() error {
	k.stopped.Store(true)
	tid := k.threadID.Load()
	if tid == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt < 5; attempt++ {
		r, _, callErr := procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
		if r != 0 {
			return nil
		}
		// The queue may not exist yet if Run has not reached GetMessageW.
		err = callErr
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("PostThreadMessageW: %w", err)
}

func lowLevelKeyboardProc(nCode int, wParam, lParam uintptr) uintptr {
	if k := activeHook.Load(); nCode == hcAction && k != nil && k.handler != nil {
		kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
		k.handler(domain.KeyEvent{
			Code:     domain.KeyCode(kb.VkCode),
			Down:     wParam == wmKeyDown || wParam == wmSysKeyDown,
			Injected: kb.Flags&llkhfInjected != 0,
			At:       time.Now(),
		})
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

var _ domain.KeyEventSource = (*KeyHook)(nil)
