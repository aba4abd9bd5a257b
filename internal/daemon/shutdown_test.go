package daemon

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/keys"
	"github.com/eliteGoblin/navpilot/internal/state"
	"github.com/eliteGoblin/navpilot/test/fixtures"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestAnnouncer() (*Announcer, *fixtures.FakeDesktop, *state.Shared, *syncBuffer) {
	desktop := fixtures.NewFakeDesktop()
	shared := state.New()
	out := &syncBuffer{}
	typist := keys.NewTypist(desktop, &fixtures.InstantWaiter{}, keys.Timing{}, nil)
	return NewAnnouncer(shared, desktop, desktop, typist, out, zap.NewNop()), desktop, shared, out
}

func ownedTerminal() *domain.TerminalHandle {
	return &domain.TerminalHandle{Window: 4001, PID: 4001, Ownership: domain.TerminalLaunchedByApp}
}

func TestDeliver_WritesToOwnedTerminal(t *testing.T) {
	a, desktop, shared, out := newTestAnnouncer()

	delivery := a.Deliver(context.Background(), ownedTerminal())

	assert.Equal(t, DeliveryConsole, delivery)
	assert.Equal(t, 1, desktop.Count("console"))
	assert.Empty(t, out.String())
	assert.True(t, shared.Delivered())
	assert.Zero(t, desktop.Count("keydown"))
}

func TestDeliver_EchoesIntoFocusedTerminal(t *testing.T) {
	a, desktop, _, out := newTestAnnouncer()
	desktop.FailConsole = true
	desktop.SetForeground(domain.WindowHandle(300), `C:\Windows\system32\cmd.exe`)

	delivery := a.Deliver(context.Background(), ownedTerminal())

	assert.Equal(t, DeliveryEcho, delivery)
	assert.Empty(t, out.String())
	pressed := desktop.PressedKeys()
	assert.Equal(t, []domain.KeyCode{'E', 'C', 'H', 'O', domain.KeySpace}, pressed[:5])
	assert.Equal(t, domain.KeyEnter, pressed[len(pressed)-1])
}

func TestDeliver_SkipsEchoIntoNonTerminal(t *testing.T) {
	a, desktop, _, out := newTestAnnouncer()

	delivery := a.Deliver(context.Background(), nil)

	assert.Equal(t, DeliveryLocal, delivery)
	assert.Equal(t, ShutdownMessage+"\n", out.String())
	assert.Zero(t, desktop.Count("keydown"), "browser window must not receive keystrokes")
}

func TestDeliver_SkipsEchoIntoOwnConsole(t *testing.T) {
	a, desktop, _, out := newTestAnnouncer()
	desktop.SetConsoleWindow(domain.WindowHandle(7), "Windows PowerShell")
	desktop.SetForeground(domain.WindowHandle(7), "")

	delivery := a.Deliver(context.Background(), nil)

	assert.Equal(t, DeliveryLocal, delivery)
	assert.Contains(t, out.String(), ShutdownMessage)
	assert.Zero(t, desktop.Count("keydown"))
}

func TestDeliver_OnlyOnce(t *testing.T) {
	a, desktop, _, _ := newTestAnnouncer()

	first := a.Deliver(context.Background(), ownedTerminal())
	second := a.Deliver(context.Background(), ownedTerminal())

	assert.Equal(t, DeliveryConsole, first)
	assert.Equal(t, DeliveryNone, second)
	assert.Equal(t, 1, desktop.Count("console"))
}

// blockingWriter stalls every write until released.
type blockingWriter struct {
	release chan struct{}
	writes  chan string
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.writes <- string(p)
	<-w.release
	return len(p), nil
}

func TestAnnounce_DoesNotWrite(t *testing.T) {
	desktop := fixtures.NewFakeDesktop()
	shared := state.New()
	out := &blockingWriter{release: make(chan struct{}), writes: make(chan string, 1)}
	typist := keys.NewTypist(desktop, &fixtures.InstantWaiter{}, keys.Timing{}, nil)
	a := NewAnnouncer(shared, desktop, desktop, typist, out, zap.NewNop())

	done := make(chan struct{})
	go func() {
		a.Announce()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Announce blocked on output")
	}
	assert.True(t, a.Requested())
	assert.False(t, shared.Delivered())
	assert.Empty(t, out.writes)
	assert.Zero(t, desktop.Count("console"))
	close(out.release)
}

func TestDeliver_PrintsForPreExistingConsole(t *testing.T) {
	a, desktop, shared, out := newTestAnnouncer()
	desktop.SetForeground(9001, "Windows PowerShell")

	a.Announce()
	delivery := a.Deliver(context.Background(), &domain.TerminalHandle{Window: 7, Ownership: domain.TerminalPreExisting})

	assert.Equal(t, DeliveryLocal, delivery)
	assert.Equal(t, ShutdownMessage+"\n", out.String())
	assert.Zero(t, desktop.Count("console"))
	assert.Empty(t, desktop.TypedText())
	assert.True(t, shared.Printed())
}

func TestDeliver_ConcurrentCallersPrintOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		a, _, _, out := newTestAnnouncer()
		h := &domain.TerminalHandle{Window: 7, Ownership: domain.TerminalPreExisting}

		var wg sync.WaitGroup
		wg.Add(2)
		for n := 0; n < 2; n++ {
			go func() {
				defer wg.Done()
				a.Announce()
				a.Deliver(context.Background(), h)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, strings.Count(out.String(), ShutdownMessage))
	}
}

func TestLooksLikeTerminal(t *testing.T) {
	tests := []struct {
		title    string
		expected bool
	}{
		{`C:\Windows\system32\cmd.exe`, true},
		{"Command Prompt", true},
		{"Windows PowerShell", true},
		{"Windows Terminal", true},
		{"navpilot paused", true},
		{"New Tab - Google Chrome", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, looksLikeTerminal(tt.title))
		})
	}
}
