package daemon

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/state"
	"github.com/eliteGoblin/navpilot/internal/verify"
)

const (
	// ShutdownMessage is shown once when the user exits with Escape.
	ShutdownMessage = "Escape pressed twice. navpilot stopped."

	// echoMessage is typed into a foreign terminal, so it only uses
	// characters the typist can map plus spaces.
	echoMessage = "navpilot stopped."
)

// Delivery names the strategy that made the shutdown message visible.
type Delivery string

const (
	DeliveryNone    Delivery = ""
	DeliveryConsole Delivery = "console" // Written into the owned pause terminal
	DeliveryEcho    Delivery = "echo"    // Typed into the focused terminal
	DeliveryLocal   Delivery = "local"   // Printed on our own output
)

// terminalTitles are title fragments of windows that accept an echo command.
var terminalTitles = []string{
	"cmd.exe",
	"command prompt",
	"powershell",
	"terminal",
	"navpilot",
}

// Announcer makes the shutdown message visible exactly once per run.
type Announcer struct {
	shared  *state.Shared
	console domain.ConsoleWriter
	windows domain.WindowManager
	keys    verify.Keyer
	out     io.Writer
	logger  *zap.Logger

	requested atomic.Bool
}

// NewAnnouncer creates an announcer. keys must not be cancelled by the
// automation state, since echoing happens after the state reached Exiting.
func NewAnnouncer(
	shared *state.Shared,
	console domain.ConsoleWriter,
	windows domain.WindowManager,
	k verify.Keyer,
	out io.Writer,
	logger *zap.Logger,
) *Announcer {
	return &Announcer{
		shared:  shared,
		console: console,
		windows: windows,
		keys:    k,
		out:     out,
		logger:  logger,
	}
}

// Announce runs on the hook thread when the exit press lands. It only
// flags the request; the control loop does the writing in Deliver, so the
// hook callback never blocks on output.
func (a *Announcer) Announce() {
	a.requested.Store(true)
}

// Requested reports whether the hook saw the exit press.
func (a *Announcer) Requested() bool {
	return a.requested.Load()
}

// Deliver tries each strategy in order and stops at the first success:
// write into the owned terminal, echo into a focused terminal window, then
// print locally. A pre-existing console is our own output, so it gets the
// local print directly. It returns DeliveryNone when the message was
// already delivered by another caller.
func (a *Announcer) Deliver(ctx context.Context, h *domain.TerminalHandle) Delivery {
	if !a.shared.MarkDelivered() {
		return DeliveryNone
	}

	if h != nil && h.Ownership == domain.TerminalPreExisting {
		a.printLocal()
		return DeliveryLocal
	}

	if h.Owned() && h.PID != 0 {
		err := a.console.WriteConsole(h.PID, "\r\n"+ShutdownMessage+"\r\n")
		if err == nil {
			return DeliveryConsole
		}
		a.logger.Debug("console write failed", zap.Int("pid", h.PID), zap.Error(err))
	}

	if a.echo(ctx) {
		return DeliveryEcho
	}

	a.printLocal()
	return DeliveryLocal
}

// echo types the message as an echo command into the foreground window
// when it looks like a terminal other than our own console.
func (a *Announcer) echo(ctx context.Context) bool {
	w := a.windows.ForegroundWindow()
	if w == 0 || w == a.windows.ConsoleWindow() {
		return false
	}
	title, err := a.windows.WindowTitle(w)
	if err != nil || !looksLikeTerminal(title) {
		return false
	}

	for i, word := range strings.Fields("echo " + echoMessage) {
		if i > 0 {
			if err := a.keys.Press(ctx, domain.KeySpace); err != nil {
				a.logger.Debug("echo failed", zap.Error(err))
				return false
			}
		}
		if _, err := a.keys.Type(ctx, word); err != nil {
			a.logger.Debug("echo failed", zap.Error(err))
			return false
		}
	}
	if err := a.keys.Press(ctx, domain.KeyEnter); err != nil {
		a.logger.Debug("echo failed", zap.Error(err))
		return false
	}
	a.logger.Debug("echoed shutdown message", zap.String("window", title))
	return true
}

func (a *Announcer) printLocal() {
	if !a.shared.MarkPrinted() {
		return
	}
	fmt.Fprintln(a.out, ShutdownMessage)
}

func looksLikeTerminal(title string) bool {
	title = strings.ToLower(title)
	for _, fragment := range terminalTitles {
		if strings.Contains(title, fragment) {
			return true
		}
	}
	return false
}
