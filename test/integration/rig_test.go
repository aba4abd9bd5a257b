//go:build integration

package integration

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/config"
	"github.com/eliteGoblin/navpilot/internal/daemon"
	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/hook"
	"github.com/eliteGoblin/navpilot/internal/keys"
	"github.com/eliteGoblin/navpilot/internal/motion"
	"github.com/eliteGoblin/navpilot/internal/pause"
	"github.com/eliteGoblin/navpilot/internal/state"
	"github.com/eliteGoblin/navpilot/internal/terminal"
	"github.com/eliteGoblin/navpilot/internal/usecase"
	"github.com/eliteGoblin/navpilot/internal/verify"
	"github.com/eliteGoblin/navpilot/test/fixtures"
)

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

// rig wires the real automation core to the in-memory desktop.
type rig struct {
	cfg        config.Config
	desktop    *fixtures.FakeDesktop
	source     *fixtures.FakeKeySource
	processes  *fixtures.FakeProcessManager
	shared     *state.Shared
	controller *hook.Controller
	loop       *daemon.ControlLoop
	out        *syncBuffer

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.Cadence = 30 * time.Millisecond
	cfg.Slice = time.Millisecond
	cfg.Motion.Steps = 8
	cfg.Motion.MinStepDelay = time.Millisecond
	cfg.Motion.MaxStepDelay = 2 * time.Millisecond
	cfg.Keys = config.KeysConfig{
		MinHold: time.Millisecond, MaxHold: 2 * time.Millisecond,
		MinInterKey: time.Millisecond, MaxInterKey: 2 * time.Millisecond,
		MinModifierGap: time.Millisecond, MaxModifierGap: 2 * time.Millisecond,
	}
	cfg.Verify.ClipboardInterval = time.Millisecond
	cfg.Verify.CopySettle = time.Millisecond
	cfg.Hook.Debounce = 20 * time.Millisecond
	cfg.Terminal.AttachTimeout = 300 * time.Millisecond
	cfg.Terminal.AttachPoll = time.Millisecond
	cfg.AddressBar.ClickSettle = time.Millisecond
	return cfg
}

func newRig(tweak func(*config.Config)) *rig {
	cfg := fastConfig()
	if tweak != nil {
		tweak(&cfg)
	}

	r := &rig{
		cfg:       cfg,
		desktop:   fixtures.NewFakeDesktop(),
		source:    fixtures.NewFakeKeySource(),
		processes: fixtures.NewFakeProcessManager(),
		shared:    state.New(),
		out:       &syncBuffer{},
	}
	r.desktop.CopyFromTyped = true
	logger := zap.NewNop()

	cursor := state.NewCursor(r.shared)
	sleeper := pause.NewSleeper(cfg.Slice, daemon.Interrupted(r.shared, cursor))
	timing := keys.Timing{
		MinHold: cfg.Keys.MinHold, MaxHold: cfg.Keys.MaxHold,
		MinInterKey: cfg.Keys.MinInterKey, MaxInterKey: cfg.Keys.MaxInterKey,
		MinModifierGap: cfg.Keys.MinModifierGap, MaxModifierGap: cfg.Keys.MaxModifierGap,
	}
	typist := keys.NewTypist(r.desktop, sleeper, timing, nil)
	echoTypist := keys.NewTypist(r.desktop, pause.NewSleeper(cfg.Slice, nil), timing, nil)

	announcer := daemon.NewAnnouncer(r.shared, r.desktop, r.desktop, echoTypist, r.out, logger)
	r.controller = hook.NewController(r.source, r.shared, hook.Config{
		Debounce:       cfg.Hook.Debounce,
		InstallTimeout: cfg.Hook.InstallTimeout,
	}, nil, announcer.Announce, logger)
	verifier := verify.NewVerifier(typist, r.desktop, sleeper, verify.Options{
		ClipboardAttempts: cfg.Verify.ClipboardAttempts,
		ClipboardInterval: cfg.Verify.ClipboardInterval,
		CopySettle:        cfg.Verify.CopySettle,
	}, r.controller.NoteSyntheticEscape, logger)
	synth := motion.NewSynthesizer(motion.Options{
		Steps:        cfg.Motion.Steps,
		MinStepDelay: cfg.Motion.MinStepDelay,
		MaxStepDelay: cfg.Motion.MaxStepDelay,
		MaxArcHeight: cfg.Motion.MaxArcHeight,
		Jitter:       cfg.Motion.Jitter,
	}, nil)
	navigator := usecase.NewNavigator(r.desktop, r.desktop, synth, typist, verifier, sleeper, usecase.NavigatorConfig{
		TargetURL:   cfg.TargetURL,
		OffsetX:     cfg.AddressBar.OffsetX,
		OffsetY:     cfg.AddressBar.OffsetY,
		ClickSettle: cfg.AddressBar.ClickSettle,
	}, r.controller.NoteSyntheticEscape, logger)
	terminals := terminal.NewManager(r.desktop, r.desktop, r.processes, terminal.Config{
		Path:          cfg.Terminal.Path,
		Args:          cfg.Terminal.Args,
		AttachTimeout: cfg.Terminal.AttachTimeout,
		AttachPoll:    cfg.Terminal.AttachPoll,
	}, logger)

	r.loop = daemon.NewControlLoop(daemon.LoopConfig{
		TargetURL: cfg.TargetURL,
		Cadence:   cfg.Cadence,
		Slice:     cfg.Slice,
	}, r.shared, cursor, sleeper, navigator, terminals, r.controller, announcer, logger)
	return r
}

func (r *rig) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.err = r.loop.Run(ctx)
	}()
}

// wait returns the loop's result, or context.DeadlineExceeded if it is
// still running after timeout.
func (r *rig) wait(timeout time.Duration) error {
	select {
	case <-r.done:
		return r.err
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

// stop cancels a loop that is still running.
func (r *rig) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	_ = r.wait(2 * time.Second)
}

// submitted counts navigation cycles that reached Enter.
func (r *rig) submitted() int {
	n := 0
	for _, k := range r.desktop.PressedKeys() {
		if k == domain.KeyEnter {
			n++
		}
	}
	return n
}
