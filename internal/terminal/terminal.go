// Package terminal provides the console window shown while the automation
// is paused.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// ErrAttachTimeout indicates a spawned terminal never showed a window.
var ErrAttachTimeout = errors.New("terminal window did not appear in time")

// Config describes how to spawn a terminal when none is attached.
type Config struct {
	Path          string
	Args          []string
	AttachTimeout time.Duration
	AttachPoll    time.Duration
}

// Manager acquires and releases the pause terminal.
type Manager struct {
	windows   domain.WindowManager
	launcher  domain.ProcessLauncher
	processes domain.ProcessManager
	config    Config
	logger    *zap.Logger
}

// NewManager creates a terminal manager.
func NewManager(
	windows domain.WindowManager,
	launcher domain.ProcessLauncher,
	processes domain.ProcessManager,
	config Config,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		windows:   windows,
		launcher:  launcher,
		processes: processes,
		config:    config,
		logger:    logger,
	}
}

// Acquire focuses the console this process is attached to, or spawns a new
// terminal and waits (bounded by AttachTimeout) for its window.
//
// On ErrAttachTimeout the returned handle is still non-nil so the caller
// can release the spawned process.
func (m *Manager) Acquire(ctx context.Context) (*domain.TerminalHandle, error) {
	if w := m.windows.ConsoleWindow(); w != 0 {
		handle := &domain.TerminalHandle{
			Window:    w,
			PID:       m.processes.GetCurrentPID(),
			Ownership: domain.TerminalPreExisting,
			CreatedAt: time.Now(),
		}
		if err := m.windows.Focus(w); err != nil {
			m.logger.Warn("failed to focus attached console", zap.Error(err))
		}
		m.logger.Debug("using attached console", zap.Uint64("window", uint64(w)))
		return handle, nil
	}

	pid, err := m.launcher.Launch(m.config.Path, m.config.Args...)
	if err != nil {
		return nil, fmt.Errorf("spawn terminal %s: %w", m.config.Path, err)
	}
	handle := &domain.TerminalHandle{
		PID:       pid,
		Ownership: domain.TerminalLaunchedByApp,
		CreatedAt: time.Now(),
	}
	m.logger.Info("spawned pause terminal", zap.Int("pid", pid))

	w, err := m.waitForWindow(ctx, pid)
	if err != nil {
		return handle, err
	}
	handle.Window = w
	if err := m.windows.Focus(w); err != nil {
		m.logger.Warn("failed to focus pause terminal", zap.Error(err))
	}
	return handle, nil
}

func (m *Manager) waitForWindow(ctx context.Context, pid int) (domain.WindowHandle, error) {
	deadline := time.Now().Add(m.config.AttachTimeout)
	ticker := time.NewTicker(m.config.AttachPoll)
	defer ticker.Stop()

	for {
		w, err := m.windows.WindowForProcess(pid)
		if err != nil {
			m.logger.Debug("window lookup failed", zap.Int("pid", pid), zap.Error(err))
		}
		if w != 0 {
			return w, nil
		}
		if !time.Now().Before(deadline) {
			return 0, fmt.Errorf("%w: pid %d after %s", ErrAttachTimeout, pid, m.config.AttachTimeout)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release kills the terminal if navpilot spawned it. Pre-existing consoles
// are never touched.
func (m *Manager) Release(h *domain.TerminalHandle) {
	if !h.Owned() || h.PID == 0 {
		return
	}
	if !m.processes.IsRunning(h.PID) {
		return
	}

	name, _ := m.processes.Name(h.PID)
	if err := m.processes.Kill(h.PID); err != nil {
		m.logger.Warn("failed to close pause terminal",
			zap.Int("pid", h.PID),
			zap.Error(err))
		return
	}
	m.logger.Info("closed pause terminal",
		zap.Int("pid", h.PID),
		zap.String("process", name))
}
