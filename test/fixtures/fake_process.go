package fixtures

import (
	"os"
	"sync"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// FakeProcessManager implements domain.ProcessManager. Every PID counts as
// running until it is killed or listed in Exited.
type FakeProcessManager struct {
	mu      sync.Mutex
	killed  []int
	Exited  map[int]bool
	KillErr error
}

// NewFakeProcessManager creates an empty process manager.
func NewFakeProcessManager() *FakeProcessManager {
	return &FakeProcessManager{Exited: make(map[int]bool)}
}

// Kill implements domain.ProcessManager.
func (m *FakeProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.KillErr != nil {
		return m.KillErr
	}
	m.killed = append(m.killed, pid)
	m.Exited[pid] = true
	return nil
}

// IsRunning implements domain.ProcessManager.
func (m *FakeProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Exited[pid]
}

// Name implements domain.ProcessManager.
func (m *FakeProcessManager) Name(pid int) (string, error) {
	return "cmd.exe", nil
}

// GetCurrentPID implements domain.ProcessManager.
func (m *FakeProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

// Killed returns the PIDs killed so far.
func (m *FakeProcessManager) Killed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.killed))
	copy(out, m.killed)
	return out
}

var _ domain.ProcessManager = (*FakeProcessManager)(nil)
