package fixtures

import (
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// ErrNotListening is returned by Emit before Run has installed a handler.
var ErrNotListening = errors.New("fake key source is not listening")

// FakeKeySource implements domain.KeyEventSource. Events are delivered
// synchronously on the caller's goroutine through Emit.
type FakeKeySource struct {
	InstallErr error

	mu       sync.Mutex
	handler  func(domain.KeyEvent)
	stop     chan struct{}
	stopOnce sync.Once
	stops    int
	runs     int
}

// NewFakeKeySource creates a source that installs successfully.
func NewFakeKeySource() *FakeKeySource {
	return &FakeKeySource{stop: make(chan struct{})}
}

// Run implements domain.KeyEventSource.
func (s *FakeKeySource) Run(handler func(domain.KeyEvent), ready func(error)) error {
	s.mu.Lock()
	s.runs++
	if s.InstallErr != nil {
		err := s.InstallErr
		s.mu.Unlock()
		ready(err)
		return err
	}
	s.handler = handler
	s.mu.Unlock()

	ready(nil)
	<-s.stop

	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	return nil
}

// Stop implements domain.KeyEventSource.
func (s *FakeKeySource) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Stops returns how many times Stop was called.
func (s *FakeKeySource) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Listening reports whether a handler is installed.
func (s *FakeKeySource) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

// Emit delivers an event to the installed handler.
func (s *FakeKeySource) Emit(ev domain.KeyEvent) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return ErrNotListening
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h(ev)
	return nil
}

// PressEscape emits a physical Escape key-down followed by its release.
func (s *FakeKeySource) PressEscape() error {
	if err := s.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: true}); err != nil {
		return err
	}
	return s.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: false})
}

// InjectEscape emits an Escape key-down flagged as software-injected.
func (s *FakeKeySource) InjectEscape() error {
	return s.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: true, Injected: true})
}

var _ domain.KeyEventSource = (*FakeKeySource)(nil)
