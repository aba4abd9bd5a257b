package hook

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/state"
	"github.com/eliteGoblin/navpilot/test/fixtures"
)

// manualClock is advanced explicitly by tests.
type manualClock struct {
	now time.Time
}

func (m *manualClock) Now() time.Time { return m.now }

func (m *manualClock) Advance(d time.Duration) { m.now = m.now.Add(d) }

func testConfig() Config {
	return Config{Debounce: 75 * time.Millisecond, InstallTimeout: time.Second}
}

func newStarted(t *testing.T, onExit func()) (*Controller, *fixtures.FakeKeySource, *state.Shared, *manualClock) {
	t.Helper()
	source := fixtures.NewFakeKeySource()
	shared := state.New()
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	c := NewController(source, shared, testConfig(), clock, onExit, zap.NewNop())
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	return c, source, shared, clock
}

func press(t *testing.T, source *fixtures.FakeKeySource, at time.Time) {
	t.Helper()
	require.NoError(t, source.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: true, At: at}))
	require.NoError(t, source.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: false, At: at}))
}

func TestStart_Listening(t *testing.T) {
	c, source, _, _ := newStarted(t, nil)

	assert.Equal(t, StatusListening, c.Status())
	assert.True(t, source.Listening())
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestStart_InstallFailure(t *testing.T) {
	source := fixtures.NewFakeKeySource()
	source.InstallErr = errors.New("access denied")
	c := NewController(source, state.New(), testConfig(), nil, nil, zap.NewNop())

	err := c.Start(context.Background())

	assert.ErrorIs(t, err, ErrInstall)
	c.Stop()
	assert.Equal(t, StatusStopped, c.Status())
}

func TestStop_OnlyOnce(t *testing.T) {
	c, source, _, _ := newStarted(t, nil)

	c.Stop()
	c.Stop()

	assert.Equal(t, 1, source.Stops())
	assert.Equal(t, StatusStopped, c.Status())
	assert.False(t, source.Listening())
}

func TestStop_WithoutStart(t *testing.T) {
	source := fixtures.NewFakeKeySource()
	c := NewController(source, state.New(), testConfig(), nil, nil, zap.NewNop())

	c.Stop()

	assert.Zero(t, source.Stops())
}

func TestHandleKey_InjectedNeverCounts(t *testing.T) {
	c, source, shared, _ := newStarted(t, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, source.InjectEscape())
	}

	assert.Zero(t, shared.Presses())
	assert.Equal(t, domain.StateRunning, shared.State())
	assert.Equal(t, uint64(5), c.Injected())
}

func TestHandleKey_PauseThenExit(t *testing.T) {
	var exits atomic.Int32
	_, source, shared, clock := newStarted(t, func() { exits.Add(1) })

	press(t, source, clock.Now())
	assert.Equal(t, domain.StatePaused, shared.State())
	assert.Equal(t, uint64(1), shared.Presses())

	clock.Advance(200 * time.Millisecond)
	press(t, source, clock.Now())
	assert.Equal(t, domain.StateExiting, shared.State())
	assert.Equal(t, uint64(2), shared.Presses())
	assert.Equal(t, int32(1), exits.Load())

	clock.Advance(200 * time.Millisecond)
	press(t, source, clock.Now())
	assert.Equal(t, domain.StateExiting, shared.State())
	assert.Equal(t, uint64(2), shared.Presses())
	assert.Equal(t, int32(1), exits.Load())
}

func TestHandleKey_DebouncesAfterSyntheticEscape(t *testing.T) {
	c, source, shared, clock := newStarted(t, nil)

	c.NoteSyntheticEscape()
	require.NoError(t, source.InjectEscape())
	clock.Advance(20 * time.Millisecond)
	press(t, source, clock.Now())

	assert.Equal(t, domain.StateRunning, shared.State())
	assert.Zero(t, shared.Presses())
	assert.Equal(t, uint64(1), c.Debounced())

	clock.Advance(100 * time.Millisecond)
	press(t, source, clock.Now())
	assert.Equal(t, domain.StatePaused, shared.State())
}

func TestHandleKey_SecondPressInsideWindowIgnored(t *testing.T) {
	_, source, shared, clock := newStarted(t, nil)

	press(t, source, clock.Now())
	clock.Advance(30 * time.Millisecond)
	press(t, source, clock.Now())

	assert.Equal(t, domain.StatePaused, shared.State())
	assert.Equal(t, uint64(1), shared.Presses())
}

func TestHandleKey_AutoRepeatIgnored(t *testing.T) {
	_, source, shared, clock := newStarted(t, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, source.Emit(domain.KeyEvent{Code: domain.KeyEscape, Down: true, At: clock.Now()}))
		clock.Advance(100 * time.Millisecond)
	}

	assert.Equal(t, domain.StatePaused, shared.State())
	assert.Equal(t, uint64(1), shared.Presses())
}

func TestHandleKey_OtherKeysIgnored(t *testing.T) {
	_, source, shared, clock := newStarted(t, nil)

	require.NoError(t, source.Emit(domain.KeyEvent{Code: 'A', Down: true, At: clock.Now()}))
	require.NoError(t, source.Emit(domain.KeyEvent{Code: domain.KeyEnter, Down: true, At: clock.Now()}))

	assert.Equal(t, domain.StateRunning, shared.State())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "stopped", StatusStopped.String())
	assert.Equal(t, "installing", StatusInstalling.String())
	assert.Equal(t, "listening", StatusListening.String())
}
