//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/navpilot/internal/config"
)

// A press during the long wait between cycles must be handled within a few
// slices, not after the wait runs out.
func TestPauseLatency_DuringCadenceWait(t *testing.T) {
	r := newRig(func(c *config.Config) { c.Cadence = 10 * time.Second })
	r.start()
	defer r.stop()

	require.Eventually(t, func() bool { return r.submitted() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	pressed := time.Now()
	require.NoError(t, r.source.PressEscape())
	require.Eventually(t, func() bool { return r.desktop.Count("launch") == 1 }, time.Second, time.Millisecond)

	assert.Less(t, time.Since(pressed), 250*time.Millisecond)
	assert.Equal(t, 1, r.submitted())
}

// The same holds while a slow gesture is in progress.
func TestPauseLatency_DuringGlide(t *testing.T) {
	r := newRig(func(c *config.Config) {
		c.Motion.Steps = 500
		c.Motion.MinStepDelay = 20 * time.Millisecond
		c.Motion.MaxStepDelay = 28 * time.Millisecond
	})
	r.start()
	defer r.stop()

	require.Eventually(t, func() bool { return r.desktop.Count("move") >= 3 }, 5*time.Second, time.Millisecond)

	pressed := time.Now()
	require.NoError(t, r.source.PressEscape())
	require.Eventually(t, func() bool { return r.desktop.Count("launch") == 1 }, time.Second, time.Millisecond)

	assert.Less(t, time.Since(pressed), 250*time.Millisecond)
	assert.Zero(t, r.desktop.Count("down"), "the interrupted glide never clicks")
}
