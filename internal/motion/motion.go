// Package motion synthesizes human-like cursor paths.
//
// A path eases in and out along the straight line between two points, bows
// away from that line in a single arc that peaks mid-path, and carries a
// small jitter that fades to nothing as the cursor reaches the target.
// Paths are intentionally not reproducible unless the caller supplies a
// seeded random source.
package motion

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/eliteGoblin/navpilot/internal/domain"
)

// arcDistanceRatio caps the arc height relative to the travel distance.
const arcDistanceRatio = 0.18

// Options shapes generated paths.
type Options struct {
	Steps        int
	MinStepDelay time.Duration
	MaxStepDelay time.Duration
	MaxArcHeight float64 // Pixels
	Jitter       float64 // Pixels, at the start of the path
}

// Synthesizer produces cursor paths. It is safe for concurrent use.
type Synthesizer struct {
	opts Options
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewSynthesizer creates a synthesizer. A nil rng uses a time-seeded source.
func NewSynthesizer(opts Options, rng *rand.Rand) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Steps <= 0 {
		opts.Steps = 1
	}
	return &Synthesizer{opts: opts, rng: rng}
}

// EaseInOutCubic remaps a linear progress fraction in [0,1] so that motion
// accelerates out of the start and decelerates into the end.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// JitterScale is the jitter bound in pixels at a given eased progress.
func JitterScale(jitter, easedT float64) float64 {
	return jitter * (1 - easedT)
}

// Path returns the waypoints from (exclusive) from to (inclusive) to.
// When the points are closer than one pixel the target is returned alone.
func (s *Synthesizer) Path(from, to domain.Point) []domain.Waypoint {
	dx := float64(to.X - from.X)
	dy := float64(to.Y - from.Y)
	distance := math.Hypot(dx, dy)
	if distance < 1 {
		return []domain.Waypoint{{X: to.X, Y: to.Y}}
	}

	// Unit vectors along and perpendicular to the travel line.
	dirX, dirY := dx/distance, dy/distance
	perpX, perpY := -dirY, dirX

	s.mu.Lock()
	defer s.mu.Unlock()

	sign := 1.0
	if s.rng.Intn(2) == 0 {
		sign = -1.0
	}
	arcHeight := math.Min(s.opts.MaxArcHeight, distance*arcDistanceRatio) * sign

	steps := s.opts.Steps
	path := make([]domain.Waypoint, 0, steps)
	for i := 1; i <= steps; i++ {
		easedT := EaseInOutCubic(float64(i) / float64(steps))

		baseX := float64(from.X) + dx*easedT
		baseY := float64(from.Y) + dy*easedT

		arc := arcHeight * math.Sin(math.Pi*easedT)

		scale := JitterScale(s.opts.Jitter, easedT)
		alongJitter := (s.rng.Float64()*2 - 1) * scale
		acrossJitter := (s.rng.Float64()*2 - 1) * scale

		x := baseX + perpX*(arc+acrossJitter) + dirX*alongJitter
		y := baseY + perpY*(arc+acrossJitter) + dirY*alongJitter

		path = append(path, domain.Waypoint{
			X:     int(math.Round(x)),
			Y:     int(math.Round(y)),
			Delay: s.stepDelay(),
		})
	}

	// sin(pi) is not exactly zero in floating point.
	path[len(path)-1].X = to.X
	path[len(path)-1].Y = to.Y

	return path
}

// stepDelay draws an inter-step delay. Callers hold s.mu.
func (s *Synthesizer) stepDelay() time.Duration {
	lo, hi := s.opts.MinStepDelay, s.opts.MaxStepDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)+1))
}
