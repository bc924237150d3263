package dtw

import (
	"math"
	"math/rand"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// Shape synthesises the angular velocity profile of a built-in common
// gesture over n entries spaced intervalMs apart. Unknown indices yield nil.
func Shape(index, n int, intervalMs float32, amplitude float64) []gesture.Entry {
	if n <= 0 {
		return nil
	}
	var f func(t float64) (x, y, z float64)
	switch index {
	case gesture.Heart:
		f = func(t float64) (float64, float64, float64) {
			return math.Sin(2 * math.Pi * t), math.Abs(math.Cos(2*math.Pi*t)) - 0.5, 0.3 * math.Sin(4*math.Pi*t)
		}
	case gesture.Down:
		f = func(t float64) (float64, float64, float64) {
			return -math.Sin(math.Pi * t), 0, 0
		}
	case gesture.C:
		f = func(t float64) (float64, float64, float64) {
			return 0.5 * math.Cos(math.Pi*t), 0, math.Sin(math.Pi * t)
		}
	default:
		return nil
	}

	out := make([]gesture.Entry, n)
	for i := range out {
		t := float64(i) / float64(max(n-1, 1))
		x, y, z := f(t)
		dt := intervalMs
		if i == 0 {
			dt = 0
		}
		out[i] = gesture.NewEntry(dt, float32(x*amplitude), float32(y*amplitude), float32(z*amplitude))
	}
	return out
}

// Jitter returns a copy of entries with uniform noise of the given
// magnitude added to every rotation component.
func Jitter(entries []gesture.Entry, rng *rand.Rand, magnitude float64) []gesture.Entry {
	out := make([]gesture.Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		for k := 1; k <= 3; k++ {
			out[i][k] += float32((rng.Float64()*2 - 1) * magnitude)
		}
	}
	return out
}
