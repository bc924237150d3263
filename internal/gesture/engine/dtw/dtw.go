// Package dtw is a reference recognizer built on dynamic time warping over
// angular velocity. It implements engine.NativeEngine so the daemon can run
// end to end without a proprietary engine.
package dtw

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// trace is a sample reduced to its angular velocity vectors.
type trace [][]float64

// toTrace extracts rotation vectors from a flat buffer and scales them to
// unit RMS magnitude so matching compares shape, not speed.
func toTrace(data []float32) trace {
	n := len(data) / gesture.EntryWidth
	t := make(trace, n)
	flat := make([]float64, 0, n*3)
	for i := 0; i < n; i++ {
		row := data[i*gesture.EntryWidth : (i+1)*gesture.EntryWidth]
		t[i] = []float64{float64(row[1]), float64(row[2]), float64(row[3])}
		flat = append(flat, t[i]...)
	}
	if n == 0 {
		return t
	}
	rms := floats.Norm(flat, 2) / math.Sqrt(float64(n))
	if rms == 0 {
		return t
	}
	for _, v := range t {
		floats.Scale(1/rms, v)
	}
	return t
}

// Distance is the DTW distance between two traces, normalised by the
// longer trace's length. Empty traces are infinitely far apart.
func Distance(a, b trace) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		cur[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			cost := floats.Distance(a[i-1], b[j-1], 2)
			cur[j] = cost + min(prev[j], cur[j-1], prev[j-1])
		}
		prev, cur = cur, prev
	}
	return prev[m] / float64(max(n, m))
}

// Score maps a distance onto (0,1]; identical traces score 1.
func Score(d float64) float64 {
	if math.IsInf(d, 1) {
		return 0
	}
	return 1 / (1 + d)
}

// best returns the template set with the smallest distance to t.
func best[K comparable](t trace, candidates []K, templates map[K][]trace) (K, float64, bool) {
	var (
		bestKey  K
		bestDist = math.Inf(1)
		found    bool
	)
	for _, k := range candidates {
		for _, tpl := range templates[k] {
			if d := Distance(t, tpl); d < bestDist {
				bestKey, bestDist, found = k, d, true
			}
		}
	}
	return bestKey, bestDist, found
}
