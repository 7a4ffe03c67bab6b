package logic

import (
	"math"
	"sort"
	"time"
)

// median returns the middle value of xs, or NaN if xs is empty.
// xs is not modified.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// quantileSorted returns the q-quantile of sorted using linear
// interpolation between the two nearest order statistics.
func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// rollingQuantile computes the q-quantile over a trailing window of
// window samples at every position. Positions near the start use however
// many samples are available.
func rollingQuantile(xs []float64, window int, q float64) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(xs))
	buf := make([]float64, 0, window)
	for i := range xs {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		buf = append(buf[:0], xs[lo:i+1]...)
		sort.Float64s(buf)
		out[i] = quantileSorted(buf, q)
	}
	return out
}

// timestampDeltas returns the gaps between consecutive timestamps.
func timestampDeltas(ts []time.Time) []time.Duration {
	if len(ts) < 2 {
		return nil
	}
	out := make([]time.Duration, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		out[i-1] = ts[i].Sub(ts[i-1])
	}
	return out
}

// sampleInterval estimates the nominal sampling interval, in seconds, as the
// median gap between consecutive timestamps.
func sampleInterval(ts []time.Time) (float64, error) {
	if len(ts) < 2 {
		return 0, ErrTooFewSamples
	}
	deltas := timestampDeltas(ts)
	secs := make([]float64, len(deltas))
	for i, d := range deltas {
		secs[i] = d.Seconds()
	}
	m := median(secs)
	if !(m > 0) {
		return 0, ErrZeroInterval
	}
	return m, nil
}
