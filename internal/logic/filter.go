package logic

import "math"

// RemoveLowTempEvents clears event runs whose peak value is below minTemp.
// A nil minTemp disables the filter. samples is not modified.
func RemoveLowTempEvents(samples []FlaggedSample, minTemp *float64) []FlaggedSample {
	if minTemp == nil {
		return samples
	}
	out := cloneFlagged(samples)
	for _, r := range Runs(out) {
		if !r.Event {
			continue
		}
		peak, _, ok := runRange(out, r)
		if ok && peak < *minTemp {
			setRun(out, r, false)
		}
	}
	return out
}

// RemoveLowDeltaEvents clears event runs whose max-min value spread is below
// minDelta. A nil minDelta disables the filter. samples is not modified.
func RemoveLowDeltaEvents(samples []FlaggedSample, minDelta *float64) []FlaggedSample {
	if minDelta == nil {
		return samples
	}
	out := cloneFlagged(samples)
	for _, r := range Runs(out) {
		if !r.Event {
			continue
		}
		hi, lo, ok := runRange(out, r)
		if ok && hi-lo < *minDelta {
			setRun(out, r, false)
		}
	}
	return out
}

// runRange returns the largest and smallest readings in r, skipping missing
// values. ok is false when the run holds no reading at all.
func runRange(samples []FlaggedSample, r Run) (hi, lo float64, ok bool) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, s := range samples[r.Start:r.End] {
		if math.IsNaN(s.Value) {
			continue
		}
		ok = true
		hi = math.Max(hi, s.Value)
		lo = math.Min(lo, s.Value)
	}
	return hi, lo, ok
}
