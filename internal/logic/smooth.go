package logic

// runPredicate decides whether a run should have its flag flipped.
// interval is the nominal sampling interval in seconds.
type runPredicate func(r Run, interval float64, p Params) bool

// isShortGap matches non-event runs shorter than MinBreakSec.
func isShortGap(r Run, interval float64, p Params) bool {
	return !r.Event && float64(r.Len())*interval < p.MinBreakSec
}

// isShortEvent matches event runs shorter than MinEventSec.
func isShortEvent(r Run, interval float64, p Params) bool {
	return r.Event && float64(r.Len())*interval < p.MinEventSec
}

// SmoothEvents applies the two hysteresis passes: short non-event gaps are
// absorbed into the surrounding events first, then events that are still
// too short are discarded. The order is significant. samples is not
// modified.
func SmoothEvents(samples []FlaggedSample, p Params) ([]FlaggedSample, error) {
	out := cloneFlagged(samples)
	for _, pred := range []runPredicate{isShortGap, isShortEvent} {
		if err := noiseCorrection(out, pred, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// noiseCorrection flips every run matching pred, in place. The sampling
// interval and the runs are both derived from the current state of samples.
func noiseCorrection(samples []FlaggedSample, pred runPredicate, p Params) error {
	interval, err := sampleInterval(flaggedTimestamps(samples))
	if err != nil {
		return err
	}
	for _, r := range Runs(samples) {
		if pred(r, interval, p) {
			setRun(samples, r, !r.Event)
		}
	}
	return nil
}
