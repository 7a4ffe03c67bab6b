package logic

import "time"

// Run is a maximal stretch of samples sharing the same event flag,
// covering indexes [Start, End).
type Run struct {
	Start int
	End   int
	Event bool
}

// Len returns the number of samples in the run.
func (r Run) Len() int {
	return r.End - r.Start
}

// Runs run-length encodes the event flags of samples. A new run starts
// wherever the flag differs from the previous sample.
func Runs(samples []FlaggedSample) []Run {
	if len(samples) == 0 {
		return nil
	}
	var runs []Run
	cur := Run{Start: 0, Event: samples[0].Event}
	for i := 1; i < len(samples); i++ {
		if samples[i].Event != cur.Event {
			cur.End = i
			runs = append(runs, cur)
			cur = Run{Start: i, Event: samples[i].Event}
		}
	}
	cur.End = len(samples)
	return append(runs, cur)
}

// setRun flips every sample in r to event.
func setRun(samples []FlaggedSample, r Run, event bool) {
	for i := r.Start; i < r.End; i++ {
		samples[i].Event = event
	}
}

func cloneFlagged(samples []FlaggedSample) []FlaggedSample {
	return append([]FlaggedSample(nil), samples...)
}

func flaggedTimestamps(samples []FlaggedSample) []time.Time {
	ts := make([]time.Time, len(samples))
	for i, s := range samples {
		ts[i] = s.Timestamp
	}
	return ts
}

// CountEvents returns the number of samples flagged as event.
func CountEvents(samples []FlaggedSample) int {
	n := 0
	for _, s := range samples {
		if s.Event {
			n++
		}
	}
	return n
}
