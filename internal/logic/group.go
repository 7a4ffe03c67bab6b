package logic

import "time"

// GroupEvents converts the final event signal into intervals.
//
// Each event run starts at its first sample and stops at the first sample
// whose timestamp is strictly after the run's last timestamp, wherever that
// sample sits in the sequence. A run with no such sample is still open and is
// left out. Durations are whole minutes, truncated.
func GroupEvents(samples []FlaggedSample) []EventInterval {
	events, _ := groupEvents(samples)
	return events
}

// groupEvents also reports how many open-ended runs were dropped.
func groupEvents(samples []FlaggedSample) ([]EventInterval, int) {
	events := []EventInterval{}
	open := 0
	for _, r := range Runs(samples) {
		if !r.Event {
			continue
		}
		start := samples[r.Start].Timestamp
		last := samples[r.Start].Timestamp
		for _, s := range samples[r.Start+1 : r.End] {
			if s.Timestamp.Before(start) {
				start = s.Timestamp
			}
			if s.Timestamp.After(last) {
				last = s.Timestamp
			}
		}

		stop, ok := firstAfter(samples, r.End, last)
		if !ok {
			open++
			continue
		}
		events = append(events, EventInterval{
			Start:           start,
			Stop:            stop,
			DurationMinutes: int(stop.Sub(start) / time.Minute),
		})
	}
	return events, open
}

// firstAfter returns the earliest timestamp strictly after t. Samples are
// sorted, so the search starts at from and stops at the first hit.
func firstAfter(samples []FlaggedSample, from int, t time.Time) (time.Time, bool) {
	for _, s := range samples[from:] {
		if s.Timestamp.After(t) {
			return s.Timestamp, true
		}
	}
	return time.Time{}, false
}
