package logic

import (
	"fmt"
	"math"
	"time"
)

// Detector runs the full fire event pipeline with a fixed configuration.
// A Detector holds no per-run state and is safe for concurrent use.
type Detector struct {
	params Params
}

// NewDetector validates p and returns a Detector using it.
func NewDetector(p Params) (*Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: p}, nil
}

// Params returns the detector configuration.
func (d *Detector) Params() Params {
	return d.params
}

// Detect runs correction, raw flagging, smoothing, magnitude filtering and
// grouping over a time-ordered batch of samples.
func (d *Detector) Detect(samples []Sample) (*Result, error) {
	p := d.params
	stats := Stats{Samples: len(samples)}

	readings := CorrectValues(samples, p.Correction)
	stats.Readings = len(readings)
	for _, r := range readings {
		if math.IsNaN(r.Value) {
			stats.Missing++
		}
	}

	flagged, err := FlagRawEvents(readings, p)
	if err != nil {
		return nil, fmt.Errorf("flag raw events: %w", err)
	}
	stats.RawEventSamples = CountEvents(flagged)
	if secs, err := sampleInterval(flaggedTimestamps(flagged)); err == nil {
		stats.SampleInterval = time.Duration(secs * float64(time.Second))
	}

	flagged, err = SmoothEvents(flagged, p)
	if err != nil {
		return nil, fmt.Errorf("smooth events: %w", err)
	}
	stats.SmoothedEventSamples = CountEvents(flagged)

	flagged = RemoveLowTempEvents(flagged, p.MinEventTemp)
	flagged = RemoveLowDeltaEvents(flagged, p.MinEventTempDelta)
	stats.FinalEventSamples = CountEvents(flagged)

	events, open := groupEvents(flagged)
	stats.Events = len(events)
	stats.OpenEndedRuns = open

	return &Result{Flagged: flagged, Events: events, Stats: stats}, nil
}

// Detect is a convenience wrapper around NewDetector and Detector.Detect.
func Detect(samples []Sample, p Params) (*Result, error) {
	d, err := NewDetector(p)
	if err != nil {
		return nil, err
	}
	return d.Detect(samples)
}
