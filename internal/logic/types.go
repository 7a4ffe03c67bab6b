// Package logic contains the pure fire event detection engine.
// This package has NO external dependencies (no MQTT, HTTP, OS, or clock).
// Every stage takes a complete, time-ordered batch and returns a new one.
package logic

import "time"

// SensorRole identifies what a thermocouple is measuring.
type SensorRole string

const (
	RoleStove   SensorRole = "stove"
	RoleAmbient SensorRole = "ambient"
)

// DefaultAmbient is subtracted from stove readings when correction is
// requested but no ambient sensor reported.
const DefaultAmbient = 20.0

// Sample is a single sensor reading as produced by the preprocessor.
// Value is NaN when the sensor reported no reading.
type Sample struct {
	MissionID string
	Timestamp time.Time
	Value     float64
	Role      SensorRole
}

// Reading is an ambient-corrected stove reading.
type Reading struct {
	MissionID string
	Timestamp time.Time
	Value     float64
}

// FlaggedSample is a reading annotated with the current event flag.
type FlaggedSample struct {
	Timestamp time.Time
	Value     float64
	Event     bool
}

// EventInterval is a completed fire event.
// Stop is the timestamp of the first sample after the event run.
type EventInterval struct {
	Start           time.Time
	Stop            time.Time
	DurationMinutes int
}

// Stats summarises one detector invocation.
type Stats struct {
	Samples        int // input samples, all roles
	Readings       int // corrected readings fed to the flagger
	Missing        int // readings without a value
	SampleInterval time.Duration

	RawEventSamples      int
	SmoothedEventSamples int
	FinalEventSamples    int

	Events        int
	OpenEndedRuns int // event runs dropped because they reach the end of data
}

// Result is the output of a full detector run.
type Result struct {
	Flagged []FlaggedSample
	Events  []EventInterval
	Stats   Stats
}
