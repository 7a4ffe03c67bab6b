// Package status provides a thread-safe tracker of firefinder service state.
// It is read by the HTTP handlers and the MQTT system messages.
package status

import (
	"sync"
	"time"

	"github.com/Geocene/firefinder/internal/logic"
)

// RecentRuns is the number of run summaries kept for display.
const RecentRuns = 10

// Config contains service configuration for display.
type Config struct {
	Broker     string
	KafkaTopic string
	HTTPAddr   string
	StorePath  string
	Params     logic.Params
}

// RunSummary describes one detector invocation. Error is set for failed runs.
type RunSummary struct {
	ID      string
	Source  string
	At      time.Time
	Elapsed time.Duration
	Samples int
	Events  int
	Error   string
}

// Totals are counters since service start.
type Totals struct {
	Runs     int
	Failures int
	Events   int
	Samples  int
}

// Snapshot is a point-in-time view of service state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
	Totals        Totals
	LastRun       *RunSummary
	Recent        []RunSummary // newest first
}

// Uptime returns the duration since the service started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable service state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	recent []RunSummary // oldest first
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// RecordRun adds a run to the totals and the recent list. Runs with an
// Error count as failures and contribute no events.
func (t *Tracker) RecordRun(run RunSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if run.Error != "" {
		t.snap.Totals.Failures++
	} else {
		t.snap.Totals.Runs++
		t.snap.Totals.Events += run.Events
		t.snap.Totals.Samples += run.Samples
	}
	t.recent = append(t.recent, run)
	if len(t.recent) > RecentRuns {
		t.recent = t.recent[len(t.recent)-RecentRuns:]
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the service state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Recent = make([]RunSummary, len(t.recent))
	for i, r := range t.recent {
		s.Recent[len(t.recent)-1-i] = r
	}
	t.mu.RUnlock()

	if len(s.Recent) > 0 {
		last := s.Recent[0]
		s.LastRun = &last
	}
	s.Now = t.now()
	return s
}
