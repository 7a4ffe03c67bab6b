// Package mqtt publishes detected fire events and system messages to MQTT,
// with a fake for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/Geocene/firefinder/internal/logic"
)

// Topic is the MQTT topic for fire events.
const Topic = "energy/stove/firefinder/events"

// TopicSystem is the MQTT topic for lifecycle events and run summaries.
const TopicSystem = "energy/stove/firefinder/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends one fire event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event or run summary.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is a detected fire attributed to the run that found it.
type Event struct {
	Source   string
	RunID    string
	Interval logic.EventInterval
}

// SystemEvent represents a lifecycle event (STARTUP, SHUTDOWN, RECONNECTED)
// or a RUN summary.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string   // SIGTERM, SIGINT or MQTT_DISCONNECT (shutdown only)
	Run        *RunInfo // set for RUN events
	RawPayload []byte   // pre-formatted JSON payload, returned as is by FormatSystemPayload
	Retained   bool
}

// RunInfo summarises a detector run for the system topic.
type RunInfo struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Samples int    `json:"samples"`
	Events  int    `json:"events"`
}

// Payload is the MQTT message for a fire event.
type Payload struct {
	Fire FirePayload `json:"fire"`
}

// FirePayload contains the fire event details.
type FirePayload struct {
	Source          string `json:"source"`
	RunID           string `json:"run_id,omitempty"`
	Start           string `json:"start"`
	Stop            string `json:"stop"`
	DurationMinutes int    `json:"duration_minutes"`
}

// FormatPayload creates the JSON payload for a fire event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Fire: FirePayload{
			Source:          event.Source,
			RunID:           event.RunID,
			Start:           event.Interval.Start.UTC().Format(time.RFC3339),
			Stop:            event.Interval.Stop.UTC().Format(time.RFC3339),
			DurationMinutes: event.Interval.DurationMinutes,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message for system events without a full
// status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Reason    string   `json:"reason,omitempty"`
	Run       *RunInfo `json:"run,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Run:       event.Run,
		},
	}
	return json.Marshal(payload)
}

// Events pairs every interval with its run.
func Events(source, runID string, intervals []logic.EventInterval) []Event {
	out := make([]Event, len(intervals))
	for i, iv := range intervals {
		out[i] = Event{Source: source, RunID: runID, Interval: iv}
	}
	return out
}
