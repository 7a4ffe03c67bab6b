package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Totals        TotalsJSON `json:"totals"`
	LastRun       *RunJSON   `json:"last_run,omitempty"`
	Recent        []RunJSON  `json:"recent_runs,omitempty"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// TotalsJSON is the JSON representation of Totals.
type TotalsJSON struct {
	Runs     int `json:"runs"`
	Failures int `json:"failures"`
	Events   int `json:"events"`
	Samples  int `json:"samples"`
}

// RunJSON is the JSON representation of a RunSummary.
type RunJSON struct {
	ID        string `json:"id,omitempty"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Samples   int    `json:"samples"`
	Events    int    `json:"events"`
	Error     string `json:"error,omitempty"`
}

// ConfigJSON is the JSON representation of service config.
type ConfigJSON struct {
	Broker     string       `json:"broker,omitempty"`
	KafkaTopic string       `json:"kafka_topic,omitempty"`
	HTTPAddr   string       `json:"http_addr,omitempty"`
	StorePath  string       `json:"store_path,omitempty"`
	Detector   DetectorJSON `json:"detector"`
}

// DetectorJSON mirrors logic.Params with explicit nulls for disabled filters.
type DetectorJSON struct {
	PrimaryThreshold  float64  `json:"primary_threshold"`
	MinEventSec       float64  `json:"min_event_sec"`
	FallRate          float64  `json:"fall_rate"`
	RiseRate          float64  `json:"rise_rate"`
	MinBreakSec       float64  `json:"min_break_sec"`
	Correction        bool     `json:"correction"`
	MinEventTemp      *float64 `json:"min_event_temp"`
	MinEventTempDelta *float64 `json:"min_event_temp_delta"`
}

func runJSON(r RunSummary) RunJSON {
	return RunJSON{
		ID:        r.ID,
		Source:    r.Source,
		Timestamp: r.At.UTC().Format(time.RFC3339),
		ElapsedMs: r.Elapsed.Milliseconds(),
		Samples:   r.Samples,
		Events:    r.Events,
		Error:     r.Error,
	}
}

func buildInner(snap Snapshot) StatusInner {
	p := snap.Config.Params
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Totals: TotalsJSON{
			Runs:     snap.Totals.Runs,
			Failures: snap.Totals.Failures,
			Events:   snap.Totals.Events,
			Samples:  snap.Totals.Samples,
		},
		Config: ConfigJSON{
			Broker:     snap.Config.Broker,
			KafkaTopic: snap.Config.KafkaTopic,
			HTTPAddr:   snap.Config.HTTPAddr,
			StorePath:  snap.Config.StorePath,
			Detector: DetectorJSON{
				PrimaryThreshold:  p.PrimaryThreshold,
				MinEventSec:       p.MinEventSec,
				FallRate:          p.FallRate,
				RiseRate:          p.RiseRate,
				MinBreakSec:       p.MinBreakSec,
				Correction:        p.Correction,
				MinEventTemp:      p.MinEventTemp,
				MinEventTempDelta: p.MinEventTempDelta,
			},
		},
	}
	if snap.LastRun != nil {
		last := runJSON(*snap.LastRun)
		inner.LastRun = &last
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint, including the
// recent run list.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	for _, r := range snap.Recent {
		inner.Recent = append(inner.Recent, runJSON(r))
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
