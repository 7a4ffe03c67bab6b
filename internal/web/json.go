package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/store"
)

// DetectRequest is the body of POST /detect.
type DetectRequest struct {
	Source  string          `json:"source"`
	Params  map[string]any  `json:"params"`
	Records json.RawMessage `json:"records"`
}

// DetectResponse is the result of POST /detect.
type DetectResponse struct {
	RunID     string      `json:"run_id"`
	Source    string      `json:"source"`
	Events    []EventJSON `json:"events"`
	Stats     StatsJSON   `json:"stats"`
	ElapsedMs int64       `json:"elapsed_ms"`
}

// EventJSON is one fire event.
type EventJSON struct {
	Start           string `json:"start"`
	Stop            string `json:"stop"`
	DurationMinutes int    `json:"duration_minutes"`
}

// StatsJSON is the JSON representation of logic.Stats.
type StatsJSON struct {
	Samples               int     `json:"samples"`
	Readings              int     `json:"readings"`
	Missing               int     `json:"missing"`
	SampleIntervalSeconds float64 `json:"sample_interval_seconds"`
	RawEventSamples       int     `json:"raw_event_samples"`
	SmoothedEventSamples  int     `json:"smoothed_event_samples"`
	FinalEventSamples     int     `json:"final_event_samples"`
	Events                int     `json:"events"`
	OpenEndedRuns         int     `json:"open_ended_runs"`
}

// RunJSON is a stored run.
type RunJSON struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	CreatedAt string       `json:"created_at"`
	Params    logic.Params `json:"params"`
	Stats     StatsJSON    `json:"stats"`
}

// RunDetailJSON is the body of GET /runs/{id}.
type RunDetailJSON struct {
	RunJSON
	Events []EventJSON `json:"events"`
}

// RunsJSON is the body of GET /runs.
type RunsJSON struct {
	Runs []RunJSON `json:"runs"`
}

// ErrorJSON is returned with every non-2xx response.
type ErrorJSON struct {
	Error string `json:"error"`
}

// NewDetectResponse converts a finished run for the wire.
func NewDetectResponse(out *pipeline.Outcome) DetectResponse {
	return DetectResponse{
		RunID:     out.RunID,
		Source:    out.Source,
		Events:    eventsJSON(out.Result.Events),
		Stats:     statsJSON(out.Result.Stats),
		ElapsedMs: out.Elapsed.Milliseconds(),
	}
}

func eventsJSON(events []logic.EventInterval) []EventJSON {
	out := make([]EventJSON, len(events))
	for i, ev := range events {
		out[i] = EventJSON{
			Start:           ev.Start.UTC().Format(time.RFC3339),
			Stop:            ev.Stop.UTC().Format(time.RFC3339),
			DurationMinutes: ev.DurationMinutes,
		}
	}
	return out
}

func statsJSON(st logic.Stats) StatsJSON {
	return StatsJSON{
		Samples:               st.Samples,
		Readings:              st.Readings,
		Missing:               st.Missing,
		SampleIntervalSeconds: st.SampleInterval.Seconds(),
		RawEventSamples:       st.RawEventSamples,
		SmoothedEventSamples:  st.SmoothedEventSamples,
		FinalEventSamples:     st.FinalEventSamples,
		Events:                st.Events,
		OpenEndedRuns:         st.OpenEndedRuns,
	}
}

func runJSON(run store.Run) RunJSON {
	return RunJSON{
		ID:        run.ID,
		Source:    run.Source,
		CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
		Params:    run.Params,
		Stats:     statsJSON(run.Stats),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorJSON{Error: msg})
}
