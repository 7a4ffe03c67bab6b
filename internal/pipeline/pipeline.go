// Package pipeline runs one batch of records through preprocessing and the
// detector, then records and publishes the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/metrics"
	"github.com/Geocene/firefinder/internal/mqtt"
	"github.com/Geocene/firefinder/internal/preprocess"
	"github.com/Geocene/firefinder/internal/status"
	"github.com/Geocene/firefinder/internal/store"
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *store.Run) error
}

// EventWriter receives every event of a run in one call.
type EventWriter interface {
	Publish(ctx context.Context, events []mqtt.Event) error
}

// Request is one batch to analyse.
type Request struct {
	Source  string
	Params  logic.Params
	Records []preprocess.Record
}

// Outcome is a completed run.
type Outcome struct {
	RunID   string
	Source  string
	Result  *logic.Result
	Elapsed time.Duration
}

// Runner wires the detector to its optional sinks. Nil fields are skipped.
type Runner struct {
	Prepare   preprocess.Options
	Store     RunStore
	Publisher mqtt.Publisher
	Kafka     EventWriter
	Tracker   *status.Tracker
	Metrics   *metrics.Metrics

	now func() time.Time
}

// New returns a Runner with the given preprocessing options and no sinks.
func New(opts preprocess.Options) *Runner {
	return &Runner{Prepare: opts, now: time.Now}
}

// Run analyses req. Publish failures are logged and do not fail the run;
// preprocessing, detection and storage failures do.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	now := r.now
	if now == nil {
		now = time.Now
	}
	started := now()

	out, err := r.detect(ctx, req, started)
	elapsed := now().Sub(started)
	if err != nil {
		log.Printf("detect failed: source=%s error=%v", req.Source, err)
		r.Metrics.ObserveFailure(elapsed)
		if r.Tracker != nil {
			r.Tracker.RecordRun(status.RunSummary{
				Source:  req.Source,
				At:      started,
				Elapsed: elapsed,
				Samples: len(req.Records),
				Error:   err.Error(),
			})
		}
		return nil, err
	}
	out.Elapsed = elapsed

	stats := out.Result.Stats
	log.Printf("detect: source=%s run=%s samples=%d events=%d elapsed=%v",
		out.Source, out.RunID, stats.Samples, stats.Events, elapsed)
	r.Metrics.ObserveRun(stats.Samples, stats.Events, elapsed)
	if r.Tracker != nil {
		r.Tracker.RecordRun(status.RunSummary{
			ID:      out.RunID,
			Source:  out.Source,
			At:      started,
			Elapsed: elapsed,
			Samples: stats.Samples,
			Events:  stats.Events,
		})
	}

	r.publish(ctx, out, started)
	return out, nil
}

func (r *Runner) detect(ctx context.Context, req Request, started time.Time) (*Outcome, error) {
	opts := r.Prepare
	opts.Correction = req.Params.Correction
	samples, err := preprocess.Prepare(req.Records, opts)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	res, err := logic.Detect(samples, req.Params)
	if err != nil {
		return nil, err
	}

	out := &Outcome{RunID: uuid.New().String(), Source: req.Source, Result: res}
	if r.Store != nil {
		run := &store.Run{
			ID:        out.RunID,
			Source:    req.Source,
			Params:    req.Params,
			Stats:     res.Stats,
			Events:    res.Events,
			CreatedAt: started.UTC(),
		}
		if err := r.Store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}
	return out, nil
}

func (r *Runner) publish(ctx context.Context, out *Outcome, at time.Time) {
	events := mqtt.Events(out.Source, out.RunID, out.Result.Events)

	if r.Publisher != nil {
		for _, ev := range events {
			if err := r.Publisher.Publish(ev); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
		summary := mqtt.SystemEvent{
			Timestamp: at,
			Event:     "RUN",
			Run: &mqtt.RunInfo{
				ID:      out.RunID,
				Source:  out.Source,
				Samples: out.Result.Stats.Samples,
				Events:  len(events),
			},
		}
		if err := r.Publisher.PublishSystem(summary); err != nil {
			log.Printf("publish run summary error: %v", err)
		}
		if cs, ok := r.Publisher.(mqtt.ConnectionStatus); ok && r.Tracker != nil {
			r.Tracker.SetMQTTConnected(cs.IsConnected())
		}
	}

	if r.Kafka != nil && len(events) > 0 {
		if err := r.Kafka.Publish(ctx, events); err != nil {
			log.Printf("kafka publish error: %v", err)
		}
	}
}

// IsInputError reports whether err was caused by the request rather than
// the service, so HTTP callers can answer 400.
func IsInputError(err error) bool {
	for _, target := range []error{
		preprocess.ErrInvalidRecord,
		logic.ErrInvalidParam,
		logic.ErrTooFewSamples,
		logic.ErrZeroInterval,
		logic.ErrNoReadings,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
