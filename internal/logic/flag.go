package logic

import (
	"math"
	"time"
)

// rateFeatures holds the per-sample features used to flag raw events.
type rateFeatures struct {
	interval float64   // nominal sampling interval, minutes
	lookback int       // samples spanning LookbackMinutes
	window   int       // rolling quantile window, samples
	rate     []float64 // LookbackMinutes change, per minute
	q80      []float64 // rolling RateQuantile of rate
}

func computeFeatures(readings []Reading, minEventSec float64) (rateFeatures, error) {
	ts := make([]time.Time, len(readings))
	for i, r := range readings {
		ts[i] = r.Timestamp
	}
	secs, err := sampleInterval(ts)
	if err != nil {
		return rateFeatures{}, err
	}
	interval := secs / 60

	f := rateFeatures{
		interval: interval,
		lookback: int(math.Max(1, math.RoundToEven(LookbackMinutes/interval))),
		window:   int(math.Min(MaxRateWindow, math.RoundToEven(minEventSec/(60*interval)))),
	}
	if f.window < 1 {
		f.window = 1
	}

	f.rate = make([]float64, len(readings))
	for i := range readings {
		if i < f.lookback {
			continue
		}
		d := readings[i].Value - readings[i-f.lookback].Value
		if math.IsNaN(d) {
			continue
		}
		f.rate[i] = d / interval
	}
	f.q80 = rollingQuantile(f.rate, f.window, RateQuantile)
	return f, nil
}

// FlagRawEvents computes the initial event signal from corrected readings.
//
// A sample starts flagged when its value exceeds the primary threshold. The
// flag is cleared where the recent rate trend is not rising, forced on by a
// fast rise, forced off by a fall proportional to the current value, and
// cleared after any gap longer than the nominal sampling interval.
func FlagRawEvents(readings []Reading, p Params) ([]FlaggedSample, error) {
	if len(readings) < 2 {
		return nil, ErrTooFewSamples
	}
	if allMissing(readings) {
		return nil, ErrNoReadings
	}
	f, err := computeFeatures(readings, p.MinEventSec)
	if err != nil {
		return nil, err
	}

	maxGap := f.interval * 60
	out := make([]FlaggedSample, len(readings))
	for i, r := range readings {
		event := r.Value > p.PrimaryThreshold
		if f.q80[i] <= 0 {
			event = false
		}
		if f.rate[i] >= p.RiseRate {
			event = true
		}
		if f.rate[i] < -r.Value*p.FallRate {
			event = false
		}
		if i > 0 && r.Timestamp.Sub(readings[i-1].Timestamp).Seconds() > maxGap {
			event = false
		}
		out[i] = FlaggedSample{Timestamp: r.Timestamp, Value: r.Value, Event: event}
	}
	return out, nil
}

func allMissing(readings []Reading) bool {
	for _, r := range readings {
		if !math.IsNaN(r.Value) {
			return false
		}
	}
	return true
}
