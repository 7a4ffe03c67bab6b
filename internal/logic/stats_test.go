package logic

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestMedian(t *testing.T) {
	if m := median([]float64{3, 1, 2}); m != 2 {
		t.Errorf("expected 2, got %v", m)
	}
	if m := median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Errorf("expected 2.5, got %v", m)
	}
	if !math.IsNaN(median(nil)) {
		t.Error("expected NaN for empty input")
	}
	xs := []float64{3, 1, 2}
	median(xs)
	if xs[0] != 3 {
		t.Error("median sorted its input in place")
	}
}

func TestQuantileSorted(t *testing.T) {
	tests := []struct {
		xs   []float64
		q    float64
		want float64
	}{
		{[]float64{5}, 0.8, 5},
		{[]float64{0, 10}, 0.8, 8},
		{[]float64{1, 2, 3, 4, 5}, 0.8, 4.2},
		{[]float64{1, 2, 3, 4, 5, 6}, 0.8, 5},
		{[]float64{1, 2, 3}, 0, 1},
		{[]float64{1, 2, 3}, 1, 3},
	}
	for _, tt := range tests {
		if got := quantileSorted(tt.xs, tt.q); !approxEqual(got, tt.want) {
			t.Errorf("quantile(%v, %v): expected %v, got %v", tt.xs, tt.q, tt.want, got)
		}
	}
}

func TestRollingQuantile(t *testing.T) {
	got := rollingQuantile([]float64{1, 5, 2, 8, 3}, 3, 0.5)
	want := []float64{1, 3, 2, 5, 3}
	for i := range want {
		if !approxEqual(got[i], want[i]) {
			t.Errorf("position %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSampleInterval(t *testing.T) {
	ts := []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute), t0.Add(10 * time.Minute)}
	got, err := sampleInterval(ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 60 {
		t.Errorf("expected 60 seconds, got %v", got)
	}

	if _, err := sampleInterval(ts[:1]); !errors.Is(err, ErrTooFewSamples) {
		t.Errorf("expected ErrTooFewSamples, got %v", err)
	}
	if _, err := sampleInterval([]time.Time{t0, t0, t0}); !errors.Is(err, ErrZeroInterval) {
		t.Errorf("expected ErrZeroInterval, got %v", err)
	}
}
