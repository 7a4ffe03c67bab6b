package preprocess

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Geocene/firefinder/internal/logic"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	t := t0.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func num(v float64) *float64 { return &v }

func sensor(id int) *int { return &id }

func TestPrepareStoveOnly(t *testing.T) {
	records := []Record{
		{MissionID: "m1", Timestamp: at(2), Value: num(40), SensorTypeID: sensor(1)},
		{MissionID: "m1", Timestamp: at(0), Value: num(30), SensorTypeID: sensor(3)},
		{MissionID: "m1", Timestamp: at(1), Value: num(18), SensorTypeID: sensor(9)},
		{MissionID: "m1", Timestamp: at(1), Value: num(35), SensorTypeID: sensor(7)},
	}
	got, err := Prepare(records, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stove samples, got %d", len(got))
	}
	if got[0].Value != 30 || got[1].Value != 40 {
		t.Errorf("expected samples sorted by time, got %+v", got)
	}
	for _, s := range got {
		if s.Role != logic.RoleStove {
			t.Errorf("expected stove role, got %q", s.Role)
		}
	}
}

func TestPrepareCorrectionKeepsAmbient(t *testing.T) {
	records := []Record{
		{MissionID: "m1", Timestamp: at(0), Value: num(30), SensorTypeID: sensor(1)},
		{MissionID: "m1", Timestamp: at(0), Value: num(18), SensorTypeID: sensor(9)},
	}
	opts := DefaultOptions()
	opts.Correction = true
	got, err := Prepare(records, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both roles kept, got %d samples", len(got))
	}
	if got[1].Role != logic.RoleAmbient {
		t.Errorf("expected ambient reading second, got %q", got[1].Role)
	}
}

func TestPrepareCorrectionUsesOneStoveSeries(t *testing.T) {
	var records []Record
	for m := 0; m < 3; m++ {
		records = append(records,
			Record{MissionID: "m1", Timestamp: at(m), Value: num(40), SensorTypeID: sensor(1)},
			Record{MissionID: "m1", Timestamp: at(m), Value: num(25), SensorTypeID: sensor(2)},
			Record{MissionID: "m1", Timestamp: at(m), Value: num(20), SensorTypeID: sensor(9)},
		)
	}
	opts := DefaultOptions()
	opts.Correction = true
	got, err := Prepare(records, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("expected sensors 1 and 9 only, got %d samples", len(got))
	}
	stove := 0
	for _, s := range got {
		if s.Role == logic.RoleStove {
			stove++
			if s.Value != 40 {
				t.Errorf("expected only sensor 1 as stove, got value %v", s.Value)
			}
		}
	}
	if stove != 3 {
		t.Errorf("expected 3 stove samples, got %d", stove)
	}

	// Without correction every stove thermocouple is kept.
	opts.Correction = false
	got, _ = Prepare(records, opts)
	if len(got) != 6 {
		t.Errorf("expected sensors 1 and 2 without correction, got %d samples", len(got))
	}
}

func TestPrepareCorrectionSensorsOverride(t *testing.T) {
	records := []Record{
		{MissionID: "m1", Timestamp: at(0), Value: num(40), SensorTypeID: sensor(1)},
		{MissionID: "m1", Timestamp: at(0), Value: num(55), SensorTypeID: sensor(2)},
		{MissionID: "m1", Timestamp: at(0), Value: num(20), SensorTypeID: sensor(9)},
	}
	opts := DefaultOptions()
	opts.Correction = true
	opts.CorrectionSensors = map[int]logic.SensorRole{2: logic.RoleStove, 9: logic.RoleAmbient}
	got, err := Prepare(records, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Value != 55 {
		t.Errorf("expected sensor 2 as the stove series, got %+v", got)
	}
}

func TestPrepareSentinelAndNull(t *testing.T) {
	records := []Record{
		{Timestamp: at(0), Value: num(SentinelValue), SensorTypeID: sensor(1)},
		{Timestamp: at(1), Value: nil, SensorTypeID: sensor(1)},
		{Timestamp: at(2), Value: num(25), SensorTypeID: sensor(1)},
	}
	got, err := Prepare(records, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(got[0].Value) || !math.IsNaN(got[1].Value) {
		t.Errorf("expected sentinel and null to be missing, got %v and %v", got[0].Value, got[1].Value)
	}
	if got[2].Value != 25 {
		t.Errorf("expected 25, got %v", got[2].Value)
	}

	opts := DefaultOptions()
	opts.NoSentinel = true
	got, err = Prepare(records[:1], opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Value != SentinelValue {
		t.Errorf("expected sentinel kept when disabled, got %v", got[0].Value)
	}
}

func TestPrepareDropsMissingTimestamp(t *testing.T) {
	records := []Record{
		{Value: num(50), SensorTypeID: sensor(1)},
		{Timestamp: at(0), Value: num(30), SensorTypeID: sensor(1)},
	}
	got, err := Prepare(records, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Value != 30 {
		t.Errorf("expected the timestamped record only, got %+v", got)
	}
}

func TestPrepareMissingSensor(t *testing.T) {
	records := []Record{{Timestamp: at(0), Value: num(30)}}
	if _, err := Prepare(records, DefaultOptions()); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestPrepareNormalisesZone(t *testing.T) {
	local := t0.In(time.FixedZone("X", -5*3600))
	got, err := Prepare([]Record{{Timestamp: &local, Value: num(1), SensorTypeID: sensor(2)}}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got[0].Timestamp.Location())
	}
	if !got[0].Timestamp.Equal(t0) {
		t.Errorf("expected %v, got %v", t0, got[0].Timestamp)
	}
}
