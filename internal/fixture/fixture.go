// Package fixture builds synthetic logger records for tests across packages.
package fixture

import (
	"encoding/json"
	"math"
	"time"

	"github.com/Geocene/firefinder/internal/preprocess"
)

// Start is the first timestamp of every fixture.
var Start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// FireDay is four hours of one-minute stove readings with one fire. With
// default detector settings it yields a single 80 minute event from
// Start+60m to Start+140m.
func FireDay() []preprocess.Record {
	values := make([]float64, 240)
	for i := range values {
		values[i] = fireShape(i)
	}
	return Records("m1", 1, values)
}

// Flat is n one-minute stove readings at a constant cold value.
func Flat(n int) []preprocess.Record {
	values := make([]float64, n)
	for i := range values {
		values[i] = 15
	}
	return Records("m1", 1, values)
}

// Records builds one record per value, one minute apart from Start.
func Records(mission string, sensor int, values []float64) []preprocess.Record {
	out := make([]preprocess.Record, len(values))
	for i, v := range values {
		ts := Start.Add(time.Duration(i) * time.Minute)
		v := v
		id := sensor
		out[i] = preprocess.Record{MissionID: mission, Timestamp: &ts, Value: &v, SensorTypeID: &id}
	}
	return out
}

// JSON encodes records in the logger's JSON export layout.
func JSON(records []preprocess.Record) []byte {
	type row struct {
		MissionID    string   `json:"mission_id"`
		Timestamp    *int64   `json:"timestamp"`
		Value        *float64 `json:"value"`
		SensorTypeID *int     `json:"sensor_type_id"`
	}
	rows := make([]row, len(records))
	for i, r := range records {
		rows[i] = row{MissionID: r.MissionID, Value: r.Value, SensorTypeID: r.SensorTypeID}
		if r.Timestamp != nil {
			ms := r.Timestamp.UnixMilli()
			rows[i].Timestamp = &ms
		}
	}
	data, _ := json.Marshal(rows)
	return data
}

func fireShape(i int) float64 {
	switch {
	case i < 60:
		return 15
	case i < 80:
		return 15 + 3*float64(i-59)
	case i < 140:
		return 75 + 0.5*float64(i-79)
	case i < 180:
		return math.Max(15, 105-3*float64(i-139))
	default:
		return 15
	}
}
