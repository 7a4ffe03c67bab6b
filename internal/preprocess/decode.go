package preprocess

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts accepted in addition to epoch milliseconds.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// Decode reads records in the named format, "json" or "csv".
func Decode(r io.Reader, format string) ([]Record, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return DecodeJSON(r)
	case "csv":
		return DecodeCSV(r)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// FormatOf guesses the record format from a file name.
func FormatOf(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return "csv"
	}
	return "json"
}

type jsonRecord struct {
	MissionID    json.RawMessage `json:"mission_id"`
	Timestamp    json.RawMessage `json:"timestamp"`
	Value        json.RawMessage `json:"value"`
	SensorTypeID json.RawMessage `json:"sensor_type_id"`
}

// DecodeJSON reads a JSON array of records. Timestamps may be epoch
// milliseconds or date strings; values and ids may be numbers, numeric
// strings or null.
func DecodeJSON(r io.Reader) ([]Record, error) {
	var raw []jsonRecord
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	out := make([]Record, len(raw))
	for i, jr := range raw {
		rec, err := jr.record()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, i, err)
		}
		out[i] = rec
	}
	return out, nil
}

func (jr jsonRecord) record() (Record, error) {
	var rec Record
	var err error
	if rec.MissionID, err = rawString(jr.MissionID); err != nil {
		return rec, fmt.Errorf("mission_id: %w", err)
	}
	ts, err := rawString(jr.Timestamp)
	if err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	if rec.Timestamp, err = ParseTimestamp(ts); err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	v, err := rawString(jr.Value)
	if err != nil {
		return rec, fmt.Errorf("value: %w", err)
	}
	if rec.Value, err = parseValue(v); err != nil {
		return rec, fmt.Errorf("value: %w", err)
	}
	id, err := rawString(jr.SensorTypeID)
	if err != nil {
		return rec, fmt.Errorf("sensor_type_id: %w", err)
	}
	if rec.SensorTypeID, err = parseID(id); err != nil {
		return rec, fmt.Errorf("sensor_type_id: %w", err)
	}
	return rec, nil
}

// rawString flattens a JSON scalar to its text; null and absent become "".
func rawString(m json.RawMessage) (string, error) {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return "", nil
	}
	if m[0] == '"' {
		var s string
		if err := json.Unmarshal(m, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if m[0] == '{' || m[0] == '[' {
		return "", errors.New("expected a scalar")
	}
	return string(m), nil
}

// DecodeCSV reads comma separated records with a header row naming at least
// timestamp, value and sensor_type_id. A mission_id column is optional.
func DecodeCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"timestamp", "value", "sensor_type_id"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: csv header missing %q", ErrInvalidRecord, required)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		var rec Record
		rec.MissionID = field(row, "mission_id")
		if rec.Timestamp, err = ParseTimestamp(field(row, "timestamp")); err != nil {
			return nil, fmt.Errorf("%w: line %d: timestamp: %v", ErrInvalidRecord, line, err)
		}
		if rec.Value, err = parseValue(field(row, "value")); err != nil {
			return nil, fmt.Errorf("%w: line %d: value: %v", ErrInvalidRecord, line, err)
		}
		if rec.SensorTypeID, err = parseID(field(row, "sensor_type_id")); err != nil {
			return nil, fmt.Errorf("%w: line %d: sensor_type_id: %v", ErrInvalidRecord, line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseTimestamp accepts epoch milliseconds or one of the supported date
// layouts. Fractional milliseconds round to the nearest millisecond. An
// empty string yields nil.
func ParseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return nil, fmt.Errorf("unrecognised time %q", s)
		}
		t := time.UnixMilli(int64(math.Round(ms))).UTC()
		return &t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", s)
}

func parseValue(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	return &v, nil
}

func parseID(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	id := int(f)
	return &id, nil
}
