// Package preprocess turns raw sensor records into the clean, time-ordered
// samples consumed by the detector.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Geocene/firefinder/internal/logic"
)

// SentinelValue is reported by a broken thermocouple.
const SentinelValue = 983

// DefaultSensors maps sensor type ids to roles.
var DefaultSensors = map[int]logic.SensorRole{
	1: logic.RoleStove,
	2: logic.RoleStove,
	3: logic.RoleStove,
	4: logic.RoleStove,
	9: logic.RoleAmbient,
}

// DefaultCorrectionSensors is the role mapping used when ambient correction
// is on. Only one stove series is corrected, so other stove thermocouples
// are left out.
var DefaultCorrectionSensors = map[int]logic.SensorRole{
	1: logic.RoleStove,
	9: logic.RoleAmbient,
}

// ErrInvalidRecord is wrapped by every data-shape error.
var ErrInvalidRecord = errors.New("invalid record")

// Record is one raw reading as delivered by a data logger.
// A nil Timestamp or Value means the field was absent or null.
type Record struct {
	MissionID    string
	Timestamp    *time.Time
	Value        *float64
	SensorTypeID *int
}

// Options controls Prepare.
type Options struct {
	// Correction keeps the stove and ambient series named by
	// CorrectionSensors so ambient readings can be subtracted later.
	// Without it only Role is kept, mapped through Sensors.
	Correction bool
	// Role selected when Correction is off. Defaults to stove.
	Role logic.SensorRole
	// Sensors maps sensor type ids to roles. Defaults to DefaultSensors.
	Sensors map[int]logic.SensorRole
	// CorrectionSensors maps sensor type ids to roles when Correction is on.
	// Defaults to DefaultCorrectionSensors.
	CorrectionSensors map[int]logic.SensorRole
	// Sentinel readings are treated as missing. Defaults to SentinelValue.
	Sentinel float64
	// NoSentinel disables sentinel translation.
	NoSentinel bool
}

// DefaultOptions returns the options used by the reference pipeline.
func DefaultOptions() Options {
	return Options{
		Role:              logic.RoleStove,
		Sensors:           DefaultSensors,
		CorrectionSensors: DefaultCorrectionSensors,
		Sentinel:          SentinelValue,
	}
}

// Prepare normalises timestamps to UTC, drops records without a timestamp,
// sorts by time, translates sentinel values to missing readings and keeps
// only the sensors the detector needs: the Role series without correction,
// the CorrectionSensors stove and ambient series with it.
func Prepare(records []Record, opts Options) ([]logic.Sample, error) {
	if opts.Sensors == nil {
		opts.Sensors = DefaultSensors
	}
	if opts.CorrectionSensors == nil {
		opts.CorrectionSensors = DefaultCorrectionSensors
	}
	sensors := opts.Sensors
	if opts.Correction {
		sensors = opts.CorrectionSensors
	}
	if opts.Role == "" {
		opts.Role = logic.RoleStove
	}
	if opts.Sentinel == 0 && !opts.NoSentinel {
		opts.Sentinel = SentinelValue
	}

	samples := make([]logic.Sample, 0, len(records))
	for i, r := range records {
		if r.Timestamp == nil {
			continue
		}
		if r.SensorTypeID == nil {
			return nil, fmt.Errorf("%w: record %d: missing sensor_type_id", ErrInvalidRecord, i)
		}
		role, ok := sensors[*r.SensorTypeID]
		if !ok {
			continue
		}
		if !opts.Correction && role != opts.Role {
			continue
		}

		v := math.NaN()
		if r.Value != nil {
			v = *r.Value
		}
		if !opts.NoSentinel && v == opts.Sentinel {
			v = math.NaN()
		}

		samples = append(samples, logic.Sample{
			MissionID: r.MissionID,
			Timestamp: r.Timestamp.UTC(),
			Value:     v,
			Role:      role,
		})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}
