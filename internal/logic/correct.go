package logic

import (
	"math"
	"sort"
	"time"
)

type joinKey struct {
	mission string
	at      time.Time
}

// CorrectValues subtracts ambient temperature from stove readings.
//
// With correction disabled every sample passes through unchanged. With
// correction enabled, stove samples are joined to ambient samples of the same
// mission at exactly the same timestamp; a stove sample with no ambient
// counterpart gets a NaN value. If no ambient sample exists at all,
// DefaultAmbient is subtracted instead. Output is sorted by timestamp.
func CorrectValues(samples []Sample, correction bool) []Reading {
	if !correction {
		out := make([]Reading, len(samples))
		for i, s := range samples {
			out[i] = Reading{MissionID: s.MissionID, Timestamp: s.Timestamp, Value: s.Value}
		}
		return out
	}

	ambient := make(map[joinKey][]float64)
	for _, s := range samples {
		if s.Role == RoleAmbient {
			k := joinKey{mission: s.MissionID, at: s.Timestamp.UTC()}
			ambient[k] = append(ambient[k], s.Value)
		}
	}

	var out []Reading
	for _, s := range samples {
		if s.Role != RoleStove {
			continue
		}
		if len(ambient) == 0 {
			out = append(out, Reading{MissionID: s.MissionID, Timestamp: s.Timestamp, Value: s.Value - DefaultAmbient})
			continue
		}
		matches := ambient[joinKey{mission: s.MissionID, at: s.Timestamp.UTC()}]
		if len(matches) == 0 {
			out = append(out, Reading{MissionID: s.MissionID, Timestamp: s.Timestamp, Value: math.NaN()})
			continue
		}
		// One row per ambient match, like any left outer join.
		for _, a := range matches {
			out = append(out, Reading{MissionID: s.MissionID, Timestamp: s.Timestamp, Value: s.Value - a})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
