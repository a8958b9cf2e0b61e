package autoupdate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/jsonc"
	"github.com/samber/lo"

	"github.com/obentoo/ebumper/internal/common/config"
	"github.com/obentoo/ebumper/internal/gate"
)

// ErrMissingOrigin is returned for an observation record without origin
var ErrMissingOrigin = errors.New("observation is missing origin")

// ObservationFile is a hand-written or exported set of source answers,
// read as JSON with comments:
//
//	{
//	  // what the overlay has
//	  "current": "0.9.5",
//	  "observations": [
//	    {"origin": "github", "value": "v0.10.0"},
//	    {"origin": "pypi", "value": "0.10.0", "weight": 0.25}
//	  ]
//	}
type ObservationFile struct {
	Package      string              `json:"package,omitempty"`
	Current      string              `json:"current,omitempty"`
	Observations []ObservationRecord `json:"observations"`
}

// ObservationRecord is one entry of an ObservationFile. Weight defaults to
// the origin's registry weight; ObservedAt defaults to load time.
type ObservationRecord struct {
	Origin     string     `json:"origin"`
	Value      string     `json:"value"`
	Weight     *float64   `json:"weight,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// ParseObservations decodes JSONC content.
func ParseObservations(content []byte) (*ObservationFile, error) {
	stripped := jsonc.New().StripS(string(content))

	var f ObservationFile
	if err := json.Unmarshal([]byte(stripped), &f); err != nil {
		return nil, fmt.Errorf("failed parsing observations: %w", err)
	}
	for i, rec := range f.Observations {
		if rec.Origin == "" {
			return nil, fmt.Errorf("%w: entry %d", ErrMissingOrigin, i)
		}
	}
	return &f, nil
}

// LoadObservations reads and decodes an observation file.
func LoadObservations(path string) (*ObservationFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}
	return ParseObservations(data)
}

// WeightsFromSettings maps source names to their weight.
func WeightsFromSettings(settings []config.SourceSetting) map[string]float64 {
	return lo.SliceToMap(settings, func(s config.SourceSetting) (string, float64) {
		return s.Name, s.Weight
	})
}

// ToObservations builds gate observations. Origins without an explicit or
// registry weight weigh 0.
func (f *ObservationFile) ToObservations(weights map[string]float64, now time.Time) []gate.Observation {
	return lo.Map(f.Observations, func(rec ObservationRecord, _ int) gate.Observation {
		weight := weights[rec.Origin]
		if rec.Weight != nil {
			weight = *rec.Weight
		}
		at := now
		if rec.ObservedAt != nil {
			at = *rec.ObservedAt
		}
		return gate.NewObservation(rec.Origin, rec.Value, weight, at)
	})
}

// DropExpired keeps the observations younger than window at now and
// returns how many were dropped. A non-positive window keeps everything.
func DropExpired(obs []gate.Observation, window time.Duration, now time.Time) ([]gate.Observation, int) {
	fresh := lo.Reject(obs, func(o gate.Observation, _ int) bool {
		return o.Expired(window, now)
	})
	return fresh, len(obs) - len(fresh)
}
