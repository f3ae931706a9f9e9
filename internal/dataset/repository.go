package dataset

import (
	"fmt"
	"time"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

// Repository holds the process-wide observation set. It is constructed once at
// startup and never mutated afterwards; every query works on a fresh filtered
// copy. Components receive the repository explicitly rather than reaching for
// global state.
type Repository struct {
	snapshotID   core.SnapshotID
	source       string
	loadedAt     time.Time
	breakpoints  coral.Breakpoints
	observations []coral.Observation
}

// New builds a repository from loaded observations, deriving each record's
// size class from the given breakpoints.
func New(observations []coral.Observation, breakpoints coral.Breakpoints, source string) *Repository {
	owned := make([]coral.Observation, len(observations))
	copy(owned, observations)
	for i := range owned {
		owned[i].SizeClass = breakpoints.Classify(owned[i].SizeCm2)
	}
	return &Repository{
		snapshotID:   core.NewSnapshotID(),
		source:       source,
		loadedAt:     time.Now(),
		breakpoints:  breakpoints,
		observations: owned,
	}
}

// SnapshotID identifies this loaded dataset
func (r *Repository) SnapshotID() core.SnapshotID { return r.snapshotID }

// Source describes where the dataset was loaded from
func (r *Repository) Source() string { return r.source }

// LoadedAt is the load timestamp
func (r *Repository) LoadedAt() time.Time { return r.loadedAt }

// Len is the total record count
func (r *Repository) Len() int { return len(r.observations) }

// Breakpoints returns the size class boundaries the dataset was classified with
func (r *Repository) Breakpoints() coral.Breakpoints { return r.breakpoints }

// Filter selects observations. Nil pointer fields mean "no constraint".
type Filter struct {
	Region         string
	DataType       coral.DataType
	FragmentStatus *coral.FragmentStatus
	YearMin        *int
	YearMax        *int
	SizeMin        *float64
	SizeMax        *float64
}

// RangeError reports an inverted min/max filter pair, naming the offending
// parameter so the boundary can echo it back.
type RangeError struct {
	Param    string
	Min, Max interface{}
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s range: minimum %v exceeds maximum %v", e.Param, e.Min, e.Max)
}

// Validate rejects inverted ranges before any filtering happens
func (f Filter) Validate() error {
	if f.YearMin != nil && f.YearMax != nil && *f.YearMin > *f.YearMax {
		return &RangeError{Param: "year", Min: *f.YearMin, Max: *f.YearMax}
	}
	if f.SizeMin != nil && f.SizeMax != nil && *f.SizeMin > *f.SizeMax {
		return &RangeError{Param: "size", Min: *f.SizeMin, Max: *f.SizeMax}
	}
	return nil
}

// Select returns a fresh copy of the observations matching the filter. The
// repository's own slice is never exposed.
func (r *Repository) Select(f Filter) []coral.Observation {
	out := make([]coral.Observation, 0)
	for _, obs := range r.observations {
		if f.Region != "" && obs.Region != f.Region {
			continue
		}
		if f.DataType != "" && !obs.HasOutcome(f.DataType) {
			continue
		}
		if f.FragmentStatus != nil && obs.FragmentStatus != *f.FragmentStatus {
			continue
		}
		if f.YearMin != nil && obs.SurveyYear < *f.YearMin {
			continue
		}
		if f.YearMax != nil && obs.SurveyYear > *f.YearMax {
			continue
		}
		if f.SizeMin != nil && obs.SizeCm2 < *f.SizeMin {
			continue
		}
		if f.SizeMax != nil && obs.SizeCm2 > *f.SizeMax {
			continue
		}
		out = append(out, obs)
	}
	return out
}

// Reclassified returns the observations of a selection with size classes
// recomputed against custom breakpoints (the by-size endpoint's breaks param).
func Reclassified(observations []coral.Observation, breakpoints coral.Breakpoints) []coral.Observation {
	out := make([]coral.Observation, len(observations))
	copy(out, observations)
	for i := range out {
		out[i].SizeClass = breakpoints.Classify(out[i].SizeCm2)
	}
	return out
}

// Meta summarizes an observation selection for response envelopes
type Meta struct {
	Records  int      `json:"records"`
	Studies  int      `json:"studies"`
	Regions  int      `json:"regions"`
	YearMin  int      `json:"year_min"`
	YearMax  int      `json:"year_max"`
	Snapshot string   `json:"snapshot_id"`
	Names    []string `json:"study_names,omitempty"`
}

// Describe computes the selection rollup included in every data response
func (r *Repository) Describe(observations []coral.Observation) Meta {
	studies := make(map[string]bool)
	regions := make(map[string]bool)
	meta := Meta{Records: len(observations), Snapshot: r.snapshotID.String()}
	for i, obs := range observations {
		studies[obs.Study] = true
		regions[obs.Region] = true
		if i == 0 || obs.SurveyYear < meta.YearMin {
			meta.YearMin = obs.SurveyYear
		}
		if obs.SurveyYear > meta.YearMax {
			meta.YearMax = obs.SurveyYear
		}
	}
	meta.Studies = len(studies)
	meta.Regions = len(regions)
	return meta
}
