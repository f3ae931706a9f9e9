package dataset

import (
	"fmt"
	"math"
	"sort"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

// TransitionSummaries derives grouped transition-rate estimates from raw
// observations for the Lefkovitch matrix builder.
//
// Policy, stated explicitly: rows need a survival outcome and a positive start
// size; everything else is dropped. A survivor with a measured end size moves
// to the end size's class; a survivor without one counts as stasis in its
// start class. Deaths leave the matrix (they are the unassigned remainder of
// each column). Optional per-class fecundity rates add reproduction cells into
// the smallest class; these are flagged so the solver treats them as
// per-capita contributions, not probabilities.
func TransitionSummaries(observations []coral.Observation, breakpoints coral.Breakpoints, fecundity []float64) ([]coral.TransitionSummary, error) {
	k := breakpoints.NumClasses()
	if len(fecundity) > 0 && len(fecundity) != k {
		return nil, fmt.Errorf("fecundity has %d rates for %d classes", len(fecundity), k)
	}

	startN := make(map[coral.SizeClass]int)
	moves := make(map[[2]coral.SizeClass]int) // [from, to] -> survivor count
	for _, obs := range observations {
		if obs.Survived == nil || obs.SizeCm2 <= 0 {
			continue
		}
		from := breakpoints.Classify(obs.SizeCm2)
		startN[from]++
		if !*obs.Survived {
			continue
		}
		to := from
		if obs.EndSizeCm2 != nil && *obs.EndSizeCm2 > 0 {
			to = breakpoints.Classify(*obs.EndSizeCm2)
		}
		moves[[2]coral.SizeClass{from, to}]++
	}
	if len(startN) == 0 {
		return nil, core.ErrNoData
	}

	keys := make([][2]coral.SizeClass, 0, len(moves))
	for key := range moves {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	out := make([]coral.TransitionSummary, 0, len(keys)+k)
	for _, key := range keys {
		n := startN[key[0]]
		count := moves[key]
		out = append(out, coral.TransitionSummary{
			FromClass: key[0],
			ToClass:   key[1],
			N:         n,
			Count:     count,
			Rate:      float64(count) / float64(n),
		})
	}

	for j, f := range fecundity {
		if f <= 0 {
			continue
		}
		from := coral.SizeClass(j + 1)
		n := startN[from]
		out = append(out, coral.TransitionSummary{
			FromClass:    from,
			ToClass:      coral.SizeClass(1),
			N:            n,
			Count:        int(math.Round(f * float64(n))),
			Rate:         f,
			Reproduction: true,
		})
	}
	return out, nil
}
