package demography

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

// zCI is the normal-approximation quantile used throughout for 95% Wald
// intervals. Near-boundary proportions can produce degenerate intervals before
// clipping; that behavior is preserved deliberately.
const zCI = 1.96

// Aggregate computes per-group counts and Wald confidence intervals for the
// chosen outcome, grouped by the given dimensions in order. Rows missing the
// outcome are dropped up front (explicit policy, counted nowhere else). Groups
// with n = 0 never appear. The result is sorted by descending n, ties broken by
// ascending group key, so forest-plot consumers get a stable order.
func Aggregate(observations []coral.Observation, dims []coral.Dimension, dataType coral.DataType) ([]coral.GroupSummary, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("at least one grouping dimension required")
	}

	type bucket struct {
		parts    map[coral.Dimension]string
		outcomes []float64
		sizes    []float64
		yearMin  int
		yearMax  int
	}
	buckets := make(map[string]*bucket)

	for _, obs := range observations {
		outcome, ok := obs.Outcome(dataType)
		if !ok {
			continue
		}
		parts := make(map[coral.Dimension]string, len(dims))
		keyParts := make([]string, 0, len(dims))
		for _, d := range dims {
			v := dimensionValue(obs, d)
			parts[d] = v
			keyParts = append(keyParts, string(d)+"="+v)
		}
		key := strings.Join(keyParts, "|")

		b, ok := buckets[key]
		if !ok {
			b = &bucket{parts: parts, yearMin: obs.SurveyYear, yearMax: obs.SurveyYear}
			buckets[key] = b
		}
		b.outcomes = append(b.outcomes, outcome)
		b.sizes = append(b.sizes, obs.SizeCm2)
		if obs.SurveyYear < b.yearMin {
			b.yearMin = obs.SurveyYear
		}
		if obs.SurveyYear > b.yearMax {
			b.yearMax = obs.SurveyYear
		}
	}

	if len(buckets) == 0 {
		return nil, core.ErrNoData
	}

	summaries := make([]coral.GroupSummary, 0, len(buckets))
	for key, b := range buckets {
		s, err := summarize(key, b.parts, b.outcomes, b.sizes, b.yearMin, b.yearMax, dataType)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", key, err)
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].N != summaries[j].N {
			return summaries[i].N > summaries[j].N
		}
		return summaries[i].Key < summaries[j].Key
	})
	return summaries, nil
}

func summarize(key string, parts map[coral.Dimension]string, outcomes, sizes []float64, yearMin, yearMax int, dataType coral.DataType) (coral.GroupSummary, error) {
	n := len(outcomes)
	mean, err := stats.Mean(outcomes)
	if err != nil {
		return coral.GroupSummary{}, err
	}

	var se float64
	if dataType == coral.DataSurvival {
		se = binomialSE(mean, n)
	} else if n > 1 {
		sd, sdErr := stats.StandardDeviationSample(outcomes)
		if sdErr != nil {
			return coral.GroupSummary{}, sdErr
		}
		se = sd / sqrtN(n)
	}

	lower := mean - zCI*se
	upper := mean + zCI*se
	if dataType == coral.DataSurvival {
		lower = clip01(lower)
		upper = clip01(upper)
	}

	minSize, _ := stats.Min(sizes)
	maxSize, _ := stats.Max(sizes)
	medianSize, _ := stats.Median(sizes)

	s := coral.GroupSummary{
		Key:        key,
		Parts:      parts,
		N:          n,
		Rate:       mean,
		SE:         se,
		CILower:    lower,
		CIUpper:    upper,
		MinSize:    minSize,
		MaxSize:    maxSize,
		MedianSize: medianSize,
		YearMin:    yearMin,
		YearMax:    yearMax,
	}
	if dataType == coral.DataSurvival {
		if err := s.ValidateProportion(); err != nil {
			return coral.GroupSummary{}, err
		}
	}
	return s, nil
}

func dimensionValue(obs coral.Observation, d coral.Dimension) string {
	switch d {
	case coral.DimStudy:
		return obs.Study
	case coral.DimRegion:
		return obs.Region
	case coral.DimSizeClass:
		return obs.SizeClass.Label()
	case coral.DimFragmentStatus:
		return string(obs.FragmentStatus)
	case coral.DimSurveyYear:
		return strconv.Itoa(obs.SurveyYear)
	}
	return ""
}

func binomialSE(p float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sqrt(p * (1 - p) / float64(n))
}
