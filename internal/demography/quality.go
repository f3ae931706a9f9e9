package demography

import (
	"fmt"

	"reefdemog/domain/coral"
)

// QualityThresholds configures the warning rules of the quality assessor
type QualityThresholds struct {
	// DominantShare is the single-study share above which a dominance warning
	// fires (e.g. 0.5)
	DominantShare float64
	// MinN is the sample-size floor below which a small-sample warning fires
	MinN int
	// RSquaredFloor triggers the weak-model warning
	RSquaredFloor float64
	// MixMinority is the minority share above which fragments and colonies
	// count as mixed (e.g. 0.1)
	MixMinority float64
}

// AssessQuality derives data-quality indicators and human-readable warnings
// for a filtered observation set. The model fit is optional; without it the R²
// rule simply does not fire. Warning order is stable: model strength, study
// dominance, provenance mixing, sample size. Every warning carries its
// computed value inline.
func AssessQuality(observations []coral.Observation, fit *coral.SurvivalModelFit, thresholds QualityThresholds) coral.QualityMetrics {
	metrics := coral.QualityMetrics{
		SampleSize: len(observations),
		Warnings:   []string{},
	}

	studies := make(map[string]int)
	regions := make(map[string]bool)
	fragments := 0
	colonies := 0
	for i, obs := range observations {
		studies[obs.Study]++
		regions[obs.Region] = true
		switch obs.FragmentStatus {
		case coral.StatusFragment:
			fragments++
		case coral.StatusColony:
			colonies++
		}
		if i == 0 || obs.SurveyYear < metrics.YearMin {
			metrics.YearMin = obs.SurveyYear
		}
		if obs.SurveyYear > metrics.YearMax {
			metrics.YearMax = obs.SurveyYear
		}
	}
	metrics.NStudies = len(studies)
	metrics.NRegions = len(regions)

	n := len(observations)
	if n > 0 {
		for name, count := range studies {
			if count > metrics.Dominant.N ||
				(count == metrics.Dominant.N && name < metrics.Dominant.Name) {
				metrics.Dominant = coral.DominantStudy{Name: name, N: count}
			}
		}
		metrics.Dominant.Pct = float64(metrics.Dominant.N) / float64(n) * 100

		metrics.FragmentMix = coral.FragmentMix{
			FragmentPct: float64(fragments) / float64(n) * 100,
			ColonyPct:   float64(colonies) / float64(n) * 100,
		}
		minority := thresholds.MixMinority * 100
		metrics.FragmentMix.Mixed = metrics.FragmentMix.FragmentPct > minority &&
			metrics.FragmentMix.ColonyPct > minority
	}

	if fit != nil {
		r2 := fit.PseudoR2
		metrics.RSquared = &r2
		if r2 < thresholds.RSquaredFloor {
			metrics.Warnings = append(metrics.Warnings, fmt.Sprintf(
				"size explains only %.1f%% of variance in survival (pseudo-R² %.3f)",
				r2*100, r2))
		}
	}
	if n > 0 && metrics.Dominant.Pct > thresholds.DominantShare*100 {
		metrics.Warnings = append(metrics.Warnings, fmt.Sprintf(
			"study %q provides %.0f%% of all records (%d of %d); estimates may reflect a single dataset",
			metrics.Dominant.Name, metrics.Dominant.Pct, metrics.Dominant.N, n))
	}
	if metrics.FragmentMix.Mixed {
		metrics.Warnings = append(metrics.Warnings, fmt.Sprintf(
			"sample mixes restoration fragments (%.0f%%) and natural colonies (%.0f%%); size-survival relationships may be confounded",
			metrics.FragmentMix.FragmentPct, metrics.FragmentMix.ColonyPct))
	}
	if n < thresholds.MinN {
		metrics.Warnings = append(metrics.Warnings, fmt.Sprintf(
			"only %d records available (below the %d-record adequacy floor)",
			n, thresholds.MinN))
	}

	return metrics
}
