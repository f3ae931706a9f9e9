package demography

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

// eggerAlpha is the conventional significance level for Egger's asymmetry test
const eggerAlpha = 0.10

// minEggerStudies is the floor below which publication-bias diagnostics are
// reported as null rather than fabricated
const minEggerStudies = 3

// MetaAnalyzer pools per-study effect estimates under a DerSimonian-Laird
// random-effects model.
type MetaAnalyzer struct {
	thresholds coral.HeterogeneityThresholds
}

// NewMetaAnalyzer creates a meta-analysis engine with the given I²
// interpretation thresholds (echoed into every result).
func NewMetaAnalyzer(thresholds coral.HeterogeneityThresholds) *MetaAnalyzer {
	return &MetaAnalyzer{thresholds: thresholds}
}

// Analyze pools the given per-study effects, each study appearing exactly
// once. At least two studies are required; degenerate standard errors (exactly
// zero, the Wald boundary case) are floored at 1e-6 rather than producing
// infinite weights. When a stratified effect set is supplied it drives only
// the fragment/colony subgroup pooling, so a study split across strata still
// contributes a single effect to the top-level estimate, heterogeneity,
// publication-bias test, and leave-one-out.
func (m *MetaAnalyzer) Analyze(effects, stratified []coral.StudyEffect) (*coral.MetaAnalysisResult, error) {
	if len(effects) < 2 {
		return nil, core.NewInsufficientDataError(len(effects), 2)
	}
	cleaned, err := cleanEffects(effects)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(cleaned))
	for _, e := range cleaned {
		if seen[e.Study] {
			return nil, fmt.Errorf("study %s contributes more than one effect to the pooling", e.Study)
		}
		seen[e.Study] = true
	}

	p := pool(cleaned)

	result := &coral.MetaAnalysisResult{
		Pooled:          p.pooled,
		CILower:         p.ciLower,
		CIUpper:         p.ciUpper,
		PredictionLower: p.piLower,
		PredictionUpper: p.piUpper,
		Heterogeneity: coral.Heterogeneity{
			I2:      p.i2,
			Tau2:    p.tau2,
			Q:       p.q,
			QDf:     p.df,
			QPValue: p.qPValue,
			Label:   m.label(p.i2),
		},
		PublicationBias: eggerTest(cleaned),
		Effects:         p.weighted,
		Thresholds:      m.thresholds,
	}

	strataSrc := cleaned
	if stratified != nil {
		if strataSrc, err = cleanEffects(stratified); err != nil {
			return nil, err
		}
	}
	result.Strata = m.stratify(strataSrc)

	loo, err := m.leaveOneOut(cleaned, p.weighted)
	if err != nil {
		return nil, err
	}
	result.LeaveOneOut = loo

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// cleanEffects copies the input, rejecting invalid values and flooring
// degenerate standard errors before any weighting happens
func cleanEffects(effects []coral.StudyEffect) ([]coral.StudyEffect, error) {
	cleaned := make([]coral.StudyEffect, len(effects))
	copy(cleaned, effects)
	for i := range cleaned {
		if cleaned[i].SE < 0 || math.IsNaN(cleaned[i].SE) || math.IsNaN(cleaned[i].Effect) {
			return nil, fmt.Errorf("study %s: invalid effect/SE (%f, %f)",
				cleaned[i].Study, cleaned[i].Effect, cleaned[i].SE)
		}
		if cleaned[i].SE < 1e-6 {
			cleaned[i].SE = 1e-6
		}
	}
	return cleaned, nil
}

// label maps an I² value onto the configured interpretation bands
func (m *MetaAnalyzer) label(i2 float64) string {
	switch {
	case i2 > m.thresholds.Considerable:
		return "considerable"
	case i2 > m.thresholds.Substantial:
		return "substantial"
	case i2 > m.thresholds.Moderate:
		return "moderate"
	default:
		return "low"
	}
}

type poolResult struct {
	pooled, ciLower, ciUpper float64
	piLower, piUpper         float64
	q, tau2, i2, qPValue     float64
	df                       int
	weighted                 []coral.StudyEffect
}

// pool runs the DerSimonian-Laird computation. It tolerates a single study
// (needed by leave-one-out on small inputs), in which case the study's own
// estimate and Wald interval are returned with zero heterogeneity.
func pool(effects []coral.StudyEffect) poolResult {
	k := len(effects)
	if k == 1 {
		e := effects[0]
		out := poolResult{
			pooled:  e.Effect,
			ciLower: e.Effect - zCI*e.SE,
			ciUpper: e.Effect + zCI*e.SE,
			piLower: e.Effect - zCI*e.SE,
			piUpper: e.Effect + zCI*e.SE,
		}
		e.Weight = 1
		out.weighted = []coral.StudyEffect{e}
		return out
	}

	sumW, sumW2, sumWY := 0.0, 0.0, 0.0
	for _, e := range effects {
		w := 1 / (e.SE * e.SE)
		sumW += w
		sumW2 += w * w
		sumWY += w * e.Effect
	}
	fixedPooled := sumWY / sumW

	q := 0.0
	for _, e := range effects {
		w := 1 / (e.SE * e.SE)
		d := e.Effect - fixedPooled
		q += w * d * d
	}
	df := k - 1

	// tau² truncated at zero when Q falls below its degrees of freedom
	tau2 := 0.0
	if c := sumW - sumW2/sumW; q > float64(df) && c > 0 {
		tau2 = (q - float64(df)) / c
	}
	i2 := 0.0
	if q > float64(df) {
		i2 = (q - float64(df)) / q * 100
	}
	qPValue := distuv.ChiSquared{K: float64(df)}.Survival(q)

	sumWStar, sumWStarY := 0.0, 0.0
	for _, e := range effects {
		w := 1 / (e.SE*e.SE + tau2)
		sumWStar += w
		sumWStarY += w * e.Effect
	}
	pooled := sumWStarY / sumWStar
	sePooled := math.Sqrt(1 / sumWStar)

	// Prediction interval uses a t quantile on k-2 df, floored at one, and adds
	// tau², making it strictly wider than the CI whenever between-study
	// variance exists
	tQuant := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: math.Max(float64(k-2), 1)}.Quantile(0.975)
	piHalf := tQuant * math.Sqrt(tau2+sePooled*sePooled)

	weighted := make([]coral.StudyEffect, k)
	copy(weighted, effects)
	for i := range weighted {
		weighted[i].Weight = (1 / (weighted[i].SE*weighted[i].SE + tau2)) / sumWStar
	}
	sort.Slice(weighted, func(i, j int) bool {
		if weighted[i].Weight != weighted[j].Weight {
			return weighted[i].Weight > weighted[j].Weight
		}
		return weighted[i].Study < weighted[j].Study
	})

	return poolResult{
		pooled:   pooled,
		ciLower:  pooled - zCI*sePooled,
		ciUpper:  pooled + zCI*sePooled,
		piLower:  pooled - piHalf,
		piUpper:  pooled + piHalf,
		q:        q,
		tau2:     tau2,
		i2:       i2,
		qPValue:  qPValue,
		df:       df,
		weighted: weighted,
	}
}

// eggerTest regresses the standardized effect against precision; a nonzero
// intercept suggests small-study asymmetry. Returns nil below three studies.
func eggerTest(effects []coral.StudyEffect) *coral.EggerTest {
	k := len(effects)
	if k < minEggerStudies {
		return nil
	}
	// OLS of y_i = effect_i/se_i on x_i = 1/se_i
	var sumX, sumY, sumXX, sumXY float64
	for _, e := range effects {
		x := 1 / e.SE
		y := e.Effect / e.SE
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	n := float64(k)
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	rss := 0.0
	for _, e := range effects {
		x := 1 / e.SE
		y := e.Effect / e.SE
		r := y - intercept - slope*x
		rss += r * r
	}
	df := n - 2
	sigma2 := rss / df
	seIntercept := math.Sqrt(sigma2 * sumXX / denom)
	if seIntercept == 0 {
		return nil
	}
	tStat := intercept / seIntercept
	pValue := 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(tStat))

	return &coral.EggerTest{
		Intercept: intercept,
		SE:        seIntercept,
		TStat:     tStat,
		PValue:    pValue,
		Asymmetry: pValue < eggerAlpha,
	}
}

// stratify repeats the pooling separately per fragment-status partition
func (m *MetaAnalyzer) stratify(effects []coral.StudyEffect) []coral.StratumResult {
	groups := make(map[coral.FragmentStatus][]coral.StudyEffect)
	for _, e := range effects {
		if e.FragmentStatus == "" {
			continue
		}
		groups[e.FragmentStatus] = append(groups[e.FragmentStatus], e)
	}
	statuses := make([]coral.FragmentStatus, 0, len(groups))
	for s := range groups {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	out := make([]coral.StratumResult, 0, len(statuses))
	for _, s := range statuses {
		p := pool(groups[s])
		out = append(out, coral.StratumResult{
			FragmentStatus: s,
			K:              len(groups[s]),
			Pooled:         p.pooled,
			CILower:        p.ciLower,
			CIUpper:        p.ciUpper,
			I2:             p.i2,
		})
	}
	return out
}

// leaveOneOut recomputes the full pooling with each study excluded once. The
// reruns are independent and run in parallel; output order follows the
// weight-sorted study order, not completion order.
func (m *MetaAnalyzer) leaveOneOut(effects []coral.StudyEffect, ordered []coral.StudyEffect) ([]coral.LeaveOneOut, error) {
	if len(effects) < 3 {
		return nil, nil
	}
	out := make([]coral.LeaveOneOut, len(ordered))
	var g errgroup.Group
	for idx, excluded := range ordered {
		g.Go(func() error {
			rest := make([]coral.StudyEffect, 0, len(effects)-1)
			for _, e := range effects {
				if e.Study != excluded.Study {
					rest = append(rest, e)
				}
			}
			p := pool(rest)
			out[idx] = coral.LeaveOneOut{
				ExcludedStudy: excluded.Study,
				Pooled:        p.pooled,
				CILower:       p.ciLower,
				CIUpper:       p.ciUpper,
				I2:            p.i2,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EffectsFromSummaries converts per-study group summaries into meta-analysis
// inputs, carrying the fragment status when a summary is stratified on it.
func EffectsFromSummaries(summaries []coral.GroupSummary) []coral.StudyEffect {
	out := make([]coral.StudyEffect, 0, len(summaries))
	for _, s := range summaries {
		e := coral.StudyEffect{
			Study:  s.Parts[coral.DimStudy],
			Effect: s.Rate,
			SE:     s.SE,
			N:      s.N,
		}
		if fs, ok := s.Parts[coral.DimFragmentStatus]; ok {
			e.FragmentStatus = coral.FragmentStatus(fs)
		}
		out = append(out, e)
	}
	return out
}
