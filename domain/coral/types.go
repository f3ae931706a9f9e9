package coral

import (
	"fmt"
	"math"
)

// ============================================================================
// OBSERVATIONS (raw input, immutable once loaded)
// ============================================================================

// FragmentStatus distinguishes restoration outplant fragments from naturally
// established colonies. The two confound size and survival and are kept apart
// in stratified analyses.
type FragmentStatus string

const (
	StatusFragment FragmentStatus = "fragment"
	StatusColony   FragmentStatus = "colony"
)

// DataType selects which outcome an analysis runs on
type DataType string

const (
	DataSurvival DataType = "survival"
	DataGrowth   DataType = "growth"
)

// Observation is a single coral survival or growth record. Outcome fields are
// pointers: a nil Survived on a survival analysis drops the row (explicitly,
// per operation), it never coerces to false.
type Observation struct {
	Study          string         `json:"study"`
	Region         string         `json:"region"`
	Site           string         `json:"site,omitempty"`
	SizeCm2        float64        `json:"size_cm2"`
	SizeClass      SizeClass      `json:"size_class,omitempty"`
	EndSizeCm2     *float64       `json:"end_size_cm2,omitempty"`
	Survived       *bool          `json:"survived,omitempty"`
	GrowthRate     *float64       `json:"growth_rate,omitempty"`
	FragmentStatus FragmentStatus `json:"fragment_status"`
	SurveyYear     int            `json:"survey_year"`
	Disturbance    string         `json:"disturbance,omitempty"`
}

// HasOutcome reports whether the observation carries the outcome for dataType
func (o Observation) HasOutcome(dataType DataType) bool {
	switch dataType {
	case DataSurvival:
		return o.Survived != nil
	case DataGrowth:
		return o.GrowthRate != nil
	}
	return false
}

// Outcome returns the numeric outcome value for dataType (survival as 0/1)
func (o Observation) Outcome(dataType DataType) (float64, bool) {
	switch dataType {
	case DataSurvival:
		if o.Survived == nil {
			return 0, false
		}
		if *o.Survived {
			return 1, true
		}
		return 0, true
	case DataGrowth:
		if o.GrowthRate == nil {
			return 0, false
		}
		return *o.GrowthRate, true
	}
	return 0, false
}

// ============================================================================
// GROUPED SUMMARIES
// ============================================================================

// Dimension names a grouping axis for the aggregator
type Dimension string

const (
	DimStudy          Dimension = "study"
	DimRegion         Dimension = "region"
	DimSizeClass      Dimension = "size_class"
	DimFragmentStatus Dimension = "fragment_status"
	DimSurveyYear     Dimension = "survey_year"
)

// GroupSummary is a per-group estimate with a Wald confidence interval.
// For binary outcomes the invariant 0 <= CILower <= Rate <= CIUpper <= 1 holds
// after clipping; the near-boundary degeneracy of the normal approximation is a
// known limitation and is preserved, not corrected.
type GroupSummary struct {
	Key   string               `json:"key"`
	Parts map[Dimension]string `json:"parts"`

	N       int     `json:"n"`
	Rate    float64 `json:"rate"`
	SE      float64 `json:"se"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`

	MinSize    float64 `json:"min_size"`
	MaxSize    float64 `json:"max_size"`
	MedianSize float64 `json:"median_size"`
	YearMin    int     `json:"year_min"`
	YearMax    int     `json:"year_max"`
}

// ValidateProportion checks the proportion CI invariant
func (g GroupSummary) ValidateProportion() error {
	if g.N <= 0 {
		return fmt.Errorf("group %s: n must be > 0, got %d", g.Key, g.N)
	}
	if !(0 <= g.CILower && g.CILower <= g.Rate && g.Rate <= g.CIUpper && g.CIUpper <= 1) {
		return fmt.Errorf("group %s: CI invariant violated: [%f, %f, %f]",
			g.Key, g.CILower, g.Rate, g.CIUpper)
	}
	return nil
}

// ============================================================================
// SURVIVAL MODEL
// ============================================================================

// CurvePoint is one predicted point on the size-survival curve
type CurvePoint struct {
	SizeCm2     float64 `json:"size_cm2"`
	Probability float64 `json:"probability"`
	CILower     float64 `json:"ci_lower"`
	CIUpper     float64 `json:"ci_upper"`
}

// SurvivalModelFit holds a fitted logistic regression of survival on log(size):
// logit(p) = Intercept + Slope * ln(size).
type SurvivalModelFit struct {
	Intercept   float64 `json:"intercept"`
	Slope       float64 `json:"slope"`
	InterceptSE float64 `json:"intercept_se"`
	SlopeSE     float64 `json:"slope_se"`

	Deviance     float64 `json:"deviance"`
	NullDeviance float64 `json:"null_deviance"`
	PseudoR2     float64 `json:"pseudo_r_squared"` // McFadden: 1 - deviance/null_deviance
	N            int     `json:"n"`
	Iterations   int     `json:"iterations"`

	Curve []CurvePoint `json:"prediction_curve"`
}

// Validate enforces the pseudo-R² invariant: it is only a valid [0,1] quantity
// when deviance <= null deviance, which must be checked rather than assumed.
func (f SurvivalModelFit) Validate() error {
	if f.NullDeviance <= 0 {
		return fmt.Errorf("null deviance must be positive, got %f", f.NullDeviance)
	}
	if f.Deviance < 0 || f.Deviance > f.NullDeviance {
		return fmt.Errorf("deviance %f outside [0, null deviance %f]", f.Deviance, f.NullDeviance)
	}
	if f.PseudoR2 < 0 || f.PseudoR2 > 1 {
		return fmt.Errorf("pseudo R² %f outside [0,1]", f.PseudoR2)
	}
	return nil
}

// ============================================================================
// META-ANALYSIS
// ============================================================================

// StudyEffect is one study's effect estimate entering the pooling
type StudyEffect struct {
	Study          string         `json:"study"`
	Effect         float64        `json:"effect"`
	SE             float64        `json:"se"`
	N              int            `json:"n"`
	FragmentStatus FragmentStatus `json:"fragment_status,omitempty"`
	Weight         float64        `json:"weight"` // normalized random-effects weight
}

// Heterogeneity holds the between-study variance statistics
type Heterogeneity struct {
	I2      float64 `json:"i_squared"` // percent, [0,100]
	Tau2    float64 `json:"tau_squared"`
	Q       float64 `json:"q"`
	QDf     int     `json:"q_df"`
	QPValue float64 `json:"q_p_value"`
	Label   string  `json:"label"` // interpretation per configured thresholds
}

// EggerTest is the publication-bias regression diagnostic. It is nil in the
// parent result when fewer than three studies contribute.
type EggerTest struct {
	Intercept float64 `json:"intercept"`
	SE        float64 `json:"se"`
	TStat     float64 `json:"t_statistic"`
	PValue    float64 `json:"p_value"`
	Asymmetry bool    `json:"asymmetry"`
}

// LeaveOneOut is the pooled result with one study excluded
type LeaveOneOut struct {
	ExcludedStudy string  `json:"excluded_study"`
	Pooled        float64 `json:"pooled"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
	I2            float64 `json:"i_squared"`
}

// StratumResult is the pooled estimate within one fragment-status partition
type StratumResult struct {
	FragmentStatus FragmentStatus `json:"fragment_status"`
	K              int            `json:"k"`
	Pooled         float64        `json:"pooled"`
	CILower        float64        `json:"ci_lower"`
	CIUpper        float64        `json:"ci_upper"`
	I2             float64        `json:"i_squared"`
}

// HeterogeneityThresholds are the I² interpretation cutoffs (percent). They are
// configuration, echoed in every result rather than silently embedded.
type HeterogeneityThresholds struct {
	Moderate     float64 `json:"moderate"`
	Substantial  float64 `json:"substantial"`
	Considerable float64 `json:"considerable"`
}

// MetaAnalysisResult is the full random-effects pooling output
type MetaAnalysisResult struct {
	Pooled           float64 `json:"pooled_estimate"`
	CILower          float64 `json:"ci_lower"`
	CIUpper          float64 `json:"ci_upper"`
	PredictionLower  float64 `json:"prediction_lower"`
	PredictionUpper  float64 `json:"prediction_upper"`

	Heterogeneity   Heterogeneity           `json:"heterogeneity"`
	PublicationBias *EggerTest              `json:"publication_bias"`
	Effects         []StudyEffect           `json:"per_study_effects"` // ordered by weight desc
	Strata          []StratumResult         `json:"stratified_subresults,omitempty"`
	LeaveOneOut     []LeaveOneOut           `json:"leave_one_out,omitempty"`
	Thresholds      HeterogeneityThresholds `json:"thresholds"`
}

// Validate enforces the pooling invariants: I² in [0,100] and normalized weights
func (m MetaAnalysisResult) Validate() error {
	if m.Heterogeneity.I2 < 0 || m.Heterogeneity.I2 > 100 {
		return fmt.Errorf("I² %f outside [0,100]", m.Heterogeneity.I2)
	}
	sum := 0.0
	for _, e := range m.Effects {
		sum += e.Weight
	}
	if len(m.Effects) > 0 && math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("study weights sum to %f, want 1", sum)
	}
	return nil
}

// ============================================================================
// POPULATION MODEL
// ============================================================================

// TransitionSummary is one grouped transition-rate estimate feeding the matrix
// builder: of N individuals starting in FromClass, Count ended in ToClass
// (Rate = Count/N). Reproduction marks fecundity and fragmentation terms, which
// are contributions per capita rather than conditional probabilities.
type TransitionSummary struct {
	FromClass    SizeClass `json:"from_class"`
	ToClass      SizeClass `json:"to_class"`
	N            int       `json:"n"`
	Count        int       `json:"count"`
	Rate         float64   `json:"rate"`
	Reproduction bool      `json:"reproduction"`
}

// TransitionMatrix is a dense square Lefkovitch matrix. A[i][j] is the
// per-time-step contribution of stage j to stage i (columns are origin stages).
// Structurally impossible transitions are explicit zeros, never omitted.
type TransitionMatrix struct {
	Classes      []SizeClass `json:"classes"`
	Data         [][]float64 `json:"data"`
	Reproduction [][]bool    `json:"reproduction"`
}

// Dim returns the number of stages
func (m *TransitionMatrix) Dim() int { return len(m.Classes) }

// At returns A[i][j]
func (m *TransitionMatrix) At(i, j int) float64 { return m.Data[i][j] }

// Clone deep-copies the matrix so perturbations never touch the original
func (m *TransitionMatrix) Clone() *TransitionMatrix {
	out := &TransitionMatrix{
		Classes:      append([]SizeClass(nil), m.Classes...),
		Data:         make([][]float64, len(m.Data)),
		Reproduction: make([][]bool, len(m.Reproduction)),
	}
	for i := range m.Data {
		out.Data[i] = append([]float64(nil), m.Data[i]...)
		out.Reproduction[i] = append([]bool(nil), m.Reproduction[i]...)
	}
	return out
}

// Validate checks demographic plausibility: entries non-negative, transition
// (non-reproduction) entries at most 1, and each column's survival fraction
// (sum of non-reproduction entries) at most 1 within tolerance.
func (m *TransitionMatrix) Validate() error {
	k := m.Dim()
	if k == 0 {
		return fmt.Errorf("empty matrix")
	}
	if len(m.Data) != k {
		return fmt.Errorf("matrix has %d rows for %d classes", len(m.Data), k)
	}
	const tol = 1e-9
	for i := 0; i < k; i++ {
		if len(m.Data[i]) != k {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(m.Data[i]), k)
		}
		for j := 0; j < k; j++ {
			v := m.Data[i][j]
			if math.IsNaN(v) || v < 0 {
				return fmt.Errorf("cell (%s,%s) = %f invalid", m.Classes[i].Label(), m.Classes[j].Label(), v)
			}
			if !m.Reproduction[i][j] && v > 1+tol {
				return fmt.Errorf("transition cell (%s,%s) = %f exceeds 1", m.Classes[i].Label(), m.Classes[j].Label(), v)
			}
		}
	}
	for j := 0; j < k; j++ {
		colSum := 0.0
		for i := 0; i < k; i++ {
			if !m.Reproduction[i][j] {
				colSum += m.Data[i][j]
			}
		}
		if colSum > 1+1e-6 {
			return fmt.Errorf("column %s survival fraction %f exceeds 1", m.Classes[j].Label(), colSum)
		}
	}
	return nil
}

// PopulationModelResult is the solved demographic model
type PopulationModelResult struct {
	Lambda              float64     `json:"lambda"`
	LambdaCILower       float64     `json:"lambda_ci_lower"`
	LambdaCIUpper       float64     `json:"lambda_ci_upper"`
	BootstrapReplicates int         `json:"bootstrap_replicates"`
	LowerConfidence     bool        `json:"lower_confidence"` // replicates below the standard count
	Classes             []SizeClass `json:"classes"`
	StableStage         []float64   `json:"stable_stage_distribution"` // sums to 1
	ReproductiveValues  []float64   `json:"reproductive_values"`
	Sensitivity         [][]float64 `json:"sensitivity_matrix"`
	Elasticity          [][]float64 `json:"elasticity_matrix"` // percent, sums to ~100
	GenerationTime      float64     `json:"generation_time"`
}

// ElasticitySum returns the total of all elasticity cells (should be ~100)
func (r PopulationModelResult) ElasticitySum() float64 {
	total := 0.0
	for _, row := range r.Elasticity {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// ============================================================================
// QUALITY METRICS
// ============================================================================

// DominantStudy identifies the single largest contributor of records
type DominantStudy struct {
	Name string  `json:"name"`
	N    int     `json:"n"`
	Pct  float64 `json:"pct"`
}

// FragmentMix describes the fragment/colony composition of the sample
type FragmentMix struct {
	Mixed       bool    `json:"mixed"`
	FragmentPct float64 `json:"fragment_pct"`
	ColonyPct   float64 `json:"colony_pct"`
}

// QualityMetrics carries data-quality indicators and their human-readable
// warnings. Warning order is stable: R² strength, study dominance, provenance
// mixing, sample size.
type QualityMetrics struct {
	RSquared    *float64      `json:"r_squared,omitempty"`
	SampleSize  int           `json:"sample_size"`
	NStudies    int           `json:"n_studies"`
	NRegions    int           `json:"n_regions"`
	Dominant    DominantStudy `json:"dominant_study"`
	FragmentMix FragmentMix   `json:"fragment_mix"`
	YearMin     int           `json:"year_min"`
	YearMax     int           `json:"year_max"`
	Warnings    []string      `json:"warnings"`
}
