package coral

import (
	"testing"
)

func boolPtr(b bool) *bool      { return &b }
func f64Ptr(f float64) *float64 { return &f }

// TestObservation_Outcome verifies nil outcomes drop rather than coerce
func TestObservation_Outcome(t *testing.T) {
	o := Observation{SizeCm2: 50}
	if o.HasOutcome(DataSurvival) || o.HasOutcome(DataGrowth) {
		t.Error("observation without outcomes should report none")
	}
	if _, ok := o.Outcome(DataSurvival); ok {
		t.Error("nil Survived must not coerce to a value")
	}

	o.Survived = boolPtr(true)
	v, ok := o.Outcome(DataSurvival)
	if !ok || v != 1 {
		t.Errorf("Outcome(survival) = %v,%v, want 1,true", v, ok)
	}
	o.Survived = boolPtr(false)
	v, ok = o.Outcome(DataSurvival)
	if !ok || v != 0 {
		t.Errorf("Outcome(survival) = %v,%v, want 0,true", v, ok)
	}

	o.GrowthRate = f64Ptr(0.3)
	v, ok = o.Outcome(DataGrowth)
	if !ok || v != 0.3 {
		t.Errorf("Outcome(growth) = %v,%v, want 0.3,true", v, ok)
	}
}

// TestGroupSummary_ValidateProportion covers the CI ordering invariant
func TestGroupSummary_ValidateProportion(t *testing.T) {
	good := GroupSummary{Key: "g", N: 10, Rate: 0.5, CILower: 0.2, CIUpper: 0.8}
	if err := good.ValidateProportion(); err != nil {
		t.Errorf("valid summary rejected: %v", err)
	}

	// degenerate zero-width interval at the boundary is legal
	degenerate := GroupSummary{Key: "g", N: 5, Rate: 1, CILower: 1, CIUpper: 1}
	if err := degenerate.ValidateProportion(); err != nil {
		t.Errorf("degenerate boundary interval rejected: %v", err)
	}

	bad := []GroupSummary{
		{Key: "n0", N: 0, Rate: 0.5, CILower: 0.2, CIUpper: 0.8},
		{Key: "lo", N: 10, Rate: 0.5, CILower: -0.1, CIUpper: 0.8},
		{Key: "hi", N: 10, Rate: 0.5, CILower: 0.2, CIUpper: 1.2},
		{Key: "inv", N: 10, Rate: 0.5, CILower: 0.6, CIUpper: 0.8},
	}
	for _, g := range bad {
		if err := g.ValidateProportion(); err == nil {
			t.Errorf("summary %s should fail validation", g.Key)
		}
	}
}

// TestSurvivalModelFit_Validate enforces the pseudo-R² bounds
func TestSurvivalModelFit_Validate(t *testing.T) {
	ok := SurvivalModelFit{Deviance: 80, NullDeviance: 100, PseudoR2: 0.2}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid fit rejected: %v", err)
	}

	worse := SurvivalModelFit{Deviance: 110, NullDeviance: 100, PseudoR2: -0.1}
	if err := worse.Validate(); err == nil {
		t.Error("fit worse than the null model should fail validation")
	}

	zeroNull := SurvivalModelFit{Deviance: 0, NullDeviance: 0}
	if err := zeroNull.Validate(); err == nil {
		t.Error("non-positive null deviance should fail validation")
	}
}

// TestTransitionMatrix_Validate covers the column-sum and entry constraints
func TestTransitionMatrix_Validate(t *testing.T) {
	classes := []SizeClass{1, 2}

	valid := &TransitionMatrix{
		Classes:      classes,
		Data:         [][]float64{{0.3, 1.5}, {0.4, 0.6}},
		Reproduction: [][]bool{{false, true}, {false, false}},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid matrix rejected: %v", err)
	}

	negative := valid.Clone()
	negative.Data[0][0] = -0.1
	if err := negative.Validate(); err == nil {
		t.Error("negative entry should fail")
	}

	// non-reproduction entries above 1 are not probabilities
	overOne := valid.Clone()
	overOne.Data[1][1] = 1.2
	if err := overOne.Validate(); err == nil {
		t.Error("transition probability above 1 should fail")
	}

	// column survival fraction above 1 (excluding reproduction cells)
	overColumn := valid.Clone()
	overColumn.Data[0][0] = 0.7
	overColumn.Data[1][0] = 0.7
	if err := overColumn.Validate(); err == nil {
		t.Error("column survival sum above 1 should fail")
	}

	empty := &TransitionMatrix{}
	if err := empty.Validate(); err == nil {
		t.Error("empty matrix should fail")
	}
}

// TestTransitionMatrix_CloneIsolation verifies perturbing a clone leaves the
// original untouched
func TestTransitionMatrix_CloneIsolation(t *testing.T) {
	m := &TransitionMatrix{
		Classes:      []SizeClass{1, 2},
		Data:         [][]float64{{0.5, 0}, {0.2, 0.9}},
		Reproduction: [][]bool{{false, false}, {false, false}},
	}
	c := m.Clone()
	c.Data[0][0] = 0.99
	c.Reproduction[0][1] = true

	if m.Data[0][0] != 0.5 {
		t.Errorf("clone mutation leaked into original: %v", m.Data[0][0])
	}
	if m.Reproduction[0][1] {
		t.Error("clone reproduction mutation leaked into original")
	}
}

// TestMetaAnalysisResult_Validate covers I² bounds and weight normalization
func TestMetaAnalysisResult_Validate(t *testing.T) {
	ok := MetaAnalysisResult{
		Heterogeneity: Heterogeneity{I2: 42},
		Effects: []StudyEffect{
			{Study: "a", Weight: 0.6},
			{Study: "b", Weight: 0.4},
		},
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid result rejected: %v", err)
	}

	badI2 := MetaAnalysisResult{Heterogeneity: Heterogeneity{I2: 120}}
	if err := badI2.Validate(); err == nil {
		t.Error("I² above 100 should fail")
	}

	badWeights := MetaAnalysisResult{
		Heterogeneity: Heterogeneity{I2: 10},
		Effects:       []StudyEffect{{Study: "a", Weight: 0.6}, {Study: "b", Weight: 0.6}},
	}
	if err := badWeights.Validate(); err == nil {
		t.Error("unnormalized weights should fail")
	}
}

// TestPopulationModelResult_ElasticitySum sums all cells
func TestPopulationModelResult_ElasticitySum(t *testing.T) {
	r := PopulationModelResult{
		Elasticity: [][]float64{{10, 20}, {30, 40}},
	}
	if got := r.ElasticitySum(); got != 100 {
		t.Errorf("ElasticitySum() = %v, want 100", got)
	}
}
