package demography

import (
	"math"
	"testing"

	"reefdemog/domain/coral"
)

// twoStageMatrix builds the reference 2-stage matrix
//
//	A = | 0    2.0 |   (2.0 is fecundity, per-capita recruits)
//	    | 0.3  0.5 |
//
// whose dominant eigenvalue is (0.5 + sqrt(2.65))/2 ≈ 1.063941.
func twoStageMatrix(t *testing.T) *coral.TransitionMatrix {
	t.Helper()
	m, err := BuildMatrix(twoStageSummaries(), []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	return m
}

func twoStageSummaries() []coral.TransitionSummary {
	return []coral.TransitionSummary{
		{FromClass: 1, ToClass: 2, N: 100, Count: 30, Rate: 0.3},
		{FromClass: 2, ToClass: 2, N: 80, Count: 40, Rate: 0.5},
		{FromClass: 2, ToClass: 1, N: 80, Count: 160, Rate: 2.0, Reproduction: true},
	}
}

const twoStageLambda = 1.0639410298049854 // (0.5 + sqrt(2.65))/2

// TestBuildMatrix_Assembly verifies placement, density, and zero-filling
func TestBuildMatrix_Assembly(t *testing.T) {
	m := twoStageMatrix(t)

	if m.Dim() != 2 {
		t.Fatalf("dim = %d, want 2", m.Dim())
	}
	if m.At(0, 0) != 0 || m.At(0, 1) != 2.0 || m.At(1, 0) != 0.3 || m.At(1, 1) != 0.5 {
		t.Errorf("matrix = %v", m.Data)
	}
	if !m.Reproduction[0][1] || m.Reproduction[1][0] {
		t.Errorf("reproduction flags = %v", m.Reproduction)
	}
}

// TestBuildMatrix_AccumulatesSharedCells verifies a cell carrying both a
// transition and a fecundity contribution sums them
func TestBuildMatrix_AccumulatesSharedCells(t *testing.T) {
	summaries := []coral.TransitionSummary{
		{FromClass: 2, ToClass: 1, N: 50, Count: 5, Rate: 0.1},                     // shrinkage
		{FromClass: 2, ToClass: 1, N: 50, Count: 75, Rate: 1.5, Reproduction: true}, // recruits
		{FromClass: 2, ToClass: 2, N: 50, Count: 30, Rate: 0.6},
		{FromClass: 1, ToClass: 1, N: 40, Count: 10, Rate: 0.25},
	}
	m, err := BuildMatrix(summaries, []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	if math.Abs(m.At(0, 1)-1.6) > 1e-12 {
		t.Errorf("shared cell = %v, want 1.6", m.At(0, 1))
	}
	if !m.Reproduction[0][1] {
		t.Error("shared cell must keep its reproduction flag")
	}
}

// TestBuildMatrix_Errors covers unknown classes and invalid rates
func TestBuildMatrix_Errors(t *testing.T) {
	if _, err := BuildMatrix(nil, nil); err == nil {
		t.Error("no classes should fail")
	}

	unknown := []coral.TransitionSummary{{FromClass: 1, ToClass: 9, Rate: 0.5}}
	if _, err := BuildMatrix(unknown, []coral.SizeClass{1, 2}); err == nil {
		t.Error("unknown destination class should fail")
	}

	// column survival mass above 1
	invalid := []coral.TransitionSummary{
		{FromClass: 1, ToClass: 1, N: 10, Count: 7, Rate: 0.7},
		{FromClass: 1, ToClass: 2, N: 10, Count: 7, Rate: 0.7},
	}
	if _, err := BuildMatrix(invalid, []coral.SizeClass{1, 2}); err == nil {
		t.Error("column mass above 1 should fail")
	}
}

// TestSolveMatrix_Eigenstructure checks lambda, the stable stage distribution,
// and the reproductive-value scaling against the analytic solution
func TestSolveMatrix_Eigenstructure(t *testing.T) {
	result, err := SolveMatrix(twoStageMatrix(t))
	if err != nil {
		t.Fatalf("SolveMatrix: %v", err)
	}

	if math.Abs(result.Lambda-twoStageLambda) > 1e-9 {
		t.Errorf("lambda = %v, want %v", result.Lambda, twoStageLambda)
	}

	sum := 0.0
	for _, w := range result.StableStage {
		if w < 0 {
			t.Errorf("stable stage has negative entry: %v", result.StableStage)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("stable stage sums to %v, want 1", sum)
	}
	// Analytic: w2/w1 = 0.3/(lambda-0.5)
	wantRatio := 0.3 / (twoStageLambda - 0.5)
	gotRatio := result.StableStage[1] / result.StableStage[0]
	if math.Abs(gotRatio-wantRatio) > 1e-6 {
		t.Errorf("stage ratio = %v, want %v", gotRatio, wantRatio)
	}

	// Reproductive values scaled so v·w = 1
	vw := 0.0
	for i := range result.ReproductiveValues {
		vw += result.ReproductiveValues[i] * result.StableStage[i]
	}
	if math.Abs(vw-1) > 1e-9 {
		t.Errorf("v·w = %v, want 1", vw)
	}

	t.Logf("lambda = %.6f, stable stage = %v, T = %.3f",
		result.Lambda, result.StableStage, result.GenerationTime)
}

// TestSolveMatrix_ElasticitySum verifies elasticities are percentages summing
// to 100
func TestSolveMatrix_ElasticitySum(t *testing.T) {
	m := twoStageMatrix(t)
	result, err := SolveMatrix(m)
	if err != nil {
		t.Fatalf("SolveMatrix: %v", err)
	}

	if got := result.ElasticitySum(); math.Abs(got-100) > 0.5 {
		t.Errorf("elasticity sum = %v, want ~100", got)
	}
	for i, row := range result.Elasticity {
		for j, e := range row {
			if e < 0 {
				t.Errorf("elasticity[%d][%d] = %v, negative", i, j, e)
			}
			if m.At(i, j) == 0 && e != 0 {
				t.Errorf("elasticity[%d][%d] = %v for a structural zero", i, j, e)
			}
		}
	}
	// Loop property: for this life cycle the fecundity arc and the growth arc
	// carry equal elasticity
	if math.Abs(result.Elasticity[0][1]-result.Elasticity[1][0]) > 1e-6 {
		t.Errorf("arc elasticities differ: %v vs %v", result.Elasticity[0][1], result.Elasticity[1][0])
	}
}

// TestSolveMatrix_StasisDominatedElasticity verifies the largest elasticity
// lands on the stasis of the long-lived stage when that stage drives lambda
func TestSolveMatrix_StasisDominatedElasticity(t *testing.T) {
	summaries := []coral.TransitionSummary{
		{FromClass: 1, ToClass: 1, N: 200, Count: 20, Rate: 0.10},
		{FromClass: 1, ToClass: 2, N: 200, Count: 10, Rate: 0.05},
		{FromClass: 2, ToClass: 2, N: 150, Count: 135, Rate: 0.90},
		{FromClass: 2, ToClass: 1, N: 150, Count: 75, Rate: 0.50, Reproduction: true},
	}
	m, err := BuildMatrix(summaries, []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	result, err := SolveMatrix(m)
	if err != nil {
		t.Fatalf("SolveMatrix: %v", err)
	}

	stasis := result.Elasticity[1][1]
	for i, row := range result.Elasticity {
		for j, e := range row {
			if (i != 1 || j != 1) && e >= stasis {
				t.Errorf("elasticity[%d][%d] = %v >= large-stage stasis %v", i, j, e, stasis)
			}
		}
	}
}

// TestGenerationTime_Analytic checks T = ln(R0)/ln(lambda) against hand
// computation: R0 of the reference matrix is 1.2
func TestGenerationTime_Analytic(t *testing.T) {
	result, err := SolveMatrix(twoStageMatrix(t))
	if err != nil {
		t.Fatalf("SolveMatrix: %v", err)
	}
	want := math.Log(1.2) / math.Log(twoStageLambda)
	if math.Abs(result.GenerationTime-want) > 1e-6 {
		t.Errorf("generation time = %v, want %v", result.GenerationTime, want)
	}

	// No reproduction terms means no defined generation time
	noRepro := []coral.TransitionSummary{
		{FromClass: 1, ToClass: 1, N: 10, Count: 5, Rate: 0.5},
		{FromClass: 1, ToClass: 2, N: 10, Count: 3, Rate: 0.3},
		{FromClass: 2, ToClass: 2, N: 10, Count: 8, Rate: 0.8},
	}
	m, err := BuildMatrix(noRepro, []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	r, err := SolveMatrix(m)
	if err != nil {
		t.Fatalf("SolveMatrix: %v", err)
	}
	if r.GenerationTime != 0 {
		t.Errorf("generation time without reproduction = %v, want 0", r.GenerationTime)
	}
}

// TestSolve_BootstrapInterval runs the full engine with a reduced replicate
// count and checks the percentile interval
func TestSolve_BootstrapInterval(t *testing.T) {
	engine := NewMatrixEngine(200, 42)
	result, err := engine.Solve(twoStageSummaries(), []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if !(result.LambdaCILower < result.LambdaCIUpper) {
		t.Fatalf("interval [%v, %v] inverted", result.LambdaCILower, result.LambdaCIUpper)
	}
	if result.LambdaCILower < 0.5 || result.LambdaCIUpper > 2.0 {
		t.Errorf("interval [%v, %v] implausibly wide for these counts",
			result.LambdaCILower, result.LambdaCIUpper)
	}
	if result.BootstrapReplicates != 200 {
		t.Errorf("replicates = %d, want 200", result.BootstrapReplicates)
	}
	if !result.LowerConfidence {
		t.Error("200 replicates should flag lower confidence")
	}

	t.Logf("lambda = %.4f [%.4f, %.4f] over %d replicates",
		result.Lambda, result.LambdaCILower, result.LambdaCIUpper, result.BootstrapReplicates)
}

// TestSolve_Deterministic verifies identical seeds give identical intervals
func TestSolve_Deterministic(t *testing.T) {
	first, err := NewMatrixEngine(100, 7).Solve(twoStageSummaries(), []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	second, err := NewMatrixEngine(100, 7).Solve(twoStageSummaries(), []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if first.LambdaCILower != second.LambdaCILower || first.LambdaCIUpper != second.LambdaCIUpper {
		t.Errorf("same seed gave [%v,%v] then [%v,%v]",
			first.LambdaCILower, first.LambdaCIUpper, second.LambdaCILower, second.LambdaCIUpper)
	}

	third, err := NewMatrixEngine(100, 8).Solve(twoStageSummaries(), []coral.SizeClass{1, 2})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if third.LambdaCILower == first.LambdaCILower && third.LambdaCIUpper == first.LambdaCIUpper {
		t.Error("different seeds gave identical intervals")
	}
}

// TestProject_Trajectory verifies the iteration against a diagonal matrix
func TestProject_Trajectory(t *testing.T) {
	m := &coral.TransitionMatrix{
		Classes:      []coral.SizeClass{1, 2},
		Data:         [][]float64{{0.5, 0}, {0, 0.5}},
		Reproduction: [][]bool{{false, false}, {false, false}},
	}
	trajectory, err := Project(m, []float64{2, 4}, 2)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	want := [][]float64{{2, 4}, {1, 2}, {0.5, 1}}
	if len(trajectory) != len(want) {
		t.Fatalf("trajectory length = %d, want %d", len(trajectory), len(want))
	}
	for step := range want {
		for i := range want[step] {
			if math.Abs(trajectory[step][i]-want[step][i]) > 1e-12 {
				t.Errorf("step %d = %v, want %v", step, trajectory[step], want[step])
			}
		}
	}

	if _, err := Project(m, []float64{1}, 2); err == nil {
		t.Error("mismatched initial vector should fail")
	}
	if _, err := Project(m, []float64{1, 1}, 0); err == nil {
		t.Error("zero steps should fail")
	}
}
