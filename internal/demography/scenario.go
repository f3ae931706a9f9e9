package demography

import (
	"fmt"
	"math"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

// maxStabilityMultiplier caps the bracketing search when reproduction rates
// alone are scaled; a cell whose growth never moves lambda is reported
// unreachable instead of looping forever.
const maxStabilityMultiplier = 1 << 20

// Perturbation replaces one transition matrix cell with a new value,
// simulating a management action on that vital rate.
type Perturbation struct {
	FromClass coral.SizeClass `json:"from_class"`
	ToClass   coral.SizeClass `json:"to_class"`
	Value     float64         `json:"value"`
}

// ScenarioResult reports the growth-rate consequence of a perturbation
type ScenarioResult struct {
	BaseLambda  float64        `json:"base_lambda"`
	NewLambda   float64        `json:"new_lambda"`
	DeltaLambda float64        `json:"delta_lambda"`
	PctChange   float64        `json:"pct_change"`
	Cells       []Perturbation `json:"cells"`
}

// StabilityResult reports the uniform improvement needed to reach the target
// growth rate.
type StabilityResult struct {
	BaseLambda     float64 `json:"base_lambda"`
	TargetLambda   float64 `json:"target_lambda"`
	ImprovementPct float64 `json:"improvement_pct"`
	AchievedLambda float64 `json:"achieved_lambda"`
	// CellsAdjusted counts the elasticity-significant cells the improvement
	// applies to
	CellsAdjusted   int     `json:"cells_adjusted"`
	ElasticityFloor float64 `json:"elasticity_floor"`
}

// Perturb recomputes lambda with the specified cells replaced and all other
// cells held fixed. The perturbed matrix must still be demographically valid;
// an implied probability above 1 is rejected, never silently clamped.
func Perturb(m *coral.TransitionMatrix, perturbations []Perturbation) (*ScenarioResult, error) {
	if len(perturbations) == 0 {
		return nil, fmt.Errorf("%w: no cells specified", core.ErrInvalidPerturbation)
	}
	base, err := SolveMatrix(m)
	if err != nil {
		return nil, err
	}

	index := make(map[coral.SizeClass]int, m.Dim())
	for i, c := range m.Classes {
		index[c] = i
	}
	perturbed := m.Clone()
	for _, p := range perturbations {
		i, okTo := index[p.ToClass]
		j, okFrom := index[p.FromClass]
		if !okTo || !okFrom {
			return nil, fmt.Errorf("%w: cell %s->%s not in matrix",
				core.ErrInvalidPerturbation, p.FromClass.Label(), p.ToClass.Label())
		}
		if p.Value < 0 || math.IsNaN(p.Value) {
			return nil, fmt.Errorf("%w: cell %s->%s value %f",
				core.ErrInvalidPerturbation, p.FromClass.Label(), p.ToClass.Label(), p.Value)
		}
		perturbed.Data[i][j] = p.Value
	}
	if err := perturbed.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidPerturbation, err.Error())
	}

	next, err := SolveMatrix(perturbed)
	if err != nil {
		return nil, err
	}
	return &ScenarioResult{
		BaseLambda:  base.Lambda,
		NewLambda:   next.Lambda,
		DeltaLambda: next.Lambda - base.Lambda,
		PctChange:   (next.Lambda - base.Lambda) / base.Lambda * 100,
		Cells:       perturbations,
	}, nil
}

// PathToStability searches for the minimal uniform proportional increase,
// applied to all elasticity-significant cells simultaneously, that lifts
// lambda to the target. Lambda is monotone in the multiplier (non-negative
// matrix entries only grow), so bisection converges. When even the largest
// feasible multiplier (no implied probability above 1) falls short, the target
// is reported unreachable rather than returning an invalid matrix.
// Reproduction cells are per-capita rates with no probability bound, so a
// search over reproduction cells alone brackets the target by doubling first.
func PathToStability(m *coral.TransitionMatrix, targetLambda, elasticityFloor float64) (*StabilityResult, error) {
	if targetLambda <= 0 {
		return nil, fmt.Errorf("%w: target lambda %f must be positive", core.ErrInvalidPerturbation, targetLambda)
	}
	base, err := SolveMatrix(m)
	if err != nil {
		return nil, err
	}

	k := m.Dim()
	significant := make([][]bool, k)
	cells := 0
	for i := 0; i < k; i++ {
		significant[i] = make([]bool, k)
		for j := 0; j < k; j++ {
			if m.Data[i][j] > 0 && base.Elasticity[i][j] >= elasticityFloor {
				significant[i][j] = true
				cells++
			}
		}
	}
	if cells == 0 {
		return nil, fmt.Errorf("%w: no cells at or above elasticity floor %.2f%%",
			core.ErrUnreachableTarget, elasticityFloor)
	}

	result := &StabilityResult{
		BaseLambda:      base.Lambda,
		TargetLambda:    targetLambda,
		CellsAdjusted:   cells,
		ElasticityFloor: elasticityFloor,
	}
	if base.Lambda >= targetLambda {
		result.AchievedLambda = base.Lambda
		return result, nil
	}

	maxMult := feasibleMultiplier(m, significant)
	if maxMult <= 1 {
		return nil, fmt.Errorf("%w: significant cells already at their feasibility bound", core.ErrUnreachableTarget)
	}
	hi := maxMult
	if math.IsInf(maxMult, 1) {
		// Every significant cell is a per-capita reproduction rate, so no
		// probability bound caps the search. Bracket the target by doubling
		// instead of bisecting against an infinite upper bound.
		hi = 2
		for {
			lambda, err := lambdaAt(m, significant, hi)
			if err != nil {
				return nil, err
			}
			if lambda >= targetLambda {
				break
			}
			if hi >= maxStabilityMultiplier {
				return nil, fmt.Errorf(
					"%w: lambda reaches only %.4f at a %.0fx increase, target %.4f",
					core.ErrUnreachableTarget, lambda, hi, targetLambda)
			}
			hi *= 2
		}
	} else {
		topLambda, err := lambdaAt(m, significant, maxMult)
		if err != nil {
			return nil, err
		}
		if topLambda < targetLambda {
			return nil, fmt.Errorf(
				"%w: lambda reaches only %.4f at the feasibility bound (%.1f%% improvement), target %.4f",
				core.ErrUnreachableTarget, topLambda, (maxMult-1)*100, targetLambda)
		}
	}

	lo := 1.0
	for hi-lo > 1e-6 {
		mid := (lo + hi) / 2
		lambda, err := lambdaAt(m, significant, mid)
		if err != nil {
			return nil, err
		}
		if lambda >= targetLambda {
			hi = mid
		} else {
			lo = mid
		}
	}
	achieved, err := lambdaAt(m, significant, hi)
	if err != nil {
		return nil, err
	}
	result.ImprovementPct = (hi - 1) * 100
	result.AchievedLambda = achieved
	return result, nil
}

// feasibleMultiplier finds the largest uniform multiplier that keeps every
// significant transition probability at most 1 and every column's transition
// mass at most 1. Reproduction cells are per-capita rates and unbounded.
func feasibleMultiplier(m *coral.TransitionMatrix, significant [][]bool) float64 {
	k := m.Dim()
	maxMult := math.Inf(1)
	for j := 0; j < k; j++ {
		sigSum := 0.0
		otherSum := 0.0
		for i := 0; i < k; i++ {
			if m.Reproduction[i][j] {
				continue
			}
			if significant[i][j] {
				sigSum += m.Data[i][j]
				if m.Data[i][j] > 0 {
					maxMult = math.Min(maxMult, 1/m.Data[i][j])
				}
			} else {
				otherSum += m.Data[i][j]
			}
		}
		if sigSum > 0 {
			maxMult = math.Min(maxMult, (1-otherSum)/sigSum)
		}
	}
	return maxMult
}

func lambdaAt(m *coral.TransitionMatrix, significant [][]bool, mult float64) (float64, error) {
	scaled := m.Clone()
	for i := range scaled.Data {
		for j := range scaled.Data[i] {
			if significant[i][j] {
				scaled.Data[i][j] *= mult
			}
		}
	}
	lambda, _, err := dominantEigen(scaled.Data)
	return lambda, err
}
