package demography

import (
	"errors"
	"testing"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
	"reefdemog/internal/testkit"
)

// TestFitSurvival_RecoversGeneratingModel fits the synthetic dataset, which is
// sampled from a known logit(p) = -1.1 + 0.45*ln(size) model
func TestFitSurvival_RecoversGeneratingModel(t *testing.T) {
	obs := testkit.Generate(testkit.DefaultGeneratorConfig())

	fit, err := FitSurvival(obs, 30)
	if err != nil {
		t.Fatalf("FitSurvival: %v", err)
	}

	if fit.Slope < 0.2 || fit.Slope > 0.7 {
		t.Errorf("slope = %v, expected near generating value 0.45", fit.Slope)
	}
	if fit.Intercept > -0.3 || fit.Intercept < -2.0 {
		t.Errorf("intercept = %v, expected near generating value -1.1", fit.Intercept)
	}
	if fit.SlopeSE <= 0 || fit.InterceptSE <= 0 {
		t.Errorf("standard errors must be positive, got (%v, %v)", fit.InterceptSE, fit.SlopeSE)
	}
	if fit.N == 0 || fit.N > len(obs) {
		t.Errorf("n = %d out of range", fit.N)
	}
	if fit.Iterations < 2 {
		t.Errorf("iterations = %d, IRLS should take more than one step", fit.Iterations)
	}
	if err := fit.Validate(); err != nil {
		t.Errorf("fit invariants: %v", err)
	}

	t.Logf("fit: logit(p) = %.3f + %.3f*ln(size), pseudo-R² = %.3f, n = %d, %d iterations",
		fit.Intercept, fit.Slope, fit.PseudoR2, fit.N, fit.Iterations)
}

// TestFitSurvival_PredictionCurve verifies the curve shape and its band
func TestFitSurvival_PredictionCurve(t *testing.T) {
	obs := testkit.Generate(testkit.DefaultGeneratorConfig())
	fit, err := FitSurvival(obs, 30)
	if err != nil {
		t.Fatalf("FitSurvival: %v", err)
	}

	if len(fit.Curve) != 100 {
		t.Fatalf("curve has %d points, want 100", len(fit.Curve))
	}
	prev := -1.0
	for i, p := range fit.Curve {
		if p.Probability < 0 || p.Probability > 1 {
			t.Fatalf("point %d: probability %v outside [0,1]", i, p.Probability)
		}
		if !(p.CILower <= p.Probability && p.Probability <= p.CIUpper) {
			t.Fatalf("point %d: band [%v,%v] does not contain %v", i, p.CILower, p.CIUpper, p.Probability)
		}
		if p.CILower < 0 || p.CIUpper > 1 {
			t.Fatalf("point %d: band [%v,%v] outside [0,1]", i, p.CILower, p.CIUpper)
		}
		// Positive slope means the curve rises with size
		if p.Probability < prev {
			t.Fatalf("point %d: curve not monotone (%v after %v)", i, p.Probability, prev)
		}
		prev = p.Probability
		if i > 0 && p.SizeCm2 <= fit.Curve[i-1].SizeCm2 {
			t.Fatalf("point %d: sizes not increasing", i)
		}
	}
}

// TestFitSurvival_InsufficientData verifies the count check runs after the
// row-dropping policy
func TestFitSurvival_InsufficientData(t *testing.T) {
	obs := testkit.Generate(testkit.DefaultGeneratorConfig())

	_, err := FitSurvival(obs[:10], 30)
	if !errors.Is(err, core.ErrInsufficientData) {
		t.Errorf("error = %v, want ErrInsufficientData", err)
	}

	// Rows with non-positive size drop before the count check
	bad := make([]coral.Observation, 40)
	for i := range bad {
		s := true
		bad[i] = coral.Observation{SizeCm2: 0, Survived: &s}
	}
	_, err = FitSurvival(bad, 30)
	if !errors.Is(err, core.ErrInsufficientData) {
		t.Errorf("all-invalid-size error = %v, want ErrInsufficientData", err)
	}
}

// TestFitSurvival_NoVariation verifies an all-survived sample fails cleanly
func TestFitSurvival_NoVariation(t *testing.T) {
	obs := make([]coral.Observation, 50)
	for i := range obs {
		s := true
		obs[i] = coral.Observation{SizeCm2: float64(i + 1), Survived: &s}
	}
	_, err := FitSurvival(obs, 30)
	if !errors.Is(err, core.ErrModelFit) {
		t.Errorf("error = %v, want ErrModelFit", err)
	}
}
