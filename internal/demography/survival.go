package demography

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

const (
	irlsMaxIter = 25
	irlsTol     = 1e-8
	curvePoints = 100
	// weights below this indicate fitted probabilities pinned at 0 or 1
	// (quasi-separation); the normal equations degenerate past it
	minIRLSWeight = 1e-10
)

// FitSurvival fits a logistic regression of survival on log(size) by
// iteratively reweighted least squares. Rows with non-positive size or a
// missing survival outcome are dropped before the count check (log-transform
// precondition). Fewer than minN remaining rows fails with ErrInsufficientData;
// numerical non-convergence fails with ErrModelFit and is never papered over.
func FitSurvival(observations []coral.Observation, minN int) (*coral.SurvivalModelFit, error) {
	var logSize, y []float64
	var minSize, maxSize float64
	for _, obs := range observations {
		if obs.Survived == nil || obs.SizeCm2 <= 0 {
			continue
		}
		if len(logSize) == 0 || obs.SizeCm2 < minSize {
			minSize = obs.SizeCm2
		}
		if obs.SizeCm2 > maxSize {
			maxSize = obs.SizeCm2
		}
		logSize = append(logSize, math.Log(obs.SizeCm2))
		if *obs.Survived {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	n := len(y)
	if n < minN {
		return nil, core.NewInsufficientDataError(n, minN)
	}

	meanY := 0.0
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)
	if meanY == 0 || meanY == 1 {
		return nil, core.NewModelFitError("survival outcome has no variation")
	}

	beta := [2]float64{math.Log(meanY / (1 - meanY)), 0}
	dev := math.Inf(1)
	var cov *mat.SymDense
	iterations := 0

	for iter := 0; iter < irlsMaxIter; iter++ {
		iterations = iter + 1

		// Accumulate X'WX and X'Wz for the two-column design [1, log(size)]
		xtwx := mat.NewSymDense(2, nil)
		xtwz := mat.NewVecDense(2, nil)
		newDev := 0.0
		for i := 0; i < n; i++ {
			eta := beta[0] + beta[1]*logSize[i]
			mu := 1 / (1 + math.Exp(-eta))
			w := mu * (1 - mu)
			if w < minIRLSWeight {
				return nil, core.NewModelFitError("degenerate weights (separated data)")
			}
			z := eta + (y[i]-mu)/w

			xtwx.SetSym(0, 0, xtwx.At(0, 0)+w)
			xtwx.SetSym(0, 1, xtwx.At(0, 1)+w*logSize[i])
			xtwx.SetSym(1, 1, xtwx.At(1, 1)+w*logSize[i]*logSize[i])
			xtwz.SetVec(0, xtwz.AtVec(0)+w*z)
			xtwz.SetVec(1, xtwz.AtVec(1)+w*z*logSize[i])

			newDev += devianceTerm(y[i], mu)
		}
		newDev *= -2

		var chol mat.Cholesky
		if ok := chol.Factorize(xtwx); !ok {
			return nil, core.NewModelFitError("singular weighted normal equations")
		}
		var sol mat.VecDense
		if err := chol.SolveVecTo(&sol, xtwz); err != nil {
			return nil, core.NewModelFitError("failed to solve IRLS step: " + err.Error())
		}
		beta[0], beta[1] = sol.AtVec(0), sol.AtVec(1)
		if math.IsNaN(beta[0]) || math.IsNaN(beta[1]) || math.Abs(beta[0]) > 1e6 || math.Abs(beta[1]) > 1e6 {
			return nil, core.NewModelFitError("divergent coefficients")
		}

		cov = mat.NewSymDense(2, nil)
		if err := chol.InverseTo(cov); err != nil {
			return nil, core.NewModelFitError("failed to invert information matrix: " + err.Error())
		}

		if math.Abs(newDev-dev) < irlsTol*(math.Abs(newDev)+0.1) {
			dev = newDev
			break
		}
		dev = newDev
		if iter == irlsMaxIter-1 {
			return nil, core.NewModelFitError("IRLS did not converge")
		}
	}

	// Final deviance at the converged coefficients
	dev = 0
	for i := 0; i < n; i++ {
		mu := invLogit(beta[0] + beta[1]*logSize[i])
		dev += devianceTerm(y[i], mu)
	}
	dev *= -2

	nullDev := 0.0
	for i := 0; i < n; i++ {
		nullDev += devianceTerm(y[i], meanY)
	}
	nullDev *= -2

	if dev > nullDev {
		// McFadden R² is only defined when the fitted model does no worse than
		// the null model; anything else signals a numerical failure
		return nil, core.NewModelFitError("deviance exceeds null deviance")
	}

	fit := &coral.SurvivalModelFit{
		Intercept:    beta[0],
		Slope:        beta[1],
		InterceptSE:  math.Sqrt(cov.At(0, 0)),
		SlopeSE:      math.Sqrt(cov.At(1, 1)),
		Deviance:     dev,
		NullDeviance: nullDev,
		PseudoR2:     1 - dev/nullDev,
		N:            n,
		Iterations:   iterations,
		Curve:        predictionCurve(beta, cov, minSize, maxSize),
	}
	if err := fit.Validate(); err != nil {
		return nil, core.NewModelFitError(err.Error())
	}
	return fit, nil
}

// predictionCurve evaluates the fitted curve over 100 evenly spaced sizes
// spanning the observed range, with a 95% Wald band computed on the link scale
// and transformed to the probability scale, clipped to [0,1].
func predictionCurve(beta [2]float64, cov *mat.SymDense, minSize, maxSize float64) []coral.CurvePoint {
	points := make([]coral.CurvePoint, 0, curvePoints)
	step := (maxSize - minSize) / float64(curvePoints-1)
	for i := 0; i < curvePoints; i++ {
		size := minSize + float64(i)*step
		x := math.Log(size)
		eta := beta[0] + beta[1]*x
		// var(eta) = [1 x] Cov [1 x]'
		varEta := cov.At(0, 0) + 2*x*cov.At(0, 1) + x*x*cov.At(1, 1)
		seEta := math.Sqrt(math.Max(varEta, 0))
		points = append(points, coral.CurvePoint{
			SizeCm2:     size,
			Probability: invLogit(eta),
			CILower:     clip01(invLogit(eta - zCI*seEta)),
			CIUpper:     clip01(invLogit(eta + zCI*seEta)),
		})
	}
	return points
}

func invLogit(eta float64) float64 {
	return 1 / (1 + math.Exp(-eta))
}

func devianceTerm(y, mu float64) float64 {
	// Guard the log at machine-pinned probabilities
	const eps = 1e-15
	mu = math.Min(math.Max(mu, eps), 1-eps)
	return y*math.Log(mu) + (1-y)*math.Log(1-mu)
}
