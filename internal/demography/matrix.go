package demography

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
)

// standardReplicates is the bootstrap count below which lambda intervals are
// flagged lower-confidence
const standardReplicates = 500

// eigenImagTol is the relative tolerance on the imaginary part of the dominant
// eigenvalue; anything beyond it means the matrix is not a valid demographic
// projection matrix
const eigenImagTol = 1e-9

// MatrixEngine builds and solves Lefkovitch size-structured projection
// matrices, including bootstrap uncertainty on the growth rate.
type MatrixEngine struct {
	replicates int
	seed       int64
}

// NewMatrixEngine creates an engine with the configured bootstrap replicate
// count and base seed.
func NewMatrixEngine(replicates int, seed int64) *MatrixEngine {
	return &MatrixEngine{replicates: replicates, seed: seed}
}

// BuildMatrix assembles a dense square transition matrix from grouped
// transition-rate estimates. Structurally absent transitions stay exact zeros;
// the matrix is always fully dense and square over the given classes.
func BuildMatrix(summaries []coral.TransitionSummary, classes []coral.SizeClass) (*coral.TransitionMatrix, error) {
	k := len(classes)
	if k == 0 {
		return nil, core.NewInvalidMatrixError("no size classes")
	}
	index := make(map[coral.SizeClass]int, k)
	for i, c := range classes {
		index[c] = i
	}

	m := &coral.TransitionMatrix{
		Classes:      append([]coral.SizeClass(nil), classes...),
		Data:         make([][]float64, k),
		Reproduction: make([][]bool, k),
	}
	for i := 0; i < k; i++ {
		m.Data[i] = make([]float64, k)
		m.Reproduction[i] = make([]bool, k)
	}

	for _, s := range summaries {
		i, okTo := index[s.ToClass]
		j, okFrom := index[s.FromClass]
		if !okTo || !okFrom {
			return nil, core.NewInvalidMatrixError(
				fmt.Sprintf("transition %s->%s references unknown class", s.FromClass.Label(), s.ToClass.Label()))
		}
		// Contributions accumulate: a cell can carry both a growth transition
		// and a fecundity term (classic Lefkovitch top row)
		m.Data[i][j] += s.Rate
		m.Reproduction[i][j] = m.Reproduction[i][j] || s.Reproduction
	}

	if err := m.Validate(); err != nil {
		return nil, core.NewInvalidMatrixError(err.Error())
	}
	return m, nil
}

// SolveMatrix computes the dominant eigenvalue, stable stage distribution,
// reproductive values, and the sensitivity/elasticity matrices. The bootstrap
// interval is not populated here; see Solve.
func SolveMatrix(m *coral.TransitionMatrix) (*coral.PopulationModelResult, error) {
	if err := m.Validate(); err != nil {
		return nil, core.NewInvalidMatrixError(err.Error())
	}
	k := m.Dim()

	lambda, w, err := dominantEigen(m.Data)
	if err != nil {
		return nil, err
	}
	// Left eigenvectors of A are right eigenvectors of Aᵀ
	_, v, err := dominantEigen(transpose(m.Data))
	if err != nil {
		return nil, err
	}

	// Scale: stable stage sums to 1, reproductive values satisfy v·w = 1
	normalizeSum(w)
	vw := dot(v, w)
	if vw == 0 {
		return nil, core.NewInvalidMatrixError("degenerate eigenvector pair")
	}
	for i := range v {
		v[i] /= vw
	}

	sensitivity := make([][]float64, k)
	elasticity := make([][]float64, k)
	for i := 0; i < k; i++ {
		sensitivity[i] = make([]float64, k)
		elasticity[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			sensitivity[i][j] = v[i] * w[j]
			elasticity[i][j] = m.Data[i][j] / lambda * sensitivity[i][j] * 100
		}
	}

	return &coral.PopulationModelResult{
		Lambda:             lambda,
		Classes:            append([]coral.SizeClass(nil), m.Classes...),
		StableStage:        w,
		ReproductiveValues: v,
		Sensitivity:        sensitivity,
		Elasticity:         elasticity,
		GenerationTime:     generationTime(m, lambda),
	}, nil
}

// Solve builds the matrix, solves it, and attaches a bootstrap percentile
// interval for lambda obtained by resampling the underlying transition counts.
func (e *MatrixEngine) Solve(summaries []coral.TransitionSummary, classes []coral.SizeClass) (*coral.PopulationModelResult, error) {
	m, err := BuildMatrix(summaries, classes)
	if err != nil {
		return nil, err
	}
	result, err := SolveMatrix(m)
	if err != nil {
		return nil, err
	}

	lower, upper, err := e.bootstrapLambda(summaries, classes)
	if err != nil {
		return nil, err
	}
	result.LambdaCILower = lower
	result.LambdaCIUpper = upper
	result.BootstrapReplicates = e.replicates
	result.LowerConfidence = e.replicates < standardReplicates
	return result, nil
}

// bootstrapLambda resamples transition counts with replacement and recomputes
// lambda per replicate. Survival/growth destinations within a column are drawn
// as one multinomial so a column's transition mass can never exceed 1;
// reproduction cells are drawn as Poisson counts. Replicates run in parallel
// and the interval comes from order-independent percentiles.
func (e *MatrixEngine) bootstrapLambda(summaries []coral.TransitionSummary, classes []coral.SizeClass) (float64, float64, error) {
	lambdas := make([]float64, e.replicates)
	valid := make([]bool, e.replicates)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for rep := 0; rep < e.replicates; rep++ {
		g.Go(func() error {
			src := rand.NewPCG(uint64(e.seed), uint64(rep))
			resampled := resampleTransitions(summaries, rand.New(src))
			m, err := BuildMatrix(resampled, classes)
			if err != nil {
				return nil // degenerate draw, dropped from the percentile pool
			}
			lambda, _, err := dominantEigen(m.Data)
			if err != nil {
				return nil
			}
			lambdas[rep] = lambda
			valid[rep] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	kept := make([]float64, 0, e.replicates)
	for i, ok := range valid {
		if ok {
			kept = append(kept, lambdas[i])
		}
	}
	if len(kept) < 2 {
		return 0, 0, core.NewInvalidMatrixError("bootstrap produced no valid replicates")
	}
	lower, err := stats.Percentile(kept, 2.5)
	if err != nil {
		return 0, 0, err
	}
	upper, err := stats.Percentile(kept, 97.5)
	if err != nil {
		return 0, 0, err
	}
	return lower, upper, nil
}

// resampleTransitions draws one bootstrap replicate of the transition counts
func resampleTransitions(summaries []coral.TransitionSummary, rng *rand.Rand) []coral.TransitionSummary {
	out := make([]coral.TransitionSummary, len(summaries))
	copy(out, summaries)

	// Group non-reproduction cells by origin class for joint multinomial draws
	byFrom := make(map[coral.SizeClass][]int)
	for i, s := range out {
		if s.Reproduction {
			// Per-capita reproductive contributions resample as Poisson counts
			if s.N > 0 && s.Count > 0 {
				draw := distuv.Poisson{Lambda: float64(s.Count), Src: rng}.Rand()
				out[i].Count = int(draw)
				out[i].Rate = draw / float64(s.N)
			}
			continue
		}
		if s.N > 0 {
			byFrom[s.FromClass] = append(byFrom[s.FromClass], i)
		}
	}

	for _, idxs := range byFrom {
		n := out[idxs[0]].N
		remaining := n
		remainingP := 1.0
		for _, i := range idxs {
			p := out[i].Rate
			if remaining <= 0 || remainingP <= 0 || p <= 0 {
				out[i].Count = 0
				out[i].Rate = 0
				continue
			}
			cond := p / remainingP
			if cond > 1 {
				cond = 1
			}
			draw := int(distuv.Binomial{N: float64(remaining), P: cond, Src: rng}.Rand())
			out[i].Count = draw
			out[i].Rate = float64(draw) / float64(n)
			remaining -= draw
			remainingP -= p
		}
	}
	return out
}

// dominantEigen returns the dominant eigenvalue and its (real, non-negative,
// unnormalized) right eigenvector. A dominant eigenvalue with meaningful
// imaginary part, or one that is not positive, invalidates the matrix.
func dominantEigen(a [][]float64) (float64, []float64, error) {
	k := len(a)
	flat := make([]float64, 0, k*k)
	for _, row := range a {
		flat = append(flat, row...)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(mat.NewDense(k, k, flat), mat.EigenRight); !ok {
		return 0, nil, core.NewInvalidMatrixError("eigendecomposition failed")
	}
	values := eig.Values(nil)

	dom := 0
	for i := 1; i < k; i++ {
		if cmplxAbs(values[i]) > cmplxAbs(values[dom]) {
			dom = i
		}
	}
	lambdaC := values[dom]
	scale := math.Max(1, cmplxAbs(lambdaC))
	if math.Abs(imag(lambdaC)) > eigenImagTol*scale {
		return 0, nil, core.NewInvalidMatrixError(
			fmt.Sprintf("dominant eigenvalue %v is complex", lambdaC))
	}
	lambda := real(lambdaC)
	if lambda <= 0 {
		return 0, nil, core.NewInvalidMatrixError(
			fmt.Sprintf("dominant eigenvalue %f is not positive", lambda))
	}

	vectors := mat.NewCDense(k, k, nil)
	eig.VectorsTo(vectors)
	vec := make([]float64, k)
	for i := 0; i < k; i++ {
		vec[i] = real(vectors.At(i, dom))
	}
	// Eigenvectors come back with arbitrary sign; orient non-negatively
	neg := 0.0
	pos := 0.0
	for _, x := range vec {
		if x < 0 {
			neg -= x
		} else {
			pos += x
		}
	}
	if neg > pos {
		for i := range vec {
			vec[i] = -vec[i]
		}
	}
	for i := range vec {
		if vec[i] < 0 {
			vec[i] = 0 // numerical dust on a Perron vector
		}
	}
	return lambda, vec, nil
}

// generationTime computes T = ln(R0)/ln(lambda) with R0 the dominant
// eigenvalue of F(I-U)⁻¹, splitting the matrix into reproduction (F) and
// transition (U) parts. Returns 0 when the matrix has no reproduction terms or
// the formula degenerates (lambda at exactly 1).
func generationTime(m *coral.TransitionMatrix, lambda float64) float64 {
	k := m.Dim()
	hasRepro := false
	u := mat.NewDense(k, k, nil)
	f := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			if m.Reproduction[i][j] {
				f.Set(i, j, m.Data[i][j])
				if m.Data[i][j] > 0 {
					hasRepro = true
				}
			} else {
				u.Set(i, j, m.Data[i][j])
			}
		}
	}
	if !hasRepro || math.Abs(math.Log(lambda)) < 1e-12 {
		return 0
	}

	eye := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		eye.Set(i, i, 1)
	}
	var iMinusU mat.Dense
	iMinusU.Sub(eye, u)
	var fundamental mat.Dense
	if err := fundamental.Inverse(&iMinusU); err != nil {
		return 0
	}
	var next mat.Dense
	next.Mul(f, &fundamental)

	var eig mat.Eigen
	if ok := eig.Factorize(&next, mat.EigenNone); !ok {
		return 0
	}
	r0 := 0.0
	for _, val := range eig.Values(nil) {
		if cmplxAbs(val) > r0 {
			r0 = cmplxAbs(val)
		}
	}
	if r0 <= 0 {
		return 0
	}
	return math.Log(r0) / math.Log(lambda)
}

// Project iterates N_{t+1} = A·N_t from an initial stage vector, returning the
// trajectory including the initial state.
func Project(m *coral.TransitionMatrix, initial []float64, steps int) ([][]float64, error) {
	k := m.Dim()
	if len(initial) != k {
		return nil, fmt.Errorf("initial vector has %d stages, matrix has %d", len(initial), k)
	}
	if steps < 1 {
		return nil, fmt.Errorf("steps must be at least 1")
	}
	trajectory := make([][]float64, 0, steps+1)
	current := append([]float64(nil), initial...)
	trajectory = append(trajectory, append([]float64(nil), current...))
	for t := 0; t < steps; t++ {
		next := make([]float64, k)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				next[i] += m.Data[i][j] * current[j]
			}
		}
		trajectory = append(trajectory, append([]float64(nil), next...))
		current = next
	}
	return trajectory, nil
}

func transpose(a [][]float64) [][]float64 {
	k := len(a)
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			out[i][j] = a[j][i]
		}
	}
	return out
}

func normalizeSum(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total == 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}

func dot(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		total += a[i] * b[i]
	}
	return total
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
