package api

import (
	"net/http"
	"sort"
	"strconv"

	"reefdemog/domain/coral"
	"reefdemog/internal/dataset"
	"reefdemog/internal/demography"
	apperrors "reefdemog/internal/errors"
)

// elasticityCell is one ranked entry of the breakdown view
type elasticityCell struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Rate        float64 `json:"rate"`
	Elasticity  float64 `json:"elasticity"`
	Sensitivity float64 `json:"sensitivity"`
}

// population runs the shared pipeline of every elasticity route: filter,
// derive transition summaries, build and solve the matrix with bootstrap CI.
func (s *Server) population(r *http.Request) (*coral.PopulationModelResult, *coral.TransitionMatrix, []coral.Observation, error) {
	observations, _, err := s.selection(r)
	if err != nil {
		return nil, nil, nil, err
	}
	summaries, err := dataset.TransitionSummaries(observations, s.repo.Breakpoints(), s.cfg.Stats.FecundityRates)
	if err != nil {
		return nil, nil, nil, err
	}
	matrix, err := demography.BuildMatrix(summaries, s.repo.Breakpoints().Classes())
	if err != nil {
		return nil, nil, nil, err
	}
	engine := demography.NewMatrixEngine(s.cfg.Stats.BootstrapReplicates, s.cfg.Stats.BootstrapSeed)
	result, err := engine.Solve(summaries, s.repo.Breakpoints().Classes())
	if err != nil {
		return nil, nil, nil, err
	}
	return result, matrix, observations, nil
}

func (s *Server) handleElasticityBreakdown(w http.ResponseWriter, r *http.Request) {
	result, matrix, observations, err := s.population(r)
	if err != nil {
		fail(w, err)
		return
	}
	cells := make([]elasticityCell, 0)
	for i, row := range result.Elasticity {
		for j, e := range row {
			if matrix.Data[i][j] == 0 {
				continue
			}
			cells = append(cells, elasticityCell{
				From:        result.Classes[j].Label(),
				To:          result.Classes[i].Label(),
				Rate:        matrix.Data[i][j],
				Elasticity:  e,
				Sensitivity: result.Sensitivity[i][j],
			})
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Elasticity > cells[j].Elasticity })
	respond(w, http.StatusOK, map[string]interface{}{
		"cells":  cells,
		"lambda": result.Lambda,
	}, s.repo.Describe(observations))
}

func (s *Server) handleElasticityMatrix(w http.ResponseWriter, r *http.Request) {
	result, matrix, observations, err := s.population(r)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"transition_matrix":  matrix,
		"elasticity_matrix":  result.Elasticity,
		"sensitivity_matrix": result.Sensitivity,
		"classes":            s.repo.Breakpoints().Labels(),
	}, s.repo.Describe(observations))
}

func (s *Server) handleElasticitySummary(w http.ResponseWriter, r *http.Request) {
	result, _, observations, err := s.population(r)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, result, s.repo.Describe(observations))
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	result, matrix, observations, err := s.population(r)
	if err != nil {
		fail(w, err)
		return
	}
	steps := 10
	if v := r.URL.Query().Get("steps"); v != "" {
		parsed, convErr := strconv.Atoi(v)
		if convErr != nil || parsed < 1 || parsed > 100 {
			fail(w, apperrors.InvalidParameter("steps", v, "must be an integer between 1 and 100"))
			return
		}
		steps = parsed
	}

	// Start from the observed class distribution
	initial := make([]float64, matrix.Dim())
	for _, obs := range observations {
		if obs.SizeClass >= 1 && int(obs.SizeClass) <= matrix.Dim() {
			initial[int(obs.SizeClass)-1]++
		}
	}
	trajectory, err := demography.Project(matrix, initial, steps)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"trajectory": trajectory,
		"classes":    s.repo.Breakpoints().Labels(),
		"lambda":     result.Lambda,
		"steps":      steps,
	}, s.repo.Describe(observations))
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	perturbations, err := parsePerturbations(r.URL.Query().Get("cells"))
	if err != nil {
		fail(w, err)
		return
	}
	_, matrix, observations, popErr := s.population(r)
	if popErr != nil {
		fail(w, popErr)
		return
	}
	result, err := demography.Perturb(matrix, perturbations)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, result, s.repo.Describe(observations))
}

func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	target := 1.0
	if v := r.URL.Query().Get("target"); v != "" {
		parsed, convErr := strconv.ParseFloat(v, 64)
		if convErr != nil || parsed <= 0 {
			fail(w, apperrors.InvalidParameter("target", v, "must be a positive number"))
			return
		}
		target = parsed
	}
	_, matrix, observations, err := s.population(r)
	if err != nil {
		fail(w, err)
		return
	}
	result, err := demography.PathToStability(matrix, target, s.cfg.Stats.ElasticityFloor)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, result, s.repo.Describe(observations))
}
