package api

import (
	"net/http"

	"reefdemog/domain/coral"
	"reefdemog/domain/core"
	"reefdemog/internal/dataset"
	"reefdemog/internal/demography"
	apperrors "reefdemog/internal/errors"
)

// selection runs the shared parse-filter-select pipeline. A nil repository
// (failed startup load) is fatal for every data route.
func (s *Server) selection(r *http.Request) ([]coral.Observation, dataset.Filter, error) {
	if s.repo == nil {
		return nil, dataset.Filter{}, core.ErrDataUnavailable
	}
	filter, err := parseFilter(r)
	if err != nil {
		return nil, filter, err
	}
	return s.repo.Select(filter), filter, nil
}

func (s *Server) handleIndividual(w http.ResponseWriter, r *http.Request) {
	observations, filter, err := s.selection(r)
	if err != nil {
		fail(w, err)
		return
	}
	if len(observations) == 0 {
		fail(w, apperrors.NoDataFound("no observations match the given filters").
			WithDetail("region", filter.Region))
		return
	}
	respond(w, http.StatusOK, observations, s.repo.Describe(observations))
}

func (s *Server) handleBySize(w http.ResponseWriter, r *http.Request) {
	observations, _, err := s.selection(r)
	if err != nil {
		fail(w, err)
		return
	}
	breaks, err := parseBreaks(r.URL.Query().Get("breaks"), s.repo.Breakpoints())
	if err != nil {
		fail(w, err)
		return
	}

	dataType := coral.DataType(r.URL.Query().Get("data_type"))
	if dataType == "" {
		dataType = coral.DataSurvival
	}
	valid := 0
	for _, obs := range observations {
		if obs.HasOutcome(dataType) {
			valid++
		}
	}
	if valid < s.cfg.Stats.MinGroupN {
		fail(w, core.NewInsufficientDataError(valid, s.cfg.Stats.MinGroupN))
		return
	}

	classified := dataset.Reclassified(observations, breaks)
	summaries, err := demography.Aggregate(classified, []coral.Dimension{coral.DimSizeClass}, dataType)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"groups": summaries,
		"breaks": breaks,
		"labels": breaks.Labels(),
	}, s.repo.Describe(observations))
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	observations, _, err := s.selection(r)
	if err != nil {
		fail(w, err)
		return
	}
	fit, err := demography.FitSurvival(observations, s.cfg.Stats.MinModelN)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, fit, s.repo.Describe(observations))
}

func (s *Server) handleByStudy(w http.ResponseWriter, r *http.Request) {
	observations, _, err := s.selection(r)
	if err != nil {
		fail(w, err)
		return
	}
	if len(observations) == 0 {
		fail(w, apperrors.NoDataFound("no observations match the given filters"))
		return
	}

	perStudy, err := demography.Aggregate(observations, []coral.Dimension{coral.DimStudy}, coral.DataSurvival)
	if err != nil {
		fail(w, err)
		return
	}

	// Study-by-fragment-status effects drive only the stratified subresults;
	// the top-level pooling sees each study once
	stratified, err := demography.Aggregate(observations,
		[]coral.Dimension{coral.DimStudy, coral.DimFragmentStatus}, coral.DataSurvival)
	if err != nil {
		fail(w, err)
		return
	}

	analyzer := demography.NewMetaAnalyzer(s.cfg.Stats.Thresholds())
	var meta *coral.MetaAnalysisResult
	if pooled, metaErr := analyzer.Analyze(
		demography.EffectsFromSummaries(perStudy),
		demography.EffectsFromSummaries(stratified)); metaErr == nil {
		meta = pooled
	} else {
		s.logger.Warn("meta-analysis unavailable: %v", metaErr)
	}

	var fit *coral.SurvivalModelFit
	if f, fitErr := demography.FitSurvival(observations, s.cfg.Stats.MinModelN); fitErr == nil {
		fit = f
	}
	quality := demography.AssessQuality(observations, fit, demography.QualityThresholds{
		DominantShare: s.cfg.Stats.DominantShare,
		MinN:          s.cfg.Stats.MinQualityN,
		RSquaredFloor: s.cfg.Stats.RSquaredFloor,
		MixMinority:   s.cfg.Stats.MixMinority,
	})

	respond(w, http.StatusOK, map[string]interface{}{
		"studies":       perStudy,
		"meta_analysis": meta,
		"quality":       quality,
	}, s.repo.Describe(observations))
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		fail(w, core.ErrDataUnavailable)
		return
	}
	respond(w, http.StatusOK, s.repo.Sites(), nil)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		fail(w, core.ErrDataUnavailable)
		return
	}
	respond(w, http.StatusOK, s.repo.Regions(), nil)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		fail(w, core.ErrDataUnavailable)
		return
	}
	respond(w, http.StatusOK, s.repo.Summary(), nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		fail(w, core.ErrDataUnavailable)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"snapshot_id": s.repo.SnapshotID().String(),
		"source":      s.repo.Source(),
		"records":     s.repo.Len(),
		"loaded_at":   s.repo.LoadedAt(),
	}, nil)
}
