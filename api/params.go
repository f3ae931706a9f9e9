package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"reefdemog/domain/coral"
	"reefdemog/internal/dataset"
	"reefdemog/internal/demography"
	apperrors "reefdemog/internal/errors"
)

// parseFilter builds a typed dataset filter from query parameters. Every
// malformed value is rejected here, at the boundary closest to the bad input,
// with the parameter name and value echoed back.
func parseFilter(r *http.Request) (dataset.Filter, error) {
	q := r.URL.Query()
	f := dataset.Filter{Region: q.Get("region")}

	if s := q.Get("data_type"); s != "" {
		switch coral.DataType(s) {
		case coral.DataSurvival, coral.DataGrowth:
			f.DataType = coral.DataType(s)
		default:
			return f, apperrors.InvalidParameter("data_type", s, "must be survival or growth")
		}
	}
	if s := q.Get("fragment"); s != "" {
		switch coral.FragmentStatus(s) {
		case coral.StatusFragment, coral.StatusColony:
			status := coral.FragmentStatus(s)
			f.FragmentStatus = &status
		default:
			return f, apperrors.InvalidParameter("fragment", s, "must be fragment or colony")
		}
	}

	var err error
	if f.YearMin, err = intParam(q.Get("year_min"), "year_min"); err != nil {
		return f, err
	}
	if f.YearMax, err = intParam(q.Get("year_max"), "year_max"); err != nil {
		return f, err
	}
	if f.SizeMin, err = floatParam(q.Get("size_min"), "size_min"); err != nil {
		return f, err
	}
	if f.SizeMax, err = floatParam(q.Get("size_max"), "size_max"); err != nil {
		return f, err
	}

	var rangeErr *dataset.RangeError
	if err := f.Validate(); errors.As(err, &rangeErr) {
		return f, apperrors.InvalidRange(rangeErr.Param, rangeErr.Min, rangeErr.Max)
	}
	return f, nil
}

func intParam(s, name string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, apperrors.InvalidParameter(name, s, "must be an integer")
	}
	return &v, nil
}

func floatParam(s, name string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperrors.InvalidParameter(name, s, "must be a finite number")
	}
	return &v, nil
}

// parseBreaks parses the custom "breaks" parameter: a comma list of ascending
// finite boundaries; the upper end is left open. Empty means the configured
// default boundaries.
func parseBreaks(s string, fallback coral.Breakpoints) (coral.Breakpoints, error) {
	if s == "" {
		return fallback, nil
	}
	parts := strings.Split(s, ",")
	bounds := make([]float64, 0, len(parts)+1)
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, apperrors.InvalidParameter("breaks", s, "must be a comma list of numbers")
		}
		bounds = append(bounds, v)
	}
	bounds = append(bounds, math.Inf(1))
	bp, err := coral.NewBreakpoints(bounds...)
	if err != nil {
		return nil, apperrors.InvalidParameter("breaks", s, err.Error())
	}
	return bp, nil
}

// parsePerturbations parses the "cells" parameter of the scenario endpoint:
// a comma list of FROM-TO:VALUE entries, e.g. "SC5-SC5:0.9,SC4-SC5:0.3".
func parsePerturbations(s string) ([]demography.Perturbation, error) {
	if s == "" {
		return nil, apperrors.InvalidParameter("cells", s, "at least one FROM-TO:VALUE entry required")
	}
	entries := strings.Split(s, ",")
	out := make([]demography.Perturbation, 0, len(entries))
	for _, entry := range entries {
		cellValue := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(cellValue) != 2 {
			return nil, apperrors.InvalidParameter("cells", entry, "entry must be FROM-TO:VALUE")
		}
		fromTo := strings.SplitN(cellValue[0], "-", 2)
		if len(fromTo) != 2 {
			return nil, apperrors.InvalidParameter("cells", entry, "cell must be FROM-TO")
		}
		from, err := coral.ParseSizeClass(fromTo[0])
		if err != nil {
			return nil, apperrors.InvalidParameter("cells", entry, err.Error())
		}
		to, err := coral.ParseSizeClass(fromTo[1])
		if err != nil {
			return nil, apperrors.InvalidParameter("cells", entry, err.Error())
		}
		value, err := strconv.ParseFloat(cellValue[1], 64)
		if err != nil || math.IsNaN(value) || value < 0 {
			return nil, apperrors.InvalidParameter("cells", entry, "value must be a non-negative number")
		}
		out = append(out, demography.Perturbation{FromClass: from, ToClass: to, Value: value})
	}
	return out, nil
}
