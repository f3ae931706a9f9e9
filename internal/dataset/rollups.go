package dataset

import (
	"sort"
)

// SiteSummary is a descriptive per-site rollup for the sites endpoint
type SiteSummary struct {
	Site    string `json:"site"`
	Region  string `json:"region"`
	Records int    `json:"records"`
	Studies int    `json:"studies"`
}

// RegionSummary is a descriptive per-region rollup
type RegionSummary struct {
	Region          string  `json:"region"`
	Records         int     `json:"records"`
	Studies         int     `json:"studies"`
	Sites           int     `json:"sites"`
	SurvivalRecords int     `json:"survival_records"`
	GrowthRecords   int     `json:"growth_records"`
	MeanSizeCm2     float64 `json:"mean_size_cm2"`
}

// Overview is the whole-dataset descriptive rollup
type Overview struct {
	Records         int     `json:"records"`
	Studies         int     `json:"studies"`
	Regions         int     `json:"regions"`
	Sites           int     `json:"sites"`
	SurvivalRecords int     `json:"survival_records"`
	GrowthRecords   int     `json:"growth_records"`
	FragmentPct     float64 `json:"fragment_pct"`
	YearMin         int     `json:"year_min"`
	YearMax         int     `json:"year_max"`
	Snapshot        string  `json:"snapshot_id"`
	Source          string  `json:"source"`
}

// Sites returns per-site rollups sorted by descending record count
func (r *Repository) Sites() []SiteSummary {
	type acc struct {
		region  string
		records int
		studies map[string]bool
	}
	bySite := make(map[string]*acc)
	for _, obs := range r.observations {
		if obs.Site == "" {
			continue
		}
		a, ok := bySite[obs.Site]
		if !ok {
			a = &acc{region: obs.Region, studies: make(map[string]bool)}
			bySite[obs.Site] = a
		}
		a.records++
		a.studies[obs.Study] = true
	}
	out := make([]SiteSummary, 0, len(bySite))
	for site, a := range bySite {
		out = append(out, SiteSummary{Site: site, Region: a.region, Records: a.records, Studies: len(a.studies)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		return out[i].Site < out[j].Site
	})
	return out
}

// Regions returns per-region rollups sorted by descending record count
func (r *Repository) Regions() []RegionSummary {
	type acc struct {
		records, survival, growth int
		sizeTotal                 float64
		studies, sites            map[string]bool
	}
	byRegion := make(map[string]*acc)
	for _, obs := range r.observations {
		a, ok := byRegion[obs.Region]
		if !ok {
			a = &acc{studies: make(map[string]bool), sites: make(map[string]bool)}
			byRegion[obs.Region] = a
		}
		a.records++
		a.sizeTotal += obs.SizeCm2
		a.studies[obs.Study] = true
		if obs.Site != "" {
			a.sites[obs.Site] = true
		}
		if obs.Survived != nil {
			a.survival++
		}
		if obs.GrowthRate != nil {
			a.growth++
		}
	}
	out := make([]RegionSummary, 0, len(byRegion))
	for region, a := range byRegion {
		mean := 0.0
		if a.records > 0 {
			mean = a.sizeTotal / float64(a.records)
		}
		out = append(out, RegionSummary{
			Region:          region,
			Records:         a.records,
			Studies:         len(a.studies),
			Sites:           len(a.sites),
			SurvivalRecords: a.survival,
			GrowthRecords:   a.growth,
			MeanSizeCm2:     mean,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		return out[i].Region < out[j].Region
	})
	return out
}

// Summary returns the whole-dataset overview
func (r *Repository) Summary() Overview {
	o := Overview{
		Records:  len(r.observations),
		Snapshot: r.snapshotID.String(),
		Source:   r.source,
	}
	studies := make(map[string]bool)
	regions := make(map[string]bool)
	sites := make(map[string]bool)
	fragments := 0
	for i, obs := range r.observations {
		studies[obs.Study] = true
		regions[obs.Region] = true
		if obs.Site != "" {
			sites[obs.Site] = true
		}
		if obs.Survived != nil {
			o.SurvivalRecords++
		}
		if obs.GrowthRate != nil {
			o.GrowthRecords++
		}
		if obs.FragmentStatus == "fragment" {
			fragments++
		}
		if i == 0 || obs.SurveyYear < o.YearMin {
			o.YearMin = obs.SurveyYear
		}
		if obs.SurveyYear > o.YearMax {
			o.YearMax = obs.SurveyYear
		}
	}
	o.Studies = len(studies)
	o.Regions = len(regions)
	o.Sites = len(sites)
	if o.Records > 0 {
		o.FragmentPct = float64(fragments) / float64(o.Records) * 100
	}
	return o
}
