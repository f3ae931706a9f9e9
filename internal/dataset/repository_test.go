package dataset

import (
	"errors"
	"testing"

	"reefdemog/domain/coral"
)

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

func statusPtr(s coral.FragmentStatus) *coral.FragmentStatus { return &s }

func testRepository() *Repository {
	surv := true
	died := false
	growth := 0.2
	obs := []coral.Observation{
		{Study: "A", Region: "Caribbean", Site: "Glover Reef", SizeCm2: 10, SurveyYear: 2018, FragmentStatus: coral.StatusFragment, Survived: &surv},
		{Study: "A", Region: "Caribbean", Site: "Glover Reef", SizeCm2: 150, SurveyYear: 2019, FragmentStatus: coral.StatusColony, Survived: &died},
		{Study: "B", Region: "Caribbean", Site: "Mona Shelf", SizeCm2: 600, SurveyYear: 2020, FragmentStatus: coral.StatusColony, Survived: &surv, GrowthRate: &growth},
		{Study: "C", Region: "Pacific", Site: "Moorea Fringe", SizeCm2: 3000, SurveyYear: 2021, FragmentStatus: coral.StatusColony, GrowthRate: &growth},
	}
	return New(obs, coral.DefaultBreakpoints(), "test")
}

// TestNew_ClassifiesAndCopies verifies construction derives size classes and
// owns its data
func TestNew_ClassifiesAndCopies(t *testing.T) {
	source := []coral.Observation{{Study: "A", Region: "x", SizeCm2: 150, SurveyYear: 2020}}
	repo := New(source, coral.DefaultBreakpoints(), "mem")

	// Input slice mutation must not reach the repository
	source[0].Study = "mutated"

	all := repo.Select(Filter{})
	if len(all) != 1 {
		t.Fatalf("Len = %d, want 1", len(all))
	}
	if all[0].Study != "A" {
		t.Error("repository shares storage with the caller's slice")
	}
	if all[0].SizeClass != 3 {
		t.Errorf("size class = %v, want SC3 for 150 cm²", all[0].SizeClass)
	}
	if repo.SnapshotID() == "" {
		t.Error("snapshot ID missing")
	}
	if repo.Source() != "mem" {
		t.Errorf("source = %q", repo.Source())
	}
}

// TestSelect_Filters exercises each filter axis
func TestSelect_Filters(t *testing.T) {
	repo := testRepository()

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"region", Filter{Region: "Caribbean"}, 3},
		{"unknown region", Filter{Region: "Atlantis"}, 0},
		{"survival outcome", Filter{DataType: coral.DataSurvival}, 3},
		{"growth outcome", Filter{DataType: coral.DataGrowth}, 2},
		{"fragment", Filter{FragmentStatus: statusPtr(coral.StatusFragment)}, 1},
		{"year window", Filter{YearMin: intPtr(2019), YearMax: intPtr(2020)}, 2},
		{"size window", Filter{SizeMin: f64Ptr(100), SizeMax: f64Ptr(1000)}, 2},
		{"combined", Filter{Region: "Caribbean", DataType: coral.DataSurvival, YearMin: intPtr(2019)}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := len(repo.Select(c.filter)); got != c.want {
				t.Errorf("Select(%+v) = %d records, want %d", c.filter, got, c.want)
			}
		})
	}
}

// TestSelect_ReturnsFreshCopy verifies selections never alias repository state
func TestSelect_ReturnsFreshCopy(t *testing.T) {
	repo := testRepository()

	first := repo.Select(Filter{})
	first[0].Study = "mutated"

	second := repo.Select(Filter{})
	if second[0].Study == "mutated" {
		t.Error("selection aliases repository storage")
	}
}

// TestFilter_Validate rejects inverted ranges
func TestFilter_Validate(t *testing.T) {
	ok := Filter{YearMin: intPtr(2018), YearMax: intPtr(2020)}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid filter rejected: %v", err)
	}
	var rangeErr *RangeError
	err := (Filter{YearMin: intPtr(2021), YearMax: intPtr(2020)}).Validate()
	if !errors.As(err, &rangeErr) || rangeErr.Param != "year" {
		t.Errorf("inverted year range error = %v, want RangeError on year", err)
	}
	err = (Filter{SizeMin: f64Ptr(100), SizeMax: f64Ptr(50)}).Validate()
	if !errors.As(err, &rangeErr) || rangeErr.Param != "size" {
		t.Errorf("inverted size range error = %v, want RangeError on size", err)
	}
}

// TestReclassified applies custom breakpoints without touching the input
func TestReclassified(t *testing.T) {
	repo := testRepository()
	selection := repo.Select(Filter{})

	coarse, err := coral.NewBreakpoints(0, 500, 1e12)
	if err != nil {
		t.Fatalf("NewBreakpoints: %v", err)
	}
	re := Reclassified(selection, coarse)

	if re[0].SizeClass != 1 || re[3].SizeClass != 2 {
		t.Errorf("reclassified classes = %v, %v", re[0].SizeClass, re[3].SizeClass)
	}
	// Original selection keeps the default classification
	if selection[3].SizeClass != 5 {
		t.Errorf("input mutated: class = %v", selection[3].SizeClass)
	}
}

// TestDescribe computes the selection meta rollup
func TestDescribe(t *testing.T) {
	repo := testRepository()
	meta := repo.Describe(repo.Select(Filter{Region: "Caribbean"}))

	if meta.Records != 3 || meta.Studies != 2 || meta.Regions != 1 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.YearMin != 2018 || meta.YearMax != 2020 {
		t.Errorf("year range = [%d,%d]", meta.YearMin, meta.YearMax)
	}
	if meta.Snapshot != repo.SnapshotID().String() {
		t.Error("meta snapshot does not match repository")
	}
}

// TestRollups covers sites, regions, and the overview
func TestRollups(t *testing.T) {
	repo := testRepository()

	sites := repo.Sites()
	if len(sites) != 3 {
		t.Fatalf("sites = %d, want 3", len(sites))
	}
	if sites[0].Site != "Glover Reef" || sites[0].Records != 2 || sites[0].Studies != 1 {
		t.Errorf("top site = %+v", sites[0])
	}

	regions := repo.Regions()
	if len(regions) != 2 {
		t.Fatalf("regions = %d, want 2", len(regions))
	}
	carib := regions[0]
	if carib.Region != "Caribbean" || carib.Records != 3 || carib.Studies != 2 || carib.Sites != 2 {
		t.Errorf("caribbean rollup = %+v", carib)
	}
	if carib.SurvivalRecords != 3 || carib.GrowthRecords != 1 {
		t.Errorf("caribbean outcome counts = %+v", carib)
	}

	o := repo.Summary()
	if o.Records != 4 || o.Studies != 3 || o.Regions != 2 || o.Sites != 3 {
		t.Errorf("overview = %+v", o)
	}
	if o.SurvivalRecords != 3 || o.GrowthRecords != 2 {
		t.Errorf("overview outcome counts = %+v", o)
	}
	if o.FragmentPct != 25 {
		t.Errorf("fragment pct = %v, want 25", o.FragmentPct)
	}
	if o.YearMin != 2018 || o.YearMax != 2021 {
		t.Errorf("overview years = [%d,%d]", o.YearMin, o.YearMax)
	}
}
