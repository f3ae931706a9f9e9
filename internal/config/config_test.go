package config

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies the documented defaults with a clean environment
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Data.Driver)
	assert.Equal(t, "observations", cfg.Data.Table)

	s := cfg.Stats
	assert.Equal(t, []float64{0, 25, 100, 500, 2000}, s.SizeBreaks)
	assert.Equal(t, 10, s.MinGroupN)
	assert.Equal(t, 30, s.MinModelN)
	assert.Equal(t, 500, s.BootstrapReplicates)
	assert.Equal(t, int64(42), s.BootstrapSeed)
	assert.Equal(t, 25.0, s.I2Moderate)
	assert.Equal(t, 50.0, s.I2Substantial)
	assert.Equal(t, 75.0, s.I2Considerable)
	assert.Equal(t, 0.5, s.DominantShare)
	assert.Equal(t, 100, s.MinQualityN)
	assert.Equal(t, 0.3, s.RSquaredFloor)
	assert.Equal(t, 1.0, s.ElasticityFloor)
	assert.Empty(t, s.FecundityRates)
}

// TestLoad_EnvOverrides verifies environment parsing for the tuned values
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SIZE_BREAKS", "0,50,500")
	t.Setenv("BOOTSTRAP_REPLICATES", "200")
	t.Setenv("FECUNDITY_RATES", "0,0,1.5")
	t.Setenv("DATASET_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []float64{0, 50, 500}, cfg.Stats.SizeBreaks)
	assert.Equal(t, 200, cfg.Stats.BootstrapReplicates)
	assert.Equal(t, []float64{0, 0, 1.5}, cfg.Stats.FecundityRates)
	assert.Equal(t, "sqlite", cfg.Data.Driver)
}

// TestLoad_Validation covers rejected configurations
func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"descending breaks", "SIZE_BREAKS", "0,100,50"},
		{"single break", "SIZE_BREAKS", "0"},
		{"zero group floor", "MIN_GROUP_N", "0"},
		{"model floor", "MIN_MODEL_N", "1"},
		{"zero replicates", "BOOTSTRAP_REPLICATES", "0"},
		{"dominant share", "DOMINANT_SHARE", "1.5"},
		{"fecundity length", "FECUNDITY_RATES", "1.0,2.0"},
		{"unknown driver", "DATASET_DRIVER", "mysql"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(c.key, c.value)
			_, err := Load()
			assert.Error(t, err, "Load accepted %s=%s", c.key, c.value)
		})
	}
}

// TestStatsConfig_Breakpoints verifies the open upper end
func TestStatsConfig_Breakpoints(t *testing.T) {
	s := StatsConfig{SizeBreaks: []float64{0, 25, 100, 500, 2000}}
	bp, err := s.Breakpoints()
	require.NoError(t, err)

	assert.Equal(t, 5, bp.NumClasses())
	assert.True(t, math.IsInf(bp[len(bp)-1], 1), "last boundary must be +Inf")
}

// TestStatsConfig_Thresholds verifies the mapping into the domain type
func TestStatsConfig_Thresholds(t *testing.T) {
	s := StatsConfig{I2Moderate: 30, I2Substantial: 60, I2Considerable: 80}
	th := s.Thresholds()
	assert.Equal(t, 30.0, th.Moderate)
	assert.Equal(t, 60.0, th.Substantial)
	assert.Equal(t, 80.0, th.Considerable)
}
