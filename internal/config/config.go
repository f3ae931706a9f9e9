package config

import (
	"math"

	"github.com/caarlos0/env/v11"

	"reefdemog/domain/coral"
	"reefdemog/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server ServerConfig
	Data   DataConfig
	Stats  StatsConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// DataConfig selects the dataset source. Exactly one of File or DSN should be
// set; with neither, the server falls back to the seeded synthetic dataset.
type DataConfig struct {
	// File is a .csv or .xlsx observation file
	File string `env:"DATASET_FILE"`
	// DSN is a database source ("postgres://..." or a sqlite file path with
	// DATASET_DRIVER=sqlite)
	DSN    string `env:"DATASET_DSN"`
	Driver string `env:"DATASET_DRIVER" envDefault:"postgres"`
	Table  string `env:"DATASET_TABLE" envDefault:"observations"`
}

// StatsConfig holds every tuning constant of the statistics engines. These are
// configuration with documented defaults, not hardwired magic numbers.
type StatsConfig struct {
	// SizeBreaks are the finite size class boundaries in cm²; the upper end is
	// always open (+Inf is appended).
	SizeBreaks []float64 `env:"SIZE_BREAKS" envDefault:"0,25,100,500,2000" envSeparator:","`

	// MinGroupN is the floor below which by-size groups are refused
	MinGroupN int `env:"MIN_GROUP_N" envDefault:"10"`
	// MinModelN is the floor of valid rows for the survival model
	MinModelN int `env:"MIN_MODEL_N" envDefault:"30"`

	// BootstrapReplicates for the lambda CI; values below 500 are served but
	// flagged lower-confidence in results
	BootstrapReplicates int   `env:"BOOTSTRAP_REPLICATES" envDefault:"500"`
	BootstrapSeed       int64 `env:"BOOTSTRAP_SEED" envDefault:"42"`

	// Heterogeneity interpretation thresholds (I² percent)
	I2Moderate     float64 `env:"I2_MODERATE" envDefault:"25"`
	I2Substantial  float64 `env:"I2_SUBSTANTIAL" envDefault:"50"`
	I2Considerable float64 `env:"I2_CONSIDERABLE" envDefault:"75"`

	// Quality assessment thresholds
	DominantShare float64 `env:"DOMINANT_SHARE" envDefault:"0.5"`
	MinQualityN   int     `env:"MIN_QUALITY_N" envDefault:"100"`
	RSquaredFloor float64 `env:"R_SQUARED_FLOOR" envDefault:"0.3"`
	MixMinority   float64 `env:"MIX_MINORITY" envDefault:"0.1"`

	// ElasticityFloor (percent) marks cells as elasticity-significant for the
	// path-to-stability search
	ElasticityFloor float64 `env:"ELASTICITY_FLOOR" envDefault:"1.0"`

	// FecundityRates are optional per-class reproductive contributions into the
	// smallest class (fragmentation/recruitment), one value per size class.
	// Empty means the projection matrix carries transitions only.
	FecundityRates []float64 `env:"FECUNDITY_RATES" envSeparator:","`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(&cfg.Server); err != nil {
		return nil, errors.Wrap(err, "failed to load server configuration")
	}
	if err := env.Parse(&cfg.Data); err != nil {
		return nil, errors.Wrap(err, "failed to load data configuration")
	}
	if err := env.Parse(&cfg.Stats); err != nil {
		return nil, errors.Wrap(err, "failed to load stats configuration")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Stats.Breakpoints(); err != nil {
		return errors.ConfigInvalid("SIZE_BREAKS: " + err.Error())
	}
	if c.Stats.MinGroupN < 1 {
		return errors.ConfigInvalid("MIN_GROUP_N must be at least 1")
	}
	if c.Stats.MinModelN < 2 {
		return errors.ConfigInvalid("MIN_MODEL_N must be at least 2")
	}
	if c.Stats.BootstrapReplicates < 1 {
		return errors.ConfigInvalid("BOOTSTRAP_REPLICATES must be at least 1")
	}
	if c.Stats.DominantShare <= 0 || c.Stats.DominantShare > 1 {
		return errors.ConfigInvalid("DOMINANT_SHARE must be in (0,1]")
	}
	if n := len(c.Stats.FecundityRates); n > 0 && n != len(c.Stats.SizeBreaks) {
		return errors.ConfigInvalid("FECUNDITY_RATES must have one value per size class")
	}
	if c.Data.Driver != "postgres" && c.Data.Driver != "sqlite" {
		return errors.ConfigInvalid("DATASET_DRIVER must be postgres or sqlite")
	}
	return nil
}

// Breakpoints builds the validated size class boundaries (open upper end)
func (s StatsConfig) Breakpoints() (coral.Breakpoints, error) {
	bounds := append(append([]float64(nil), s.SizeBreaks...), math.Inf(1))
	return coral.NewBreakpoints(bounds...)
}

// Thresholds returns the heterogeneity interpretation cutoffs
func (s StatsConfig) Thresholds() coral.HeterogeneityThresholds {
	return coral.HeterogeneityThresholds{
		Moderate:     s.I2Moderate,
		Substantial:  s.I2Substantial,
		Considerable: s.I2Considerable,
	}
}
