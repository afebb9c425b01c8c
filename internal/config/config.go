package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/internal/errors"
)

// PrefitFilterMode selects how placebo fits are screened on pre-period fit
// quality before the p-value is computed.
type PrefitFilterMode string

const (
	PrefitFilterQuantile PrefitFilterMode = "quantile"
	PrefitFilterRelative PrefitFilterMode = "relative"
	PrefitFilterNone     PrefitFilterMode = "none"
)

// AnalysisConfig is the complete, immutable configuration for one analysis
// run. It is constructed once at startup by layering defaults, then
// environment values, then command-line overrides, and is passed by value
// into every component. Components never read ambient state.
type AnalysisConfig struct {
	// Study design
	TreatedUnit    core.UnitID
	TreatmentYear  int
	PrePeriodStart int
	PrePeriodEnd   int
	PostPeriodEnd  int

	// Gap interpolation
	MaxGapYears int

	// Donor pool construction
	OutcomeCoverageThreshold   float64
	PredictorCoverageThreshold float64
	MinPredictorsPassing       int
	MinDonorPoolSize           int
	IncludeUnits               []core.UnitID
	ExcludeUnits               []core.UnitID
	ExcludeTags                []string
	NegligibleUnits            []core.UnitID

	// Predictor spec
	Covariates                  []string
	SpecialPredictorAnchorYears []int

	// Placebo inference
	PrefitFilterMode  PrefitFilterMode
	PrefitFilterParam float64
	PlaceboSampleCap  int
	InTimePlaceboYear int // 0 disables the in-time placebo

	// Solver tuning
	OuterIterations    int
	InnerIterations    int
	PlaceboConcurrency int
	FitTimeout         time.Duration
}

// Default returns the baseline configuration layer.
func Default() AnalysisConfig {
	return AnalysisConfig{
		MaxGapYears:                3,
		OutcomeCoverageThreshold:   0.9,
		PredictorCoverageThreshold: 0.6,
		MinPredictorsPassing:       1,
		MinDonorPoolSize:           10,
		PrefitFilterMode:           PrefitFilterQuantile,
		PrefitFilterParam:          0.9,
		OuterIterations:            200,
		InnerIterations:            2000,
		PlaceboConcurrency:         4,
		FitTimeout:                 2 * time.Minute,
	}
}

// Load builds the configuration by applying environment overrides on top of
// the defaults. Callers layer command-line overrides on the returned value
// before calling Validate.
func Load() AnalysisConfig {
	cfg := Default()

	cfg.TreatedUnit = core.UnitID(getEnvOrDefault("SCM_TREATED_UNIT", string(cfg.TreatedUnit)))
	cfg.TreatmentYear = getEnvIntOrDefault("SCM_TREATMENT_YEAR", cfg.TreatmentYear)
	cfg.PrePeriodStart = getEnvIntOrDefault("SCM_PRE_PERIOD_START", cfg.PrePeriodStart)
	cfg.PrePeriodEnd = getEnvIntOrDefault("SCM_PRE_PERIOD_END", cfg.PrePeriodEnd)
	cfg.PostPeriodEnd = getEnvIntOrDefault("SCM_POST_PERIOD_END", cfg.PostPeriodEnd)

	cfg.MaxGapYears = getEnvIntOrDefault("SCM_MAX_GAP_YEARS", cfg.MaxGapYears)

	cfg.OutcomeCoverageThreshold = getEnvFloatOrDefault("SCM_OUTCOME_COVERAGE", cfg.OutcomeCoverageThreshold)
	cfg.PredictorCoverageThreshold = getEnvFloatOrDefault("SCM_PREDICTOR_COVERAGE", cfg.PredictorCoverageThreshold)
	cfg.MinPredictorsPassing = getEnvIntOrDefault("SCM_MIN_PREDICTORS_PASSING", cfg.MinPredictorsPassing)
	cfg.MinDonorPoolSize = getEnvIntOrDefault("SCM_MIN_DONOR_POOL_SIZE", cfg.MinDonorPoolSize)
	cfg.IncludeUnits = getEnvUnitList("SCM_INCLUDE_UNITS")
	cfg.ExcludeUnits = getEnvUnitList("SCM_EXCLUDE_UNITS")
	cfg.ExcludeTags = getEnvList("SCM_EXCLUDE_TAGS")
	cfg.NegligibleUnits = getEnvUnitList("SCM_NEGLIGIBLE_UNITS")

	cfg.Covariates = getEnvList("SCM_COVARIATES")
	cfg.SpecialPredictorAnchorYears = getEnvIntList("SCM_ANCHOR_YEARS")

	cfg.PrefitFilterMode = PrefitFilterMode(getEnvOrDefault("SCM_PREFIT_FILTER_MODE", string(cfg.PrefitFilterMode)))
	cfg.PrefitFilterParam = getEnvFloatOrDefault("SCM_PREFIT_FILTER_PARAM", cfg.PrefitFilterParam)
	cfg.PlaceboSampleCap = getEnvIntOrDefault("SCM_PLACEBO_SAMPLE_CAP", cfg.PlaceboSampleCap)
	cfg.InTimePlaceboYear = getEnvIntOrDefault("SCM_IN_TIME_PLACEBO_YEAR", cfg.InTimePlaceboYear)

	cfg.OuterIterations = getEnvIntOrDefault("SCM_OUTER_ITERATIONS", cfg.OuterIterations)
	cfg.InnerIterations = getEnvIntOrDefault("SCM_INNER_ITERATIONS", cfg.InnerIterations)
	cfg.PlaceboConcurrency = getEnvIntOrDefault("SCM_PLACEBO_CONCURRENCY", cfg.PlaceboConcurrency)
	cfg.FitTimeout = getEnvDurationOrDefault("SCM_FIT_TIMEOUT", cfg.FitTimeout)

	return cfg
}

// Validate checks every parameter combination that is detectable before any
// data processing. Violations are fatal and never retried.
func (c AnalysisConfig) Validate() error {
	if c.TreatedUnit.String() == "" {
		return errors.ConfigInvalid("treated unit is required")
	}
	if c.PrePeriodStart > c.PrePeriodEnd {
		return errors.ConfigInvalid("pre-period start must not be after pre-period end")
	}
	if c.PrePeriodEnd >= c.TreatmentYear {
		return errors.ConfigInvalid("pre-period must end strictly before the treatment year")
	}
	if c.PostPeriodEnd < c.TreatmentYear {
		return errors.ConfigInvalid("post-period end must not precede the treatment year")
	}
	if c.OutcomeCoverageThreshold < 0 || c.OutcomeCoverageThreshold > 1 {
		return errors.ConfigInvalid("outcome coverage threshold must be in [0, 1]")
	}
	if c.PredictorCoverageThreshold < 0 || c.PredictorCoverageThreshold > 1 {
		return errors.ConfigInvalid("predictor coverage threshold must be in [0, 1]")
	}
	if n := len(c.Covariates); n > 0 && (c.MinPredictorsPassing < 1 || c.MinPredictorsPassing > n) {
		return errors.ConfigInvalid("min predictors passing must be within [1, number of covariates]")
	}
	if c.MinDonorPoolSize < 2 {
		return errors.ConfigInvalid("minimum donor pool size must be at least 2")
	}
	if c.MaxGapYears < 0 {
		return errors.ConfigInvalid("max gap years must be non-negative")
	}
	if len(c.SpecialPredictorAnchorYears) == 0 && len(c.Covariates) == 0 {
		return errors.ConfigInvalid("at least one covariate or special-predictor anchor year is required")
	}
	switch c.PrefitFilterMode {
	case PrefitFilterQuantile:
		if c.PrefitFilterParam <= 0 || c.PrefitFilterParam > 1 {
			return errors.ConfigInvalid("quantile prefit filter parameter must be in (0, 1]")
		}
	case PrefitFilterRelative:
		if c.PrefitFilterParam <= 0 {
			return errors.ConfigInvalid("relative prefit filter parameter must be positive")
		}
	case PrefitFilterNone:
		// no parameter
	default:
		return errors.ConfigInvalid("prefit filter mode must be quantile, relative, or none")
	}
	if c.InTimePlaceboYear != 0 {
		if c.InTimePlaceboYear <= c.PrePeriodStart || c.InTimePlaceboYear > c.PrePeriodEnd {
			return errors.ConfigInvalid("in-time placebo year must lie strictly inside the pre-treatment period")
		}
	}
	if c.PlaceboSampleCap < 0 {
		return errors.ConfigInvalid("placebo sample cap must be non-negative")
	}
	if c.PlaceboConcurrency < 1 {
		return errors.ConfigInvalid("placebo concurrency must be at least 1")
	}
	return nil
}

// PreYears returns the inclusive pre-treatment window bounds.
func (c AnalysisConfig) PreYears() (int, int) { return c.PrePeriodStart, c.PrePeriodEnd }

// PostYears returns the inclusive post-treatment window bounds.
func (c AnalysisConfig) PostYears() (int, int) { return c.TreatmentYear, c.PostPeriodEnd }

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvUnitList(key string) []core.UnitID {
	raw := getEnvList(key)
	if len(raw) == 0 {
		return nil
	}
	out := make([]core.UnitID, len(raw))
	for i, s := range raw {
		out[i] = core.UnitID(s)
	}
	return out
}

func getEnvIntList(key string) []int {
	raw := getEnvList(key)
	if len(raw) == 0 {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		if v, err := strconv.Atoi(s); err == nil {
			out = append(out, v)
		}
	}
	return out
}
