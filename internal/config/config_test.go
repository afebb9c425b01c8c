package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arg0xel/SCM---current-work/domain/core"
)

func validConfig() AnalysisConfig {
	cfg := Default()
	cfg.TreatedUnit = "china"
	cfg.TreatmentYear = 1980
	cfg.PrePeriodStart = 1960
	cfg.PrePeriodEnd = 1979
	cfg.PostPeriodEnd = 2000
	cfg.Covariates = []string{"gdp"}
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AnalysisConfig)
	}{
		{"missing treated unit", func(c *AnalysisConfig) { c.TreatedUnit = "" }},
		{"pre-period inverted", func(c *AnalysisConfig) { c.PrePeriodStart = 1985 }},
		{"pre-period overlaps treatment", func(c *AnalysisConfig) { c.PrePeriodEnd = 1980 }},
		{"post-period before treatment", func(c *AnalysisConfig) { c.PostPeriodEnd = 1979 }},
		{"outcome coverage out of range", func(c *AnalysisConfig) { c.OutcomeCoverageThreshold = 1.5 }},
		{"min predictors above covariate count", func(c *AnalysisConfig) { c.MinPredictorsPassing = 5 }},
		{"donor pool below two", func(c *AnalysisConfig) { c.MinDonorPoolSize = 1 }},
		{"negative max gap", func(c *AnalysisConfig) { c.MaxGapYears = -1 }},
		{"no predictors at all", func(c *AnalysisConfig) { c.Covariates = nil; c.SpecialPredictorAnchorYears = nil }},
		{"bad quantile parameter", func(c *AnalysisConfig) { c.PrefitFilterParam = 1.2 }},
		{"unknown filter mode", func(c *AnalysisConfig) { c.PrefitFilterMode = "median" }},
		{"in-time year at pre-period start", func(c *AnalysisConfig) { c.InTimePlaceboYear = 1960 }},
		{"in-time year after pre-period", func(c *AnalysisConfig) { c.InTimePlaceboYear = 1985 }},
		{"negative sample cap", func(c *AnalysisConfig) { c.PlaceboSampleCap = -1 }},
		{"zero concurrency", func(c *AnalysisConfig) { c.PlaceboConcurrency = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, core.IsConfigError(err))
		})
	}
}

func TestValidate_InTimeYearInsidePrePeriod(t *testing.T) {
	cfg := validConfig()
	cfg.InTimePlaceboYear = 1970
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCM_TREATED_UNIT", "china")
	t.Setenv("SCM_TREATMENT_YEAR", "1980")
	t.Setenv("SCM_COVARIATES", "gdp, urbanization")
	t.Setenv("SCM_ANCHOR_YEARS", "1965,1970")
	t.Setenv("SCM_PREFIT_FILTER_MODE", "relative")
	t.Setenv("SCM_FIT_TIMEOUT", "30s")

	cfg := Load()
	assert.Equal(t, core.UnitID("china"), cfg.TreatedUnit)
	assert.Equal(t, 1980, cfg.TreatmentYear)
	assert.Equal(t, []string{"gdp", "urbanization"}, cfg.Covariates)
	assert.Equal(t, []int{1965, 1970}, cfg.SpecialPredictorAnchorYears)
	assert.Equal(t, PrefitFilterRelative, cfg.PrefitFilterMode)
	assert.Equal(t, 30*time.Second, cfg.FitTimeout)
}

func TestLoad_DefaultsSurviveWithoutEnv(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 3, cfg.MaxGapYears)
	assert.Equal(t, 0.9, cfg.OutcomeCoverageThreshold)
	assert.Equal(t, PrefitFilterQuantile, cfg.PrefitFilterMode)
	assert.Equal(t, 2*time.Minute, cfg.FitTimeout)
}

func TestPrePostYears(t *testing.T) {
	cfg := validConfig()
	from, to := cfg.PreYears()
	assert.Equal(t, 1960, from)
	assert.Equal(t, 1979, to)

	from, to = cfg.PostYears()
	assert.Equal(t, 1980, from)
	assert.Equal(t, 2000, to)
}
