package donorpool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/internal/testkit"
)

func baseConfig() config.AnalysisConfig {
	cfg := config.Default()
	cfg.TreatedUnit = "treated"
	cfg.TreatmentYear = 1980
	cfg.PrePeriodStart = 1970
	cfg.PrePeriodEnd = 1979
	cfg.PostPeriodEnd = 1990
	cfg.MinDonorPoolSize = 2
	cfg.Covariates = []string{"gdp"}
	cfg.MinPredictorsPassing = 1
	return cfg
}

func fullUnit(id string, tags ...string) testkit.UnitSpec {
	return testkit.UnitSpec{
		ID:      id,
		Name:    id,
		Tags:    tags,
		Outcome: testkit.ConstantSeries(1970, 1990, 2.0),
		Predictors: map[string]map[int]float64{
			"gdp": testkit.ConstantSeries(1970, 1990, 100),
		},
	}
}

func TestSelectDonors_AllowAndDenyLists(t *testing.T) {
	p, err := testkit.BuildPanel([]string{"gdp"},
		fullUnit("treated"),
		fullUnit("a"), fullUnit("b"), fullUnit("c", "microstate"), fullUnit("d"),
	)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.ExcludeUnits = []core.UnitID{"b"}
	cfg.ExcludeTags = []string{"microstate"}

	donors, report, err := New(cfg).SelectDonors(p)
	require.NoError(t, err)
	assert.Equal(t, []core.UnitID{"a", "d"}, donors)
	assert.Equal(t, 4, report.Requested)
	assert.Equal(t, 2, report.Surviving)

	var reasons []string
	for _, stage := range report.Stages {
		for _, r := range stage.Removed {
			reasons = append(reasons, r.Reason)
		}
	}
	assert.Contains(t, reasons, "on the exclude list")
	assert.Contains(t, reasons, `carries excluded tag "microstate"`)
}

func TestSelectDonors_NegligibleSizeSet(t *testing.T) {
	p, err := testkit.BuildPanel([]string{"gdp"},
		fullUnit("treated"), fullUnit("a"), fullUnit("b"), fullUnit("tiny"),
	)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.NegligibleUnits = []core.UnitID{"tiny"}

	donors, _, err := New(cfg).SelectDonors(p)
	require.NoError(t, err)
	assert.NotContains(t, donors, core.UnitID("tiny"))
}

func TestSelectDonors_OutcomeCoverage(t *testing.T) {
	sparse := fullUnit("sparse")
	// Knock out 5 of 10 pre-period years.
	for y := 1970; y <= 1974; y++ {
		sparse.Outcome[y] = math.NaN()
	}

	p, err := testkit.BuildPanel([]string{"gdp"},
		fullUnit("treated"), fullUnit("a"), fullUnit("b"), sparse,
	)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.OutcomeCoverageThreshold = 0.9

	donors, report, err := New(cfg).SelectDonors(p)
	require.NoError(t, err)
	assert.NotContains(t, donors, core.UnitID("sparse"))

	for _, stage := range report.Stages {
		if stage.Stage == "outcome_coverage" {
			require.Len(t, stage.Removed, 1)
			assert.Equal(t, core.UnitID("sparse"), stage.Removed[0].UnitID)
		}
	}
}

func TestSelectDonors_AllPredictorsMissingRejected(t *testing.T) {
	hollow := fullUnit("hollow")
	hollow.Predictors["gdp"] = map[int]float64{} // entirely missing

	p, err := testkit.BuildPanel([]string{"gdp"},
		fullUnit("treated"), fullUnit("a"), fullUnit("b"), hollow,
	)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.PredictorCoverageThreshold = 0 // even a zero threshold must not admit all-missing rows

	donors, _, err := New(cfg).SelectDonors(p)
	require.NoError(t, err)
	assert.NotContains(t, donors, core.UnitID("hollow"))
}

func TestSelectDonors_MinPoolSizeFailsLoudly(t *testing.T) {
	p, err := testkit.BuildPanel([]string{"gdp"},
		fullUnit("treated"), fullUnit("a"), fullUnit("b"),
	)
	require.NoError(t, err)

	cfg := baseConfig()
	cfg.MinDonorPoolSize = 10

	_, report, err := New(cfg).SelectDonors(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need at least 10")
	assert.Equal(t, 2, report.Surviving)
}

func TestSelectDonors_ThresholdMonotonicity(t *testing.T) {
	// Survivor count must never increase as the outcome threshold rises.
	specs := []testkit.UnitSpec{fullUnit("treated")}
	for i, missing := range []int{0, 1, 2, 4, 6, 8} {
		u := fullUnit(string(rune('a' + i)))
		for y := 1970; y < 1970+missing; y++ {
			u.Outcome[y] = math.NaN()
		}
		specs = append(specs, u)
	}
	p, err := testkit.BuildPanel([]string{"gdp"}, specs...)
	require.NoError(t, err)

	prev := -1
	for _, threshold := range []float64{1.0, 0.8, 0.6, 0.4, 0.2, 0.0} {
		cfg := baseConfig()
		cfg.OutcomeCoverageThreshold = threshold
		cfg.MinDonorPoolSize = 2

		donors, _, err := New(cfg).SelectDonors(p)
		require.NoError(t, err, "threshold %.1f", threshold)
		if prev >= 0 {
			assert.GreaterOrEqual(t, len(donors), prev,
				"lowering the threshold to %.1f must not shrink the pool", threshold)
		}
		prev = len(donors)
	}
}

func TestCheckTreatedUnit(t *testing.T) {
	sparseTreated := fullUnit("treated")
	for y := 1970; y <= 1975; y++ {
		sparseTreated.Outcome[y] = math.NaN()
	}

	p, err := testkit.BuildPanel([]string{"gdp"}, sparseTreated, fullUnit("a"))
	require.NoError(t, err)

	cfg := baseConfig()
	err = New(cfg).CheckTreatedUnit(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treated unit")

	ok, err2 := testkit.BuildPanel([]string{"gdp"}, fullUnit("treated"), fullUnit("a"))
	require.NoError(t, err2)
	assert.NoError(t, New(cfg).CheckTreatedUnit(ok))
}

func TestSelectDonors_TreatedExcludedFromPool(t *testing.T) {
	p, err := testkit.BuildPanel([]string{"gdp"},
		fullUnit("treated"), fullUnit("a"), fullUnit("b"),
	)
	require.NoError(t, err)

	cfg := baseConfig()
	donors, _, err := New(cfg).SelectDonors(p)
	require.NoError(t, err)
	assert.NotContains(t, donors, core.UnitID("treated"))
	assert.Len(t, donors, 2)
}
