package scm

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightVector_IsSimplex(t *testing.T) {
	assert.True(t, WeightVector{0.3, 0.7}.IsSimplex(1e-9))
	assert.True(t, WeightVector{1}.IsSimplex(1e-9))
	assert.False(t, WeightVector{0.5, 0.6}.IsSimplex(1e-9))
	assert.False(t, WeightVector{-0.1, 1.1}.IsSimplex(1e-9))
}

func TestFitResult_PerfectPreFitSurvivesJSON(t *testing.T) {
	original := FitResult{
		TreatedUnit:    "treated",
		Weights:        WeightVector{1},
		PrePeriodRMSPE: 0,
		MSPERatio:      math.Inf(1),
		PerfectPreFit:  true,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored FitResult
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.True(t, restored.PerfectPreFit)
	assert.True(t, math.IsInf(restored.MSPERatio, 1))
	assert.Equal(t, 0.0, restored.PrePeriodRMSPE)
}

func TestFitResult_NaNEncodesAsNull(t *testing.T) {
	original := FitResult{PostPeriodRMSPE: math.NaN(), MSPERatio: 2.5}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"post_period_rmspe":null`)

	var restored FitResult
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, math.IsNaN(restored.PostPeriodRMSPE))
	assert.InDelta(t, 2.5, restored.MSPERatio, 1e-12)
}

func TestPValueConstructors(t *testing.T) {
	pv := DefinedPValue(0.04)
	assert.True(t, pv.Defined)
	assert.InDelta(t, 0.04, pv.Value, 1e-12)
	assert.Contains(t, pv.Method, "permutation")

	pv = UndefinedPValue("all placebo fits failed")
	assert.False(t, pv.Defined)
	assert.Equal(t, "all placebo fits failed", pv.Reason)
}
