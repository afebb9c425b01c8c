package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMSPE(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	synthetic := []float64{1, 2, 3, 4}
	assert.Equal(t, 0.0, RMSPE(actual, synthetic))

	synthetic = []float64{2, 3, 4, 5} // constant gap of 1
	assert.InDelta(t, 1.0, RMSPE(actual, synthetic), 1e-12)
}

func TestRMSPE_SkipsMissingYears(t *testing.T) {
	actual := []float64{1, math.NaN(), 3}
	synthetic := []float64{2, 100, 4}
	// Only indices 0 and 2 contribute, each with gap 1.
	assert.InDelta(t, 1.0, RMSPE(actual, synthetic), 1e-12)
}

func TestRMSPE_NoOverlapIsNaN(t *testing.T) {
	actual := []float64{math.NaN(), math.NaN()}
	synthetic := []float64{1, 2}
	assert.True(t, math.IsNaN(RMSPE(actual, synthetic)))
}

func TestMSPERatio(t *testing.T) {
	ratio, perfect := MSPERatio(1.0, 3.0)
	assert.False(t, perfect)
	assert.InDelta(t, 9.0, ratio, 1e-12)
}

func TestMSPERatio_PerfectPreFitSentinel(t *testing.T) {
	ratio, perfect := MSPERatio(0.0, 2.0)
	assert.True(t, perfect)
	assert.True(t, math.IsInf(ratio, 1))
}

func TestSynthetic(t *testing.T) {
	donors := [][]float64{
		{1, 2, 3},
		{3, 4, 5},
	}
	got := Synthetic(donors, []float64{0.5, 0.5})
	require.Len(t, got, 3)
	assert.InDelta(t, 2.0, got[0], 1e-12)
	assert.InDelta(t, 3.0, got[1], 1e-12)
	assert.InDelta(t, 4.0, got[2], 1e-12)
}

func TestSynthetic_ZeroWeightDonorCannotPoison(t *testing.T) {
	donors := [][]float64{
		{1, 2, 3},
		{math.NaN(), math.NaN(), math.NaN()},
	}
	got := Synthetic(donors, []float64{1.0, 0.0})
	for i, v := range got {
		assert.False(t, math.IsNaN(v), "index %d", i)
	}
}

func TestEvaluate(t *testing.T) {
	q := Evaluate(
		[]float64{1, 2}, []float64{1, 2}, // perfect pre fit
		[]float64{3, 4}, []float64{1, 1},
	)
	assert.True(t, q.PerfectPreFit)
	assert.True(t, math.IsInf(q.MSPERatio, 1))
	assert.Equal(t, 0.0, q.PreRMSPE)
	assert.Greater(t, q.PostRMSPE, 0.0)
}
