package interpolate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nan() float64 { return math.NaN() }

func TestFillGaps_ShortInteriorRun(t *testing.T) {
	values := []float64{1.0, nan(), nan(), 4.0}
	got := FillGaps(values, 2)

	require.Len(t, got, 4)
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.InDelta(t, 2.0, got[1], 1e-12)
	assert.InDelta(t, 3.0, got[2], 1e-12)
	assert.InDelta(t, 4.0, got[3], 1e-12)
}

func TestFillGaps_RunLongerThanMaxGapStaysMissing(t *testing.T) {
	values := []float64{1.0, nan(), nan(), nan(), 5.0}
	got := FillGaps(values, 2)

	assert.True(t, math.IsNaN(got[1]))
	assert.True(t, math.IsNaN(got[2]))
	assert.True(t, math.IsNaN(got[3]))
}

func TestFillGaps_BoundaryRunsStayMissing(t *testing.T) {
	values := []float64{nan(), 2.0, 3.0, nan()}
	got := FillGaps(values, 3)

	assert.True(t, math.IsNaN(got[0]), "leading gap has no left bound")
	assert.True(t, math.IsNaN(got[3]), "trailing gap has no right bound")
	assert.Equal(t, 2.0, got[1])
	assert.Equal(t, 3.0, got[2])
}

func TestFillGaps_FullyObservedUnchanged(t *testing.T) {
	values := []float64{1.1, 2.2, 3.3}
	got := FillGaps(values, 3)
	assert.Equal(t, values, got)
}

func TestFillGaps_Idempotent(t *testing.T) {
	values := []float64{1.0, nan(), 3.0, nan(), nan(), nan(), nan(), 8.0, nan()}

	once := FillGaps(values, 2)
	twice := FillGaps(once, 2)

	require.Len(t, twice, len(once))
	for i := range once {
		if math.IsNaN(once[i]) {
			assert.True(t, math.IsNaN(twice[i]), "index %d", i)
			continue
		}
		assert.Equal(t, once[i], twice[i], "index %d", i)
	}
}

func TestFillGaps_DoesNotMutateInput(t *testing.T) {
	values := []float64{1.0, nan(), 3.0}
	_ = FillGaps(values, 1)
	assert.True(t, math.IsNaN(values[1]))
}

func TestFillGaps_ZeroMaxGapDisablesFilling(t *testing.T) {
	values := []float64{1.0, nan(), 3.0}
	got := FillGaps(values, 0)
	assert.True(t, math.IsNaN(got[1]))
}
