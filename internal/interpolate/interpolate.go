// Package interpolate fills short gaps in time-ordered series before any
// coverage computation. Coverage thresholds are measured on the
// post-interpolation series, so this must run first, independently per unit
// and per variable.
package interpolate

import (
	"math"

	"github.com/Arg0xel/SCM---current-work/domain/panel"
)

// FillGaps returns a copy of values with every interior NaN run of length
// at most maxGap replaced by the linear interpolation between its bounding
// observed values. Runs longer than maxGap, and runs touching either
// boundary (no bounding value on one side), remain NaN.
//
// Interpolating an already-complete series returns it unchanged, and the
// operation is idempotent for a fixed maxGap.
func FillGaps(values []float64, maxGap int) []float64 {
	out := append([]float64(nil), values...)
	if maxGap <= 0 {
		return out
	}

	i := 0
	for i < len(out) {
		if !math.IsNaN(out[i]) {
			i++
			continue
		}

		// Start of a missing run.
		start := i
		for i < len(out) && math.IsNaN(out[i]) {
			i++
		}
		end := i // first observed index after the run, or len(out)

		runLen := end - start
		if start == 0 || end == len(out) || runLen > maxGap {
			continue
		}

		left := out[start-1]
		right := out[end]
		step := (right - left) / float64(runLen+1)
		for j := 0; j < runLen; j++ {
			out[start+j] = left + step*float64(j+1)
		}
	}

	return out
}

// CleanPanel applies FillGaps to every series of the panel (the outcome and
// each predictor, per unit) and returns the cleaned copy.
func CleanPanel(p *panel.Panel, maxGap int) *panel.Panel {
	return p.Apply(func(values []float64) []float64 {
		return FillGaps(values, maxGap)
	})
}
