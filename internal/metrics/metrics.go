// Package metrics computes the pre/post divergence statistics shared by the
// main fit and every placebo fit.
package metrics

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Quality summarizes fit quality over the pre- and post-treatment windows.
// A perfect pre-period fit (pre-RMSPE of zero) yields an infinite MSPE ratio
// together with the PerfectPreFit flag; it is a legitimate outcome the
// inference engine must still be able to rank, never an error.
type Quality struct {
	PreRMSPE      float64
	PostRMSPE     float64
	MSPERatio     float64
	PerfectPreFit bool
}

// RMSPE is the root-mean-squared prediction error between the actual and
// synthetic trajectories. Years where the actual value is missing are
// skipped; if nothing overlaps, the result is NaN.
func RMSPE(actual, synthetic []float64) float64 {
	n := len(actual)
	if len(synthetic) < n {
		n = len(synthetic)
	}

	sq := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(actual[i]) || math.IsNaN(synthetic[i]) {
			continue
		}
		diff := actual[i] - synthetic[i]
		sq = append(sq, diff*diff)
	}
	if len(sq) == 0 {
		return math.NaN()
	}

	mean, err := stats.Mean(sq)
	if err != nil {
		return math.NaN()
	}
	return math.Sqrt(mean)
}

// MSPERatio is post-RMSPE squared over pre-RMSPE squared. The perfect-pre-fit
// division by zero is recovered locally with a +Inf sentinel.
func MSPERatio(preRMSPE, postRMSPE float64) (float64, bool) {
	if preRMSPE == 0 {
		return math.Inf(1), true
	}
	return (postRMSPE * postRMSPE) / (preRMSPE * preRMSPE), false
}

// Synthetic composes the synthetic trajectory from donor series and fitted
// weights: synthetic[t] = Σ_j w_j · donor_j[t]. donorSeries holds one slice
// per donor, aligned with weights. Zero weights are skipped so a missing
// value in an unweighted donor cannot poison the trajectory.
func Synthetic(donorSeries [][]float64, weights []float64) []float64 {
	if len(donorSeries) == 0 {
		return nil
	}
	T := len(donorSeries[0])
	out := make([]float64, T)

	for t := 0; t < T; t++ {
		sum := 0.0
		for j, w := range weights {
			if w == 0 {
				continue
			}
			sum += w * donorSeries[j][t]
		}
		out[t] = sum
	}
	return out
}

// Evaluate computes the full quality summary from actual and synthetic
// trajectories split at the treatment boundary. Pure function.
func Evaluate(actualPre, syntheticPre, actualPost, syntheticPost []float64) Quality {
	pre := RMSPE(actualPre, syntheticPre)
	post := RMSPE(actualPost, syntheticPost)
	ratio, perfect := MSPERatio(pre, post)
	return Quality{
		PreRMSPE:      pre,
		PostRMSPE:     post,
		MSPERatio:     ratio,
		PerfectPreFit: perfect,
	}
}
