// Package weights solves the synthetic-control optimization: a convex
// combination of donor units minimizing pre-treatment divergence from the
// treated unit, weighted by per-predictor importance.
//
// The problem is nested. The inner problem, for a fixed diagonal importance
// matrix V, is a quadratic program over the simplex:
//
//	minimize over w: (x1 − X0·w)ᵀ V (x1 − X0·w)
//	subject to:      w ≥ 0, Σw = 1
//
// solved here by projected gradient descent. The outer problem chooses V to
// minimize the pre-treatment outcome RMSPE of the induced w, searched with
// Nelder-Mead over a softmax parameterization of V.
package weights

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/panel"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/internal/errors"
	"github.com/Arg0xel/SCM---current-work/internal/metrics"
	"github.com/Arg0xel/SCM---current-work/internal/predictors"
)

// Problem is one fit invocation: a treated unit matched against a requested
// donor pool on a cleaned panel under a fixed predictor spec.
type Problem struct {
	Treated core.UnitID
	Donors  []core.UnitID
	Spec    panel.PredictorSpec
	Panel   *panel.Panel
}

// Fitter solves synthetic-control problems under one immutable
// configuration.
type Fitter struct {
	cfg     config.AnalysisConfig
	builder *predictors.Builder
}

// NewFitter creates a fitter.
func NewFitter(cfg config.AnalysisConfig) *Fitter {
	return &Fitter{cfg: cfg, builder: predictors.NewBuilder(cfg)}
}

// Fit runs the nested optimization and returns the FitResult. Donors whose
// predictor vector contains any missing value are excluded before solving,
// never imputed; the result's DonorPoolUsed reflects exactly the reduced
// set, and the weight vector is aligned with it alone.
func (f *Fitter) Fit(ctx context.Context, prob Problem) (scm.FitResult, error) {
	if f.cfg.FitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.FitTimeout)
		defer cancel()
	}

	treatedVec := f.builder.Vector(prob.Panel, prob.Spec, prob.Treated)

	// Predictor rows the treated unit itself cannot supply are dropped with
	// a diagnostic; matching on a dimension with no treated value is
	// meaningless.
	keptRows := make([]int, 0, len(treatedVec))
	for i, v := range treatedVec {
		if math.IsNaN(v) {
			log.Printf("[WeightFitter] dropping predictor %q: treated unit %s has no observed value",
				prob.Spec.Entries[i].Label(), prob.Treated)
			continue
		}
		keptRows = append(keptRows, i)
	}
	if len(keptRows) == 0 {
		return scm.FitResult{}, errors.FitFailure(
			fmt.Sprintf("treated unit %s has no usable predictor values", prob.Treated), core.ErrFitFailure)
	}

	x1 := make([]float64, len(keptRows))
	for i, row := range keptRows {
		x1[i] = treatedVec[row]
	}

	// Donor predictor matrix, excluding donors with any missing entry.
	used := make([]core.UnitID, 0, len(prob.Donors))
	var excluded []core.UnitID
	var donorCols [][]float64
	for _, id := range prob.Donors {
		vec := f.builder.Vector(prob.Panel, prob.Spec, id)
		col := make([]float64, len(keptRows))
		complete := true
		for i, row := range keptRows {
			if math.IsNaN(vec[row]) {
				complete = false
				break
			}
			col[i] = vec[row]
		}
		if !complete {
			excluded = append(excluded, id)
			continue
		}
		used = append(used, id)
		donorCols = append(donorCols, col)
	}

	if len(excluded) > 0 {
		log.Printf("[WeightFitter] excluded %d of %d requested donors for missing predictor values: %v",
			len(excluded), len(prob.Donors), excluded)
	}
	if len(used) == 0 {
		return scm.FitResult{}, errors.FitFailure(
			fmt.Sprintf("no donors remain for treated unit %s after predictor-completeness exclusion", prob.Treated),
			core.ErrNoDonorsLeft)
	}

	k := len(keptRows)
	J := len(used)

	// X0 is k×J: one row per predictor, one column per usable donor.
	x0 := mat.NewDense(k, J, nil)
	for j, col := range donorCols {
		for i, v := range col {
			x0.Set(i, j, v)
		}
	}
	x1Vec := mat.NewVecDense(k, append([]float64(nil), x1...))

	// Scale each predictor row to unit spread across treated+donors so the
	// V search compares importance, not raw magnitude.
	normalizeRows(x0, x1Vec)

	preFrom, preTo := f.cfg.PreYears()
	treatedPre, donorsPre := f.outcomeWindows(prob.Panel, prob.Treated, used, preFrom, preTo)

	w, v, err := f.solve(ctx, x0, x1Vec, treatedPre, donorsPre)
	if err != nil {
		return scm.FitResult{}, errors.FitFailure(
			fmt.Sprintf("weight optimization failed for treated unit %s", prob.Treated), err)
	}

	postFrom, postTo := f.cfg.PostYears()
	treatedPost, donorsPost := f.outcomeWindows(prob.Panel, prob.Treated, used, postFrom, postTo)
	quality := metrics.Evaluate(
		treatedPre, metrics.Synthetic(donorsPre, w),
		treatedPost, metrics.Synthetic(donorsPost, w),
	)

	// A NaN post-RMSPE means the treated unit (or a weighted donor) has no
	// observed post-period outcomes; the MSPE ratio would be undefined and
	// must not be handed to inference as a rankable value.
	if math.IsNaN(quality.PostRMSPE) {
		return scm.FitResult{}, errors.FitFailure(
			fmt.Sprintf("no observed post-period outcomes for treated unit %s under the fitted weights", prob.Treated),
			core.ErrNoPostPeriodOverlap)
	}

	labels := make([]string, k)
	for i, row := range keptRows {
		labels[i] = prob.Spec.Entries[row].Label()
	}

	return scm.FitResult{
		TreatedUnit:      prob.Treated,
		RequestedDonors:  append([]core.UnitID(nil), prob.Donors...),
		DonorPoolUsed:    used,
		ExcludedDonors:   excluded,
		Weights:          scm.WeightVector(w),
		PredictorWeights: v,
		PredictorLabels:  labels,
		PrePeriodRMSPE:   quality.PreRMSPE,
		PostPeriodRMSPE:  quality.PostRMSPE,
		MSPERatio:        quality.MSPERatio,
		PerfectPreFit:    quality.PerfectPreFit,
	}, nil
}

// outcomeWindows extracts the treated outcome and per-donor outcome slices
// over an inclusive year window.
func (f *Fitter) outcomeWindows(p *panel.Panel, treated core.UnitID, donors []core.UnitID, from, to int) ([]float64, [][]float64) {
	lo, hi := p.WindowIndices(from, to)

	treatedSeries, _ := p.Outcome(treated)
	treatedVals := treatedSeries.Values[lo:hi]

	donorVals := make([][]float64, len(donors))
	for j, id := range donors {
		s, _ := p.Outcome(id)
		donorVals[j] = s.Values[lo:hi]
	}
	return treatedVals, donorVals
}

// solve runs the nested optimization: outer Nelder-Mead over softmax-encoded
// V, inner projected-gradient QP over the simplex. A solver failure is
// retried with a relaxed convergence tolerance, then falls back to equal
// predictor importance before giving up.
func (f *Fitter) solve(ctx context.Context, x0 *mat.Dense, x1 *mat.VecDense, treatedPre []float64, donorsPre [][]float64) ([]float64, []float64, error) {
	k, _ := x0.Dims()

	preRMSPE := func(w []float64) float64 {
		return metrics.RMSPE(treatedPre, metrics.Synthetic(donorsPre, w))
	}

	equalV := uniform(k)
	if k == 1 {
		w := f.innerSolve(x0, x1, equalV)
		return w, equalV, nil
	}

	objective := func(theta []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		v := softmax(theta)
		w := f.innerSolve(x0, x1, v)
		r := preRMSPE(w)
		if math.IsNaN(r) {
			return math.Inf(1)
		}
		return r
	}

	problem := optimize.Problem{Func: objective}
	init := make([]float64, k)

	settings := &optimize.Settings{
		MajorIterations: f.cfg.OuterIterations,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 30},
	}
	if deadline, ok := ctx.Deadline(); ok {
		settings.Runtime = time.Until(deadline)
	}

	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if err != nil || result == nil || !finiteVec(result.X) {
		// Conservative fallback: relaxed tolerance before surfacing failure.
		settings.Converger = &optimize.FunctionConverge{Absolute: 1e-6, Iterations: 10}
		result, err = optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	}

	var v []float64
	switch {
	case err == nil && result != nil && finiteVec(result.X):
		v = softmax(result.X)
	case ctx.Err() != nil:
		return nil, nil, ctx.Err()
	default:
		log.Printf("[WeightFitter] V search failed (%v), falling back to equal predictor importance", err)
		v = equalV
	}

	w := f.innerSolve(x0, x1, v)

	// Equal importance occasionally beats a stalled search; keep whichever
	// pre-period fit is better.
	wEqual := f.innerSolve(x0, x1, equalV)
	if preRMSPE(wEqual) < preRMSPE(w) {
		w, v = wEqual, equalV
	}

	return w, v, nil
}

// innerSolve minimizes (x1 − X0·w)ᵀ V (x1 − X0·w) over the simplex by
// projected gradient descent with a fixed step of 1/L, where L bounds the
// Lipschitz constant of the gradient via the Frobenius norm of X0ᵀ V X0.
func (f *Fitter) innerSolve(x0 *mat.Dense, x1 *mat.VecDense, v []float64) []float64 {
	k, J := x0.Dims()

	diag := mat.NewDiagDense(k, v)

	var g mat.Dense // G = X0ᵀ V X0, J×J
	g.Product(x0.T(), diag, x0)

	var vx1 mat.VecDense // V·x1
	vx1.MulVec(diag, x1)
	var b mat.VecDense // b = X0ᵀ V x1
	b.MulVec(x0.T(), &vx1)

	lip := 2 * mat.Norm(&g, 2)
	if lip < 1e-12 {
		return uniform(J)
	}
	step := 1 / lip

	w := uniform(J)
	grad := make([]float64, J)
	next := make([]float64, J)

	for iter := 0; iter < f.cfg.InnerIterations; iter++ {
		var gw mat.VecDense
		gw.MulVec(&g, mat.NewVecDense(J, w))
		for j := 0; j < J; j++ {
			grad[j] = 2 * (gw.AtVec(j) - b.AtVec(j))
		}

		for j := 0; j < J; j++ {
			next[j] = w[j] - step*grad[j]
		}
		projected := projectSimplex(next)

		delta := 0.0
		for j := 0; j < J; j++ {
			delta = math.Max(delta, math.Abs(projected[j]-w[j]))
		}
		copy(w, projected)
		if delta < 1e-12 {
			break
		}
	}

	return w
}

// projectSimplex is the Euclidean projection onto the probability simplex
// (Duchi et al. 2008).
func projectSimplex(v []float64) []float64 {
	n := len(v)
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	css := 0.0
	theta := 0.0
	for i := 0; i < n; i++ {
		css += u[i]
		t := (css - 1) / float64(i+1)
		if u[i]-t > 0 {
			theta = t
		}
	}

	out := make([]float64, n)
	for i, x := range v {
		out[i] = math.Max(x-theta, 0)
	}
	return out
}

// normalizeRows scales each predictor row of X0 (and the matching x1 entry)
// by the row's standard deviation across treated and donor values, so the
// outer V search weighs importance rather than raw units.
func normalizeRows(x0 *mat.Dense, x1 *mat.VecDense) {
	k, J := x0.Dims()
	for i := 0; i < k; i++ {
		n := float64(J + 1)
		sum := x1.AtVec(i)
		for j := 0; j < J; j++ {
			sum += x0.At(i, j)
		}
		mean := sum / n

		ss := (x1.AtVec(i) - mean) * (x1.AtVec(i) - mean)
		for j := 0; j < J; j++ {
			d := x0.At(i, j) - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / n)
		if sd < 1e-12 {
			continue
		}

		x1.SetVec(i, x1.AtVec(i)/sd)
		for j := 0; j < J; j++ {
			x0.Set(i, j, x0.At(i, j)/sd)
		}
	}
}

func softmax(theta []float64) []float64 {
	maxT := math.Inf(-1)
	for _, t := range theta {
		if t > maxT {
			maxT = t
		}
	}
	out := make([]float64, len(theta))
	sum := 0.0
	for i, t := range theta {
		out[i] = math.Exp(t - maxT)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}

func finiteVec(x []float64) bool {
	if x == nil {
		return false
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
