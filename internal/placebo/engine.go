// Package placebo implements permutation-style inference for synthetic
// control fits: each donor is refit as a pseudo-treated unit to build a null
// reference distribution of MSPE ratios, from which a Fisher-exact-style
// p-value is computed.
package placebo

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/panel"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/internal/predictors"
	"github.com/Arg0xel/SCM---current-work/internal/weights"
)

// Engine runs the placebo-in-space procedure around a completed main fit.
type Engine struct {
	cfg    config.AnalysisConfig
	fitter *weights.Fitter
}

// NewEngine creates an engine sharing the main fit's configuration.
func NewEngine(cfg config.AnalysisConfig) *Engine {
	return &Engine{cfg: cfg, fitter: weights.NewFitter(cfg)}
}

// Run refits once per donor, treating that donor as pseudo-treated with the
// true treated unit returned to its donor pool. Placebo runs are independent
// and execute as a bounded parallel map over the immutable panel; each
// iteration writes only its own slot. Failed fits are counted and dropped,
// never absorbed into the distribution.
func (e *Engine) Run(ctx context.Context, p *panel.Panel, spec panel.PredictorSpec, donors []core.UnitID, main scm.FitResult) (scm.PlaceboDistribution, scm.PValue) {
	pool, capApplied := e.capSample(donors)

	type slot struct {
		result scm.FitResult
		err    error
	}
	slots := make([]slot, len(pool))

	sem := semaphore.NewWeighted(int64(e.cfg.PlaceboConcurrency))
	var wg sync.WaitGroup

	for i, pseudo := range pool {
		if err := sem.Acquire(ctx, 1); err != nil {
			slots[i].err = err
			continue
		}
		wg.Add(1)

		go func(i int, pseudo core.UnitID) {
			defer sem.Release(1)
			defer wg.Done()

			prob := weights.Problem{
				Treated: pseudo,
				Donors:  e.placeboPool(pool, pseudo, main.TreatedUnit),
				Spec:    spec,
				Panel:   p,
			}
			slots[i].result, slots[i].err = e.fitter.Fit(ctx, prob)
		}(i, pseudo)
	}
	wg.Wait()

	dist := scm.PlaceboDistribution{CapApplied: capApplied}
	for i, s := range slots {
		switch {
		case s.err != nil:
			log.Printf("[PlaceboEngine] placebo fit failed for %s: %v", pool[i], s.err)
			dist.FailedFits++
		case math.IsNaN(s.result.PrePeriodRMSPE):
			log.Printf("[PlaceboEngine] placebo fit for %s produced no usable pre-period overlap, dropping", pool[i])
			dist.FailedFits++
		case math.IsNaN(s.result.MSPERatio):
			log.Printf("[PlaceboEngine] placebo fit for %s produced an undefined MSPE ratio, dropping", pool[i])
			dist.FailedFits++
		default:
			dist.Results = append(dist.Results, s.result)
		}
	}

	if len(dist.Results) == 0 {
		log.Printf("[PlaceboEngine] all %d placebo fits failed", len(pool))
		return dist, scm.UndefinedPValue("all placebo fits failed")
	}

	kept := e.applyPrefitFilter(dist.Results, main)
	dist.FilteredOut = len(dist.Results) - len(kept)
	if dist.FilteredOut > 0 {
		log.Printf("[PlaceboEngine] prefit filter (%s, %.3g) removed %d of %d placebos",
			e.cfg.PrefitFilterMode, e.cfg.PrefitFilterParam, dist.FilteredOut, len(dist.Results))
	}
	if len(kept) == 0 {
		return dist, scm.UndefinedPValue("all placebos removed by the pre-fit quality filter")
	}

	extreme := 0
	for _, r := range kept {
		if r.MSPERatio >= main.MSPERatio {
			extreme++
		}
	}
	pValue := float64(extreme) / float64(len(kept))

	log.Printf("[PlaceboEngine] %d placebos in distribution (%d failed, %d filtered), p=%.4f",
		len(kept), dist.FailedFits, dist.FilteredOut, pValue)

	return dist, scm.DefinedPValue(pValue)
}

// InTime runs the qualitative in-time robustness check: the full fit is
// repeated with a fictitious treatment year strictly inside the true
// pre-treatment period, with the fictitious post-period confined to the true
// pre-period so no real treatment effect can contaminate it. There is no
// p-value. Returns nil (skipped, not failed) when the fictitious windows
// cannot be formed.
func (e *Engine) InTime(ctx context.Context, p *panel.Panel, donors []core.UnitID, treated core.UnitID) *scm.FitResult {
	year := e.cfg.InTimePlaceboYear
	if year == 0 {
		return nil
	}
	if year <= e.cfg.PrePeriodStart || year > e.cfg.PrePeriodEnd {
		log.Printf("[PlaceboEngine] in-time year %d leaves an empty fictitious pre-period, skipping", year)
		return nil
	}

	fictitious := e.cfg
	fictitious.TreatmentYear = year
	fictitious.PrePeriodEnd = year - 1
	fictitious.PostPeriodEnd = e.cfg.PrePeriodEnd
	fictitious.InTimePlaceboYear = 0

	spec, err := predictors.NewBuilder(fictitious).BuildSpec()
	if err != nil {
		log.Printf("[PlaceboEngine] in-time placebo skipped: %v", err)
		return nil
	}

	if lo, hi := p.WindowIndices(fictitious.PrePeriodStart, fictitious.PrePeriodEnd); lo >= hi {
		log.Printf("[PlaceboEngine] in-time placebo skipped: no panel years in [%d, %d]",
			fictitious.PrePeriodStart, fictitious.PrePeriodEnd)
		return nil
	}

	result, err := weights.NewFitter(fictitious).Fit(ctx, weights.Problem{
		Treated: treated,
		Donors:  donors,
		Spec:    spec,
		Panel:   p,
	})
	if err != nil {
		log.Printf("[PlaceboEngine] in-time placebo fit failed: %v", err)
		return nil
	}

	log.Printf("[PlaceboEngine] in-time placebo at %d: pre-RMSPE=%.4f post-RMSPE=%.4f",
		year, result.PrePeriodRMSPE, result.PostPeriodRMSPE)
	return &result
}

// capSample bounds the number of placebo refits. Truncation is deterministic
// over the lexicographically sorted pool so repeated runs see the same
// sample.
func (e *Engine) capSample(donors []core.UnitID) ([]core.UnitID, bool) {
	pool := append([]core.UnitID(nil), donors...)
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })

	if e.cfg.PlaceboSampleCap <= 0 || len(pool) <= e.cfg.PlaceboSampleCap {
		return pool, false
	}
	log.Printf("[PlaceboEngine] sample cap %d applied to %d donors", e.cfg.PlaceboSampleCap, len(pool))
	return pool[:e.cfg.PlaceboSampleCap], true
}

// placeboPool builds the donor pool for one pseudo-treated run: every other
// pooled donor plus the true treated unit, which is a legitimate donor once
// the pseudo-treated donor takes its place.
func (e *Engine) placeboPool(pool []core.UnitID, pseudo, trueTreated core.UnitID) []core.UnitID {
	out := make([]core.UnitID, 0, len(pool))
	for _, id := range pool {
		if id != pseudo {
			out = append(out, id)
		}
	}
	out = append(out, trueTreated)
	return out
}

// applyPrefitFilter screens placebos on pre-period fit quality before the
// p-value. In quantile mode the threshold is computed over the placebo-only
// pre-RMSPE distribution; the treated unit's own pre-RMSPE never enters the
// threshold computation.
func (e *Engine) applyPrefitFilter(results []scm.FitResult, main scm.FitResult) []scm.FitResult {
	switch e.cfg.PrefitFilterMode {
	case config.PrefitFilterQuantile:
		values := make([]float64, len(results))
		for i, r := range results {
			values[i] = r.PrePeriodRMSPE
		}
		threshold, err := QuantileThreshold(values, e.cfg.PrefitFilterParam)
		if err != nil {
			log.Printf("[PlaceboEngine] quantile threshold unavailable (%v), keeping all placebos", err)
			return results
		}
		return keepBelow(results, threshold)

	case config.PrefitFilterRelative:
		return keepBelow(results, e.cfg.PrefitFilterParam*main.PrePeriodRMSPE)

	default:
		return results
	}
}

// QuantileThreshold computes the pre-RMSPE cutoff at quantile q over the
// placebo-only distribution.
func QuantileThreshold(placeboPreRMSPEs []float64, q float64) (float64, error) {
	if len(placeboPreRMSPEs) == 0 {
		return 0, fmt.Errorf("empty placebo distribution")
	}
	return stats.Percentile(placeboPreRMSPEs, q*100)
}

func keepBelow(results []scm.FitResult, threshold float64) []scm.FitResult {
	kept := make([]scm.FitResult, 0, len(results))
	for _, r := range results {
		if r.PrePeriodRMSPE <= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}
