// Package donorpool constructs the donor pool: the set of comparison units
// that survive the data-quality and eligibility filters. Every stage reports
// exactly what it removed and why; silent donor shrinkage is the failure
// mode this package exists to prevent.
package donorpool

import (
	"fmt"
	"log"
	"sort"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/panel"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/internal/errors"
)

// Filter applies the configured donor-pool stages to an interpolated panel.
type Filter struct {
	cfg config.AnalysisConfig
}

// New creates a donor-pool filter for one immutable configuration.
func New(cfg config.AnalysisConfig) *Filter {
	return &Filter{cfg: cfg}
}

// CheckTreatedUnit verifies the treated unit itself clears the outcome
// coverage threshold over the pre-treatment window. Without that there is no
// trajectory to match and the run cannot proceed.
func (f *Filter) CheckTreatedUnit(p *panel.Panel) error {
	series, ok := p.Outcome(f.cfg.TreatedUnit)
	if !ok {
		return errors.InsufficientData(fmt.Sprintf("treated unit %s not present in panel", f.cfg.TreatedUnit))
	}
	start, end := p.WindowIndices(f.cfg.PreYears())
	cov := panel.Coverage(series.Values[start:end])
	if cov < f.cfg.OutcomeCoverageThreshold {
		return errors.InsufficientData(fmt.Sprintf(
			"treated unit %s outcome coverage %.2f below threshold %.2f over pre-period %d-%d",
			f.cfg.TreatedUnit, cov, f.cfg.OutcomeCoverageThreshold, f.cfg.PrePeriodStart, f.cfg.PrePeriodEnd))
	}
	return nil
}

// SelectDonors runs the full stage sequence and returns the surviving donor
// identifiers (sorted) together with the per-stage report. If the survivors
// fall below the configured minimum, the error carries the current count,
// the required count, and the stage that removed the most candidates.
func (f *Filter) SelectDonors(p *panel.Panel) ([]core.UnitID, scm.FilterReport, error) {
	candidates := make([]core.UnitID, 0, len(p.Units()))
	for _, u := range p.Units() {
		if u.ID != f.cfg.TreatedUnit {
			candidates = append(candidates, u.ID)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	report := scm.FilterReport{Requested: len(candidates)}

	stages := []struct {
		name string
		keep func(id core.UnitID) (bool, string)
	}{
		{"include_list", f.keepIncluded},
		{"exclude_list", f.keepNotExcluded},
		{"exclude_tags", func(id core.UnitID) (bool, string) { return f.keepUntagged(p, id) }},
		{"negligible_size", f.keepNonNegligible},
		{"outcome_coverage", func(id core.UnitID) (bool, string) { return f.keepOutcomeCovered(p, id) }},
		{"predictor_coverage", func(id core.UnitID) (bool, string) { return f.keepPredictorCovered(p, id) }},
	}

	for _, stage := range stages {
		before := len(candidates)
		kept := candidates[:0]
		var removed []scm.Removal
		for _, id := range candidates {
			ok, reason := stage.keep(id)
			if ok {
				kept = append(kept, id)
			} else {
				removed = append(removed, scm.Removal{UnitID: id, Reason: reason})
			}
		}
		candidates = kept

		report.Stages = append(report.Stages, scm.StageReport{
			Stage:   stage.name,
			Before:  before,
			After:   len(candidates),
			Removed: removed,
		})
		log.Printf("[CoverageFilter] stage=%s before=%d after=%d removed=%d",
			stage.name, before, len(candidates), len(removed))
		for _, r := range removed {
			log.Printf("[CoverageFilter]   removed %s: %s", r.UnitID, r.Reason)
		}
	}

	report.Surviving = len(candidates)

	if len(candidates) < f.cfg.MinDonorPoolSize {
		worst, _ := report.WorstStage()
		return nil, report, errors.InsufficientData(fmt.Sprintf(
			"donor pool has %d units, need at least %d; stage %q removed the most (%d) - relax its threshold and re-run",
			len(candidates), f.cfg.MinDonorPoolSize, worst.Stage, len(worst.Removed)))
	}

	return candidates, report, nil
}

func (f *Filter) keepIncluded(id core.UnitID) (bool, string) {
	if len(f.cfg.IncludeUnits) == 0 {
		return true, ""
	}
	for _, inc := range f.cfg.IncludeUnits {
		if inc == id {
			return true, ""
		}
	}
	return false, "not on the include list"
}

func (f *Filter) keepNotExcluded(id core.UnitID) (bool, string) {
	for _, exc := range f.cfg.ExcludeUnits {
		if exc == id {
			return false, "on the exclude list"
		}
	}
	return true, ""
}

func (f *Filter) keepUntagged(p *panel.Panel, id core.UnitID) (bool, string) {
	unit, ok := p.Unit(id)
	if !ok {
		return false, "unit missing from panel"
	}
	for _, tag := range f.cfg.ExcludeTags {
		if unit.HasTag(tag) {
			return false, fmt.Sprintf("carries excluded tag %q", tag)
		}
	}
	return true, ""
}

func (f *Filter) keepNonNegligible(id core.UnitID) (bool, string) {
	for _, neg := range f.cfg.NegligibleUnits {
		if neg == id {
			return false, "in the negligible-size exclusion set"
		}
	}
	return true, ""
}

func (f *Filter) keepOutcomeCovered(p *panel.Panel, id core.UnitID) (bool, string) {
	series, ok := p.Outcome(id)
	if !ok {
		return false, "no outcome series"
	}
	start, end := p.WindowIndices(f.cfg.PreYears())
	cov := panel.Coverage(series.Values[start:end])
	if cov < f.cfg.OutcomeCoverageThreshold {
		return false, fmt.Sprintf("outcome coverage %.2f below threshold %.2f", cov, f.cfg.OutcomeCoverageThreshold)
	}
	return true, ""
}

// keepPredictorCovered requires at least MinPredictorsPassing covariates to
// individually clear the (more lenient) predictor threshold, and rejects any
// unit whose every covariate is entirely missing across the window. The
// outcome is the binding constraint; predictor completeness can be partially
// relaxed because the optimizer tolerates some thin dimensions as long as
// enough remain informative.
func (f *Filter) keepPredictorCovered(p *panel.Panel, id core.UnitID) (bool, string) {
	if len(f.cfg.Covariates) == 0 {
		return true, ""
	}

	start, end := p.WindowIndices(f.cfg.PreYears())
	passing := 0
	anyObserved := false
	for _, name := range f.cfg.Covariates {
		series, ok := p.Predictor(name, id)
		if !ok {
			continue
		}
		cov := panel.Coverage(series.Values[start:end])
		if cov > 0 {
			anyObserved = true
		}
		if cov >= f.cfg.PredictorCoverageThreshold {
			passing++
		}
	}

	if !anyObserved {
		return false, "every predictor entirely missing across the pre-period"
	}
	if passing < f.cfg.MinPredictorsPassing {
		return false, fmt.Sprintf("only %d of %d predictors clear coverage %.2f, need %d",
			passing, len(f.cfg.Covariates), f.cfg.PredictorCoverageThreshold, f.cfg.MinPredictorsPassing)
	}
	return true, ""
}
