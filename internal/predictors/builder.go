// Package predictors constructs the matching predictor set: averaged
// covariates plus windowed-outcome special predictors, and the per-unit
// predictor vectors derived from them.
package predictors

import (
	"fmt"
	"log"
	"math"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/panel"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/internal/errors"
)

// Builder derives the predictor spec from one immutable configuration.
type Builder struct {
	cfg config.AnalysisConfig
}

// NewBuilder creates a spec builder.
func NewBuilder(cfg config.AnalysisConfig) *Builder {
	return &Builder{cfg: cfg}
}

// BuildSpec produces the ordered predictor spec. For each anchor year y the
// special-predictor window is {y-1, y, y+1} intersected with the configured
// pre-treatment period; a short window rather than a single exact year, since
// single-year matching is overly sensitive to idiosyncratic year-to-year
// noise. Anchors whose intersection is empty are dropped; if every anchor
// drops, the configuration is invalid.
func (b *Builder) BuildSpec() (panel.PredictorSpec, error) {
	var spec panel.PredictorSpec

	for _, name := range b.cfg.Covariates {
		spec.Entries = append(spec.Entries, panel.SpecEntry{
			Kind:      panel.EntryAveragedCovariate,
			Covariate: name,
		})
	}

	anchorsKept := 0
	for _, anchor := range b.cfg.SpecialPredictorAnchorYears {
		window := intersectWindow(anchor, b.cfg.PrePeriodStart, b.cfg.PrePeriodEnd)
		if len(window) == 0 {
			log.Printf("[PredictorSpec] dropping anchor year %d: window outside pre-period %d-%d",
				anchor, b.cfg.PrePeriodStart, b.cfg.PrePeriodEnd)
			continue
		}
		spec.Entries = append(spec.Entries, panel.SpecEntry{
			Kind:       panel.EntrySpecialPredictor,
			AnchorYear: anchor,
			Window:     window,
		})
		anchorsKept++
	}

	if len(b.cfg.SpecialPredictorAnchorYears) > 0 && anchorsKept == 0 {
		return panel.PredictorSpec{}, errors.ConfigInvalid(fmt.Sprintf(
			"every special-predictor anchor year falls outside the pre-period %d-%d after windowing",
			b.cfg.PrePeriodStart, b.cfg.PrePeriodEnd))
	}
	if spec.Len() == 0 {
		return panel.PredictorSpec{}, errors.ConfigInvalid("predictor spec is empty")
	}

	return spec, nil
}

// intersectWindow returns {anchor-1, anchor, anchor+1} ∩ [preStart, preEnd].
func intersectWindow(anchor, preStart, preEnd int) []int {
	var window []int
	for y := anchor - 1; y <= anchor+1; y++ {
		if y >= preStart && y <= preEnd {
			window = append(window, y)
		}
	}
	return window
}

// Vector computes the predictor vector for one unit on the cleaned panel,
// one value per spec entry in spec order. Entries with no observed data in
// their window come out NaN; the fitter treats a NaN entry as grounds for
// excluding the donor, never for imputation.
func (b *Builder) Vector(p *panel.Panel, spec panel.PredictorSpec, id core.UnitID) []float64 {
	out := make([]float64, spec.Len())
	preStart, preEnd := b.cfg.PreYears()

	for i, entry := range spec.Entries {
		switch entry.Kind {
		case panel.EntryAveragedCovariate:
			series, ok := p.Predictor(entry.Covariate, id)
			if !ok {
				out[i] = math.NaN()
				continue
			}
			lo, hi := p.WindowIndices(preStart, preEnd)
			out[i] = panel.MeanObserved(series.Values[lo:hi])

		case panel.EntrySpecialPredictor:
			series, ok := p.Outcome(id)
			if !ok {
				out[i] = math.NaN()
				continue
			}
			window := make([]float64, 0, len(entry.Window))
			for _, y := range entry.Window {
				if v, onGrid := series.At(y); onGrid {
					window = append(window, v)
				}
			}
			out[i] = panel.MeanObserved(window)
		}
	}

	return out
}
