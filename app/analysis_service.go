// Package app wires the pipeline stages into complete analysis runs. The
// service owns sequencing and persistence; all statistical work lives in the
// stage packages it calls.
package app

import (
	"context"
	"log"
	"time"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
	"github.com/Arg0xel/SCM---current-work/internal/config"
	"github.com/Arg0xel/SCM---current-work/internal/donorpool"
	"github.com/Arg0xel/SCM---current-work/internal/interpolate"
	"github.com/Arg0xel/SCM---current-work/internal/placebo"
	"github.com/Arg0xel/SCM---current-work/internal/predictors"
	"github.com/Arg0xel/SCM---current-work/internal/weights"
	"github.com/Arg0xel/SCM---current-work/ports"
)

// AnalysisService runs the synthetic-control pipeline end to end: panel
// loading, gap interpolation, donor-pool construction, the main fit, placebo
// inference, and the optional in-time robustness check.
type AnalysisService struct {
	cfg    config.AnalysisConfig
	source ports.PanelSource
	ledger ports.RunLedger // nil disables persistence
}

// NewAnalysisService creates the service. A nil ledger is valid for
// fire-and-forget runs.
func NewAnalysisService(cfg config.AnalysisConfig, source ports.PanelSource, ledger ports.RunLedger) *AnalysisService {
	return &AnalysisService{cfg: cfg, source: source, ledger: ledger}
}

// Run executes one full analysis under the service's configuration.
// Configuration and insufficient-data failures are fatal; individual placebo
// failures are not.
func (s *AnalysisService) Run(ctx context.Context) (*scm.AnalysisResult, error) {
	started := time.Now()

	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	raw, err := s.source.LoadPanel(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("[AnalysisService] loaded panel: %d units, %d years", len(raw.Units()), len(raw.Years()))

	cleaned := interpolate.CleanPanel(raw, s.cfg.MaxGapYears)

	filter := donorpool.New(s.cfg)
	if err := filter.CheckTreatedUnit(cleaned); err != nil {
		return nil, err
	}
	donors, report, err := filter.SelectDonors(cleaned)
	if err != nil {
		return nil, err
	}

	spec, err := predictors.NewBuilder(s.cfg).BuildSpec()
	if err != nil {
		return nil, err
	}

	fitter := weights.NewFitter(s.cfg)
	main, err := fitter.Fit(ctx, weights.Problem{
		Treated: s.cfg.TreatedUnit,
		Donors:  donors,
		Spec:    spec,
		Panel:   cleaned,
	})
	if err != nil {
		return nil, err
	}
	if main.HadSilentExclusions() {
		log.Printf("[AnalysisService] main fit used %d of %d donors; excluded: %v",
			len(main.DonorPoolUsed), len(main.RequestedDonors), main.ExcludedDonors)
	}
	log.Printf("[AnalysisService] main fit: pre-RMSPE=%.4f post-RMSPE=%.4f ratio=%.4f",
		main.PrePeriodRMSPE, main.PostPeriodRMSPE, main.MSPERatio)

	engine := placebo.NewEngine(s.cfg)
	dist, pValue := engine.Run(ctx, cleaned, spec, donors, main)
	inTime := engine.InTime(ctx, cleaned, donors, s.cfg.TreatedUnit)

	result := &scm.AnalysisResult{
		RunID:        core.NewRunID(),
		TreatedUnit:  s.cfg.TreatedUnit,
		FilterReport: report,
		Main:         main,
		Placebos:     dist,
		PValue:       pValue,
		InTime:       inTime,
	}
	if inTime != nil {
		result.InTimeYear = s.cfg.InTimePlaceboYear
	}

	if s.ledger != nil {
		if err := s.ledger.StoreRun(ctx, *result); err != nil {
			// The analysis itself succeeded; a ledger outage must not
			// discard it.
			log.Printf("[AnalysisService] failed to persist run %s: %v", result.RunID, err)
		}
	}

	log.Printf("[AnalysisService] run %s completed in %s", result.RunID, time.Since(started).Round(time.Millisecond))
	return result, nil
}
