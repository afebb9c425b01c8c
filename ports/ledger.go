package ports

import (
	"context"
	"time"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
)

// RunLedger provides append-only persistence for completed analysis runs.
// Storing a run never mutates an earlier one; re-running an analysis
// produces a new run row under a fresh RunID.
type RunLedger interface {
	StoreRun(ctx context.Context, result scm.AnalysisResult) error
	GetRun(ctx context.Context, runID core.RunID) (*scm.AnalysisResult, error)
	ListRuns(ctx context.Context, filters RunFilters) ([]RunSummary, error)
}

// RunFilters for querying stored runs.
type RunFilters struct {
	TreatedUnit *core.UnitID
	Limit       int
	Offset      int
}

// RunSummary is the list-view projection of a stored run.
type RunSummary struct {
	RunID          core.RunID  `json:"run_id"`
	TreatedUnit    core.UnitID `json:"treated_unit"`
	PrePeriodRMSPE float64     `json:"pre_period_rmspe"`
	MSPERatio      float64     `json:"mspe_ratio"`
	PValue         *float64    `json:"p_value,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
