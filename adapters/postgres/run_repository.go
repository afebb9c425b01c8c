// Package postgres persists completed analysis runs. The ledger is
// append-only: runs are inserted once and never updated.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/scm"
	"github.com/Arg0xel/SCM---current-work/internal/errors"
	"github.com/Arg0xel/SCM---current-work/ports"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS scm_runs (
    id               TEXT PRIMARY KEY,
    treated_unit     TEXT NOT NULL,
    pre_period_rmspe DOUBLE PRECISION NOT NULL,
    post_period_rmspe DOUBLE PRECISION NOT NULL,
    mspe_ratio       DOUBLE PRECISION,
    p_value          DOUBLE PRECISION,
    p_value_reason   TEXT,
    result           JSONB NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_scm_runs_treated_unit ON scm_runs (treated_unit, created_at DESC);
`

// RunRepository implements ports.RunLedger on PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a PostgreSQL run ledger.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, runsSchema); err != nil {
		return errors.DatabaseError("failed to create run ledger schema", err)
	}
	return nil
}

// StoreRun inserts one completed run. The full result is stored as JSON next
// to the queryable summary columns.
func (r *RunRepository) StoreRun(ctx context.Context, result scm.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.DatabaseError("failed to encode run result", err)
	}

	var pValue *float64
	var pReason *string
	if result.PValue.Defined {
		pValue = &result.PValue.Value
	} else if result.PValue.Reason != "" {
		pReason = &result.PValue.Reason
	}

	// JSON has no infinity; a perfect-pre-fit ratio is stored as NULL and
	// recovered from the perfect_pre_fit flag inside the payload.
	var ratio *float64
	if !math.IsInf(result.Main.MSPERatio, 0) && !math.IsNaN(result.Main.MSPERatio) {
		ratio = &result.Main.MSPERatio
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scm_runs (id, treated_unit, pre_period_rmspe, post_period_rmspe, mspe_ratio, p_value, p_value_reason, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, result.RunID.String(), result.TreatedUnit.String(),
		result.Main.PrePeriodRMSPE, result.Main.PostPeriodRMSPE,
		ratio, pValue, pReason, payload, time.Now().UTC())
	if err != nil {
		return errors.DatabaseError("failed to store run", err)
	}
	return nil
}

// GetRun loads one stored run by identifier.
func (r *RunRepository) GetRun(ctx context.Context, runID core.RunID) (*scm.AnalysisResult, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `
		SELECT result FROM scm_runs WHERE id = $1
	`, runID.String())
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run " + runID.String())
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load run", err)
	}

	var result scm.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, errors.DatabaseError("failed to decode stored run", err)
	}
	return &result, nil
}

// ListRuns returns summaries of stored runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	query := `
		SELECT id, treated_unit, pre_period_rmspe, mspe_ratio, p_value, created_at
		FROM scm_runs
	`
	args := []interface{}{}
	if filters.TreatedUnit != nil {
		query += ` WHERE treated_unit = $1`
		args = append(args, filters.TreatedUnit.String())
	}
	query += ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	defer rows.Close()

	var summaries []ports.RunSummary
	for rows.Next() {
		var s ports.RunSummary
		var id, treated string
		var ratio sql.NullFloat64
		var pValue sql.NullFloat64
		if err := rows.Scan(&id, &treated, &s.PrePeriodRMSPE, &ratio, &pValue, &s.CreatedAt); err != nil {
			return nil, errors.DatabaseError("failed to scan run summary", err)
		}
		s.RunID = core.RunID(id)
		s.TreatedUnit = core.UnitID(treated)
		if ratio.Valid {
			s.MSPERatio = ratio.Float64
		} else {
			s.MSPERatio = math.Inf(1)
		}
		if pValue.Valid {
			v := pValue.Float64
			s.PValue = &v
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return summaries, nil
}
