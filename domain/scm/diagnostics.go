package scm

import "github.com/Arg0xel/SCM---current-work/domain/core"

// Removal records one donor candidate dropped by a filter stage and why.
type Removal struct {
	UnitID core.UnitID `json:"unit_id"`
	Reason string      `json:"reason"`
}

// StageReport is the before/after accounting for one filter stage. Silent
// large-scale donor removal is the principal historical failure mode of this
// analysis, so every stage must be countable after the fact.
type StageReport struct {
	Stage   string    `json:"stage"`
	Before  int       `json:"before"`
	After   int       `json:"after"`
	Removed []Removal `json:"removed"`
}

// FilterReport aggregates the per-stage reports for one donor-pool
// construction.
type FilterReport struct {
	Stages    []StageReport `json:"stages"`
	Requested int           `json:"requested"`
	Surviving int           `json:"surviving"`
}

// Survivors returns the final donor count.
func (r FilterReport) Survivors() int { return r.Surviving }

// WorstStage returns the stage that removed the most candidates, so a caller
// hitting the minimum-pool-size stop knows which threshold to relax.
func (r FilterReport) WorstStage() (StageReport, bool) {
	var worst StageReport
	found := false
	for _, s := range r.Stages {
		if !found || len(s.Removed) > len(worst.Removed) {
			worst = s
			found = true
		}
	}
	return worst, found
}

// TotalRemoved sums removals across all stages.
func (r FilterReport) TotalRemoved() int {
	n := 0
	for _, s := range r.Stages {
		n += len(s.Removed)
	}
	return n
}
