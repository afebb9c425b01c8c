package scm

import (
	"encoding/json"
	"math"

	"github.com/Arg0xel/SCM---current-work/domain/core"
)

// WeightVector is a convex combination over the donor pool: every entry is
// non-negative and the entries sum to one. One value per donor actually used
// in the fit, never per donor requested.
type WeightVector []float64

// Sum returns the total weight.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// IsSimplex reports whether the vector satisfies the simplex constraint
// within the given tolerance.
func (w WeightVector) IsSimplex(tol float64) bool {
	for _, v := range w {
		if v < -tol {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= tol
}

// DonorWeight pairs a donor identifier with its fitted weight.
type DonorWeight struct {
	UnitID core.UnitID `json:"unit_id"`
	Weight float64     `json:"weight"`
}

// FitResult is the output of one synthetic-control fit, main or placebo.
//
// DonorPoolUsed may be a strict subset of RequestedDonors: donors whose
// predictor vector contains any missing value are excluded before the solve.
// Weights is aligned with DonorPoolUsed and only DonorPoolUsed; consumers
// must never zip Weights against RequestedDonors.
type FitResult struct {
	TreatedUnit     core.UnitID   `json:"treated_unit"`
	RequestedDonors []core.UnitID `json:"requested_donors"`
	DonorPoolUsed   []core.UnitID `json:"donor_pool_used"`
	ExcludedDonors  []core.UnitID `json:"excluded_donors"`

	Weights          WeightVector `json:"weights"`
	PredictorWeights []float64    `json:"predictor_weights"` // V diagonal, spec-entry order
	PredictorLabels  []string     `json:"predictor_labels"`

	PrePeriodRMSPE  float64 `json:"pre_period_rmspe"`
	PostPeriodRMSPE float64 `json:"post_period_rmspe"`
	MSPERatio       float64 `json:"mspe_ratio"`
	PerfectPreFit   bool    `json:"perfect_pre_fit"`
}

// DonorWeights zips the used donor pool with the weight vector. The two are
// constructed together inside the fitter, so the lengths always match.
func (r FitResult) DonorWeights() []DonorWeight {
	out := make([]DonorWeight, len(r.DonorPoolUsed))
	for i, id := range r.DonorPoolUsed {
		out[i] = DonorWeight{UnitID: id, Weight: r.Weights[i]}
	}
	return out
}

// HadSilentExclusions reports whether the fit used fewer donors than were
// requested. Callers must surface this, not swallow it.
func (r FitResult) HadSilentExclusions() bool {
	return len(r.ExcludedDonors) > 0
}

// MarshalJSON encodes non-finite statistics as null; JSON has no infinity.
// The PerfectPreFit flag preserves the meaning of an infinite MSPE ratio.
func (r FitResult) MarshalJSON() ([]byte, error) {
	type alias FitResult
	return json.Marshal(struct {
		alias
		PrePeriodRMSPE  *float64 `json:"pre_period_rmspe"`
		PostPeriodRMSPE *float64 `json:"post_period_rmspe"`
		MSPERatio       *float64 `json:"mspe_ratio"`
	}{
		alias:           alias(r),
		PrePeriodRMSPE:  finitePtr(r.PrePeriodRMSPE),
		PostPeriodRMSPE: finitePtr(r.PostPeriodRMSPE),
		MSPERatio:       finitePtr(r.MSPERatio),
	})
}

// UnmarshalJSON restores the sentinels dropped by MarshalJSON: a null ratio
// on a perfect pre-fit becomes +Inf again, other nulls become NaN.
func (r *FitResult) UnmarshalJSON(data []byte) error {
	type alias FitResult
	aux := struct {
		*alias
		PrePeriodRMSPE  *float64 `json:"pre_period_rmspe"`
		PostPeriodRMSPE *float64 `json:"post_period_rmspe"`
		MSPERatio       *float64 `json:"mspe_ratio"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.PrePeriodRMSPE = floatOrNaN(aux.PrePeriodRMSPE)
	r.PostPeriodRMSPE = floatOrNaN(aux.PostPeriodRMSPE)
	if aux.MSPERatio == nil && r.PerfectPreFit {
		r.MSPERatio = math.Inf(1)
	} else {
		r.MSPERatio = floatOrNaN(aux.MSPERatio)
	}
	return nil
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// PlaceboDistribution collects the per-donor placebo fits used for
// permutation inference. Failed fits are counted, never imputed.
type PlaceboDistribution struct {
	Results     []FitResult `json:"results"`
	FailedFits  int         `json:"failed_fits"`
	FilteredOut int         `json:"filtered_out"`
	CapApplied  bool        `json:"cap_applied"`
}

// PValue is a Fisher-exact-style permutation p-value. It is undefined, not
// zero, when no placebo survives fitting and filtering.
type PValue struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
	Reason  string  `json:"reason,omitempty"`
	Method  string  `json:"method"`
}

// DefinedPValue builds a defined permutation p-value.
func DefinedPValue(value float64) PValue {
	return PValue{Value: value, Defined: true, Method: "permutation (placebo-in-space)"}
}

// UndefinedPValue builds an explicit undefined result with its reason.
func UndefinedPValue(reason string) PValue {
	return PValue{Defined: false, Reason: reason, Method: "permutation (placebo-in-space)"}
}

// AnalysisResult bundles everything one run produces for the reporting
// boundary: the main fit, the placebo distribution, inference, and the
// donor-pool diagnostics.
type AnalysisResult struct {
	RunID        core.RunID          `json:"run_id"`
	TreatedUnit  core.UnitID         `json:"treated_unit"`
	FilterReport FilterReport        `json:"filter_report"`
	Main         FitResult           `json:"main"`
	Placebos     PlaceboDistribution `json:"placebos"`
	PValue       PValue              `json:"p_value"`
	InTime       *FitResult          `json:"in_time,omitempty"`
	InTimeYear   int                 `json:"in_time_year,omitempty"`
}
