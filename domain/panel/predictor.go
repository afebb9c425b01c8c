package panel

import "fmt"

// SpecEntryKind distinguishes the two matching-variable shapes.
type SpecEntryKind string

const (
	// EntryAveragedCovariate is one scalar per unit: the mean of a raw
	// covariate over the pre-treatment window.
	EntryAveragedCovariate SpecEntryKind = "averaged_covariate"

	// EntrySpecialPredictor is one scalar per unit: the mean of the outcome
	// over a short window anchored at a pre-treatment year.
	EntrySpecialPredictor SpecEntryKind = "special_predictor"
)

// SpecEntry is a single matching variable in the predictor spec.
type SpecEntry struct {
	Kind       SpecEntryKind
	Covariate  string // set for averaged covariates
	AnchorYear int    // set for special predictors
	Window     []int  // resolved window years, set for special predictors
}

// Label names the entry for diagnostics and V-weight reporting.
func (e SpecEntry) Label() string {
	switch e.Kind {
	case EntryAveragedCovariate:
		return e.Covariate
	case EntrySpecialPredictor:
		if len(e.Window) == 0 {
			return fmt.Sprintf("outcome@%d", e.AnchorYear)
		}
		return fmt.Sprintf("outcome@%d[%d-%d]", e.AnchorYear, e.Window[0], e.Window[len(e.Window)-1])
	default:
		return string(e.Kind)
	}
}

// PredictorSpec is the ordered list of matching variables used to fit
// synthetic weights. Entry order fixes the row order of predictor vectors.
type PredictorSpec struct {
	Entries []SpecEntry
}

// Labels returns the entry labels in spec order.
func (s PredictorSpec) Labels() []string {
	labels := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		labels[i] = e.Label()
	}
	return labels
}

// Len returns the number of matching variables.
func (s PredictorSpec) Len() int { return len(s.Entries) }
