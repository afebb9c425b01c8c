package panel

import (
	"fmt"
	"math"
	"sort"

	"github.com/Arg0xel/SCM---current-work/domain/core"
)

// Unit is a single entity in the panel: the treated unit or a donor candidate.
// Tags carry category groupings (region, income tier) used only for
// filtering and reporting, never inside the optimization.
type Unit struct {
	ID   core.UnitID
	Name string
	Tags []string
}

// HasTag reports whether the unit carries the given category tag.
func (u Unit) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Series is a year-indexed view of one variable for one unit.
// Values and Years always have equal length; NaN marks a missing observation.
type Series struct {
	Years  []int
	Values []float64
}

// At returns the value at the given year and whether the year is on the grid.
func (s Series) At(year int) (float64, bool) {
	idx := sort.SearchInts(s.Years, year)
	if idx < len(s.Years) && s.Years[idx] == year {
		return s.Values[idx], true
	}
	return math.NaN(), false
}

// Row is one panel observation in long format.
type Row struct {
	UnitID     core.UnitID
	Year       int
	Outcome    float64
	Predictors map[string]float64
}

// Panel holds the outcome and predictor series for every unit on a shared,
// sorted year grid. Units absent in a given year carry NaN. The panel is
// immutable after construction; transformations return a new panel.
type Panel struct {
	years          []int
	units          []Unit
	unitIndex      map[core.UnitID]int
	predictorNames []string
	outcome        map[core.UnitID][]float64
	predictors     map[string]map[core.UnitID][]float64
}

// Build assembles a panel from long-format rows. Every row's year must be
// unique per unit; values for grid years a unit never reports are NaN.
func Build(units []Unit, predictorNames []string, rows []Row) (*Panel, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("panel requires at least one unit")
	}

	unitIndex := make(map[core.UnitID]int, len(units))
	for i, u := range units {
		if _, dup := unitIndex[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit %s", u.ID)
		}
		unitIndex[u.ID] = i
	}

	// Collect the global year grid from all rows.
	yearSet := make(map[int]struct{})
	for _, r := range rows {
		if _, ok := unitIndex[r.UnitID]; !ok {
			return nil, fmt.Errorf("%w: row references %s", core.ErrUnitNotFound, r.UnitID)
		}
		yearSet[r.Year] = struct{}{}
	}
	if len(yearSet) == 0 {
		return nil, fmt.Errorf("panel requires at least one observation")
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)
	yearIdx := make(map[int]int, len(years))
	for i, y := range years {
		yearIdx[y] = i
	}

	p := &Panel{
		years:          years,
		units:          units,
		unitIndex:      unitIndex,
		predictorNames: append([]string(nil), predictorNames...),
		outcome:        make(map[core.UnitID][]float64, len(units)),
		predictors:     make(map[string]map[core.UnitID][]float64, len(predictorNames)),
	}
	for _, u := range units {
		p.outcome[u.ID] = nanSlice(len(years))
	}
	for _, name := range predictorNames {
		byUnit := make(map[core.UnitID][]float64, len(units))
		for _, u := range units {
			byUnit[u.ID] = nanSlice(len(years))
		}
		p.predictors[name] = byUnit
	}

	seen := make(map[core.UnitID]map[int]bool, len(units))
	for _, r := range rows {
		if seen[r.UnitID] == nil {
			seen[r.UnitID] = make(map[int]bool)
		}
		if seen[r.UnitID][r.Year] {
			return nil, fmt.Errorf("%w: unit %s year %d", core.ErrDuplicateYear, r.UnitID, r.Year)
		}
		seen[r.UnitID][r.Year] = true

		idx := yearIdx[r.Year]
		p.outcome[r.UnitID][idx] = r.Outcome
		for name, v := range r.Predictors {
			byUnit, ok := p.predictors[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", core.ErrUnknownVariable, name)
			}
			byUnit[r.UnitID][idx] = v
		}
	}

	return p, nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Years returns the shared year grid.
func (p *Panel) Years() []int { return p.years }

// Units returns all units in declaration order.
func (p *Panel) Units() []Unit { return p.units }

// Unit looks up a unit by identifier.
func (p *Panel) Unit(id core.UnitID) (Unit, bool) {
	idx, ok := p.unitIndex[id]
	if !ok {
		return Unit{}, false
	}
	return p.units[idx], true
}

// PredictorNames returns the ordered predictor variable names.
func (p *Panel) PredictorNames() []string { return p.predictorNames }

// Outcome returns the outcome series for a unit.
func (p *Panel) Outcome(id core.UnitID) (Series, bool) {
	vals, ok := p.outcome[id]
	if !ok {
		return Series{}, false
	}
	return Series{Years: p.years, Values: vals}, true
}

// Predictor returns the named predictor series for a unit.
func (p *Panel) Predictor(name string, id core.UnitID) (Series, bool) {
	byUnit, ok := p.predictors[name]
	if !ok {
		return Series{}, false
	}
	vals, ok := byUnit[id]
	if !ok {
		return Series{}, false
	}
	return Series{Years: p.years, Values: vals}, true
}

// Apply returns a new panel with fn applied to every series (the outcome and
// each predictor, per unit). fn receives a copy and must return a slice of
// the same length. This is how interpolation produces a cleaned panel
// without mutating the source.
func (p *Panel) Apply(fn func(values []float64) []float64) *Panel {
	out := &Panel{
		years:          p.years,
		units:          p.units,
		unitIndex:      p.unitIndex,
		predictorNames: p.predictorNames,
		outcome:        make(map[core.UnitID][]float64, len(p.outcome)),
		predictors:     make(map[string]map[core.UnitID][]float64, len(p.predictors)),
	}
	for id, vals := range p.outcome {
		out.outcome[id] = fn(append([]float64(nil), vals...))
	}
	for name, byUnit := range p.predictors {
		outBy := make(map[core.UnitID][]float64, len(byUnit))
		for id, vals := range byUnit {
			outBy[id] = fn(append([]float64(nil), vals...))
		}
		out.predictors[name] = outBy
	}
	return out
}

// WindowIndices returns the half-open index range [start, end) of grid years
// within [from, to] inclusive.
func (p *Panel) WindowIndices(from, to int) (int, int) {
	start := sort.SearchInts(p.years, from)
	end := sort.SearchInts(p.years, to+1)
	return start, end
}

// Coverage returns the observed (non-NaN) fraction of a value window.
// An empty window has zero coverage.
func Coverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	observed := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			observed++
		}
	}
	return float64(observed) / float64(len(values))
}

// MeanObserved returns the mean of non-NaN values, or NaN when nothing
// is observed.
func MeanObserved(values []float64) float64 {
	sum := 0.0
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
