// Package testkit provides synthetic panel fixtures for tests.
package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/panel"
)

// UnitSpec describes one synthetic unit in sparse form. Years absent from
// the maps are missing observations.
type UnitSpec struct {
	ID         string
	Name       string
	Tags       []string
	Outcome    map[int]float64
	Predictors map[string]map[int]float64
}

// BuildPanel assembles a panel from sparse unit specs.
func BuildPanel(predictorNames []string, specs ...UnitSpec) (*panel.Panel, error) {
	units := make([]panel.Unit, len(specs))
	var rows []panel.Row

	for i, spec := range specs {
		id := core.UnitID(spec.ID)
		units[i] = panel.Unit{ID: id, Name: spec.Name, Tags: spec.Tags}

		years := make(map[int]bool)
		for y := range spec.Outcome {
			years[y] = true
		}
		for _, byYear := range spec.Predictors {
			for y := range byYear {
				years[y] = true
			}
		}

		for y := range years {
			row := panel.Row{UnitID: id, Year: y, Outcome: math.NaN(), Predictors: map[string]float64{}}
			if v, ok := spec.Outcome[y]; ok {
				row.Outcome = v
			}
			for name, byYear := range spec.Predictors {
				if v, ok := byYear[y]; ok {
					row.Predictors[name] = v
				}
			}
			rows = append(rows, row)
		}
	}

	return panel.Build(units, predictorNames, rows)
}

// ConstantSeries returns a year map with the same value over [from, to].
func ConstantSeries(from, to int, value float64) map[int]float64 {
	out := make(map[int]float64, to-from+1)
	for y := from; y <= to; y++ {
		out[y] = value
	}
	return out
}

// LinearSeries returns a year map following start + slope*(year-from).
func LinearSeries(from, to int, start, slope float64) map[int]float64 {
	out := make(map[int]float64, to-from+1)
	for y := from; y <= to; y++ {
		out[y] = start + slope*float64(y-from)
	}
	return out
}

// GenerateDeclinePanel builds a seeded synthetic panel of numDonors donors
// plus one treated unit, each following a noisy declining trajectory over
// [fromYear, toYear] with a single averaged covariate named "gdp". The
// treated unit drops faster after breakYear, mimicking a policy effect.
func GenerateDeclinePanel(seed int64, numDonors, fromYear, toYear, breakYear int) (*panel.Panel, core.UnitID) {
	rng := rand.New(rand.NewSource(seed))

	specs := make([]UnitSpec, 0, numDonors+1)

	treated := UnitSpec{
		ID:         "treated",
		Name:       "Treated Unit",
		Outcome:    map[int]float64{},
		Predictors: map[string]map[int]float64{"gdp": {}},
	}
	level := 5.5
	for y := fromYear; y <= toYear; y++ {
		drift := -0.05
		if y >= breakYear {
			drift = -0.18
		}
		level += drift + rng.NormFloat64()*0.02
		treated.Outcome[y] = level
		treated.Predictors["gdp"][y] = 800 + 12*float64(y-fromYear) + rng.NormFloat64()*10
	}
	specs = append(specs, treated)

	for i := 0; i < numDonors; i++ {
		spec := UnitSpec{
			ID:         fmt.Sprintf("donor_%02d", i+1),
			Name:       fmt.Sprintf("Donor %d", i+1),
			Outcome:    map[int]float64{},
			Predictors: map[string]map[int]float64{"gdp": {}},
		}
		level := 5.0 + rng.Float64()
		drift := -0.03 - rng.Float64()*0.05
		gdpBase := 500 + rng.Float64()*800
		for y := fromYear; y <= toYear; y++ {
			level += drift + rng.NormFloat64()*0.02
			spec.Outcome[y] = level
			spec.Predictors["gdp"][y] = gdpBase + 10*float64(y-fromYear) + rng.NormFloat64()*10
		}
		specs = append(specs, spec)
	}

	p, err := BuildPanel([]string{"gdp"}, specs...)
	if err != nil {
		panic(err) // generator inputs are fully controlled
	}
	return p, core.UnitID("treated")
}
