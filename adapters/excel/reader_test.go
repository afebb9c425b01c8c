package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Arg0xel/SCM---current-work/domain/core"
)

const sampleCSV = `unit_id,unit_name,year,outcome,gdp,urbanization,tags
china,China,1970,5.8,800,0.17,treated
china,China,1971,5.4,850,0.17,treated
india,India,1970,5.6,600,0.20,
india,India,1971,,620,0.21,
brazil,Brazil,1970,5.0,1500,,large;latam
brazil,Brazil,1971,4.8,NA,0.56,large;latam
`

func writeTempCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestLoadPanel_CSV(t *testing.T) {
	reader := NewPanelReader(writeTempCSV(t), DefaultColumns())

	p, err := reader.LoadPanel(context.Background())
	require.NoError(t, err)

	assert.Len(t, p.Units(), 3)
	assert.Equal(t, []int{1970, 1971}, p.Years())
	assert.ElementsMatch(t, []string{"gdp", "urbanization"}, p.PredictorNames())

	outcome, ok := p.Outcome("china")
	require.True(t, ok)
	assert.InDelta(t, 5.8, outcome.Values[0], 1e-12)

	// Empty outcome cell is missing, not zero.
	outcome, ok = p.Outcome("india")
	require.True(t, ok)
	assert.True(t, math.IsNaN(outcome.Values[1]))

	// "NA" predictor cell is missing too.
	gdp, ok := p.Predictor("gdp", "brazil")
	require.True(t, ok)
	assert.True(t, math.IsNaN(gdp.Values[1]))
}

func TestLoadPanel_TagsParsed(t *testing.T) {
	reader := NewPanelReader(writeTempCSV(t), DefaultColumns())

	p, err := reader.LoadPanel(context.Background())
	require.NoError(t, err)

	unit, ok := p.Unit(core.UnitID("brazil"))
	require.True(t, ok)
	assert.True(t, unit.HasTag("large"))
	assert.True(t, unit.HasTag("latam"))

	unit, ok = p.Unit(core.UnitID("india"))
	require.True(t, ok)
	assert.False(t, unit.HasTag("large"))
}

func TestLoadPanel_Excel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	cells := [][]interface{}{
		{"unit_id", "year", "outcome", "gdp"},
		{"china", 1970, 5.8, 800},
		{"china", 1971, 5.4, 850},
		{"india", 1970, 5.6, 600},
		{"india", 1971, 5.3, nil},
	}
	for i, row := range cells {
		for j, v := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, ref, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	p, err := NewPanelReader(path, DefaultColumns()).LoadPanel(context.Background())
	require.NoError(t, err)

	assert.Len(t, p.Units(), 2)
	gdp, ok := p.Predictor("gdp", "india")
	require.True(t, ok)
	assert.InDelta(t, 600, gdp.Values[0], 1e-12)
	assert.True(t, math.IsNaN(gdp.Values[1]))
}

func TestLoadPanel_MissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte("unit_id,value\nchina,1\n"), 0o644))

	_, err := NewPanelReader(path, DefaultColumns()).LoadPanel(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
}

func TestLoadPanel_FileNotFound(t *testing.T) {
	_, err := NewPanelReader("/nonexistent/panel.xlsx", DefaultColumns()).LoadPanel(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
