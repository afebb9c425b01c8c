// Package excel loads long-format observational panels from Excel workbooks
// and CSV exports. One row per (unit, year) observation; empty cells are
// missing values, never zeros.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Arg0xel/SCM---current-work/domain/core"
	"github.com/Arg0xel/SCM---current-work/domain/panel"
)

// Columns names the well-known panel columns. Every header not listed here
// is treated as a predictor column.
type Columns struct {
	UnitID   string
	UnitName string
	Year     string
	Outcome  string
	Tags     string
}

// DefaultColumns matches the export layout of the fertility panel workbooks.
func DefaultColumns() Columns {
	return Columns{
		UnitID:   "unit_id",
		UnitName: "unit_name",
		Year:     "year",
		Outcome:  "outcome",
		Tags:     "tags",
	}
}

// PanelReader reads Excel and CSV panel files. It implements
// ports.PanelSource.
type PanelReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	columns  Columns
}

// NewPanelReader creates a reader for the given file; the extension decides
// the format.
func NewPanelReader(filePath string, columns Columns) *PanelReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &PanelReader{filePath: filePath, fileType: fileType, columns: columns}
}

// LoadPanel reads the file and assembles the panel.
func (r *PanelReader) LoadPanel(ctx context.Context) (*panel.Panel, error) {
	log.Printf("[PanelReader] reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("panel file not found: %s", r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported panel file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("panel file must have a header row and at least one data row")
	}

	return r.assemble(rows)
}

func (r *PanelReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	log.Printf("[PanelReader] sheet %q read (%d rows)", sheet, len(rows))
	return rows, nil
}

func (r *PanelReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	log.Printf("[PanelReader] CSV file read (%d rows)", len(rows))
	return rows, nil
}

// assemble converts raw string rows into a built panel. Unit metadata is
// taken from the first row each unit appears on.
func (r *PanelReader) assemble(raw [][]string) (*panel.Panel, error) {
	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = strings.TrimSpace(h)
	}

	col := func(name string) int {
		for i, h := range headers {
			if strings.EqualFold(h, name) {
				return i
			}
		}
		return -1
	}

	unitCol := col(r.columns.UnitID)
	yearCol := col(r.columns.Year)
	outcomeCol := col(r.columns.Outcome)
	if unitCol < 0 || yearCol < 0 || outcomeCol < 0 {
		return nil, fmt.Errorf("panel file missing required columns %q, %q, %q (got %v)",
			r.columns.UnitID, r.columns.Year, r.columns.Outcome, headers)
	}
	nameCol := col(r.columns.UnitName)
	tagsCol := col(r.columns.Tags)

	reserved := map[int]bool{unitCol: true, yearCol: true, outcomeCol: true}
	if nameCol >= 0 {
		reserved[nameCol] = true
	}
	if tagsCol >= 0 {
		reserved[tagsCol] = true
	}

	var predictorNames []string
	predictorCols := map[int]string{}
	for i, h := range headers {
		if !reserved[i] && h != "" {
			predictorNames = append(predictorNames, h)
			predictorCols[i] = h
		}
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	unitsByID := map[core.UnitID]panel.Unit{}
	var unitOrder []core.UnitID
	var rows []panel.Row

	for lineNo, row := range raw[1:] {
		idRaw := cell(row, unitCol)
		if idRaw == "" {
			continue // blank separator rows are common in exported workbooks
		}
		id, err := core.ParseUnitID(idRaw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", lineNo+2, err)
		}

		year, err := strconv.Atoi(cell(row, yearCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid year %q", lineNo+2, cell(row, yearCol))
		}

		if _, seen := unitsByID[id]; !seen {
			unit := panel.Unit{ID: id, Name: cell(row, nameCol)}
			if tags := cell(row, tagsCol); tags != "" {
				for _, t := range strings.Split(tags, ";") {
					if t = strings.TrimSpace(t); t != "" {
						unit.Tags = append(unit.Tags, t)
					}
				}
			}
			unitsByID[id] = unit
			unitOrder = append(unitOrder, id)
		}

		prow := panel.Row{UnitID: id, Year: year, Outcome: math.NaN(), Predictors: map[string]float64{}}
		if v, ok := parseCell(cell(row, outcomeCol)); ok {
			prow.Outcome = v
		}
		for i, name := range predictorCols {
			if v, ok := parseCell(cell(row, i)); ok {
				prow.Predictors[name] = v
			}
		}
		rows = append(rows, prow)
	}

	units := make([]panel.Unit, len(unitOrder))
	for i, id := range unitOrder {
		units[i] = unitsByID[id]
	}

	p, err := panel.Build(units, predictorNames, rows)
	if err != nil {
		return nil, err
	}
	log.Printf("[PanelReader] panel assembled: %d units, %d years, %d predictors",
		len(units), len(p.Years()), len(predictorNames))
	return p, nil
}

// parseCell converts a cell to a float. Empty cells and the usual missing
// markers report not-ok rather than zero.
func parseCell(s string) (float64, bool) {
	switch strings.ToUpper(s) {
	case "", "NA", "N/A", "NAN", "NULL", "..":
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
