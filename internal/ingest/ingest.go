// Package ingest loads raw expense collections from JSON, CSV, and XLSX files.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/recon-cli/internal/model"
)

// Load reads a collection of raw expenses from path, tagging each with side.
// The format is chosen by extension: .json, .csv, or .xlsx.
func Load(path string, side model.Side) ([]model.Expense, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path, side)
	case ".csv":
		return loadCSV(path, side)
	case ".xlsx":
		return loadXLSX(path, side)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q (want .json, .csv, or .xlsx)", filepath.Ext(path))
	}
}

func loadJSON(path string, side model.Side) ([]model.Expense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	var expenses []model.Expense
	if err := json.Unmarshal(data, &expenses); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	for i := range expenses {
		expenses[i].Side = side
	}
	return expenses, nil
}

// csvColumns is the expected header order for tabular input.
var csvColumns = []string{"date", "amount", "description", "category", "external_id"}

func loadCSV(path string, side model.Side) ([]model.Expense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return parseRows(path, rows, side)
}

// loadXLSX reads the first sheet of a workbook as tabular expense rows, same
// column order as CSV.
func loadXLSX(path string, side model.Side) ([]model.Expense, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return parseRows(path, rows, side)
}

// parseRows turns tabular rows into expenses, tolerating a header row that
// matches the expected column names.
func parseRows(path string, rows [][]string, side model.Side) ([]model.Expense, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	start := 0
	if isHeader(rows[0]) {
		start = 1
	}

	expenses := make([]model.Expense, 0, len(rows)-start)
	for i, row := range rows[start:] {
		if len(row) < 3 {
			return nil, eris.Errorf("ingest: %s line %d: want at least date, amount, description", path, start+i+1)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: %s line %d: bad amount %q", path, start+i+1, row[1])
		}
		exp := model.Expense{
			Date:        strings.TrimSpace(row[0]),
			Amount:      amount,
			Description: strings.TrimSpace(row[2]),
			Side:        side,
		}
		if len(row) > 3 {
			exp.Category = strings.TrimSpace(row[3])
		}
		if len(row) > 4 {
			exp.ExternalID = strings.TrimSpace(row[4])
		}
		expenses = append(expenses, exp)
	}
	return expenses, nil
}

func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	for i, cell := range row {
		if i >= len(csvColumns) {
			break
		}
		if strings.EqualFold(strings.TrimSpace(cell), csvColumns[i]) {
			return true
		}
	}
	return false
}
