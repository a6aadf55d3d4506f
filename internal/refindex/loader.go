package refindex

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// csvRow uses pointer coordinate fields so rows with blank lat/lon decode as
// nil instead of failing the whole file; Build drops them.
type csvRow struct {
	PostalCode string   `csv:"postal_code"`
	City       string   `csv:"city"`
	District   string   `csv:"district"`
	State      string   `csv:"state"`
	Lat        *float64 `csv:"latitude"`
	Lon        *float64 `csv:"longitude"`
}

// LoadCSV reads reference dataset rows from a CSV file.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refindex: open csv %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	dec, err := csvutil.NewDecoder(r)
	if err != nil {
		return nil, eris.Wrapf(err, "refindex: read csv header %s", path)
	}

	var rows []Row
	for {
		var cr csvRow
		if err := dec.Decode(&cr); err != nil {
			if err == io.EOF {
				break
			}
			return nil, eris.Wrapf(err, "refindex: decode csv row %s", path)
		}
		rows = append(rows, Row{
			PostalCode: cr.PostalCode,
			City:       cr.City,
			District:   cr.District,
			State:      cr.State,
			Lat:        deref(cr.Lat),
			Lon:        deref(cr.Lon),
		})
	}

	zap.L().Debug("refindex: loaded csv", zap.String("path", path), zap.Int("rows", len(rows)))
	return rows, nil
}

// LoadXLSX reads reference dataset rows from the first sheet of an XLSX
// workbook. The header row maps columns by name, so column order is free.
func LoadXLSX(path string) ([]Row, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refindex: open xlsx %s", path)
	}
	if len(file.Sheets) == 0 {
		return nil, eris.Errorf("refindex: xlsx %s has no sheets", path)
	}
	sheet := file.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		cols[Key(cell.String())] = i
	}

	cellAt := func(r *xlsx.Row, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(r.Cells) {
			return ""
		}
		return strings.TrimSpace(r.Cells[idx].String())
	}

	var rows []Row
	for _, r := range sheet.Rows[1:] {
		rows = append(rows, Row{
			PostalCode: cellAt(r, "postal_code"),
			City:       cellAt(r, "city"),
			District:   cellAt(r, "district"),
			State:      cellAt(r, "state"),
			Lat:        parseCoord(cellAt(r, "latitude")),
			Lon:        parseCoord(cellAt(r, "longitude")),
		})
	}

	zap.L().Debug("refindex: loaded xlsx", zap.String("path", path), zap.Int("rows", len(rows)))
	return rows, nil
}

// LoadRows dispatches on file extension.
func LoadRows(path string) ([]Row, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".xlsx"):
		return LoadXLSX(path)
	default:
		return LoadCSV(path)
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

func parseCoord(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
