// ABOUTME: XLSX export parser via excelize: first sheet, first row as
// ABOUTME: header, then the same aliased-row pipeline as CSV.
package source

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/harperreed/pulse/internal/models"
)

func parseXLSXFile(path, source string) ([]models.Workout, []models.DailyMetrics, []error, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil, nil
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(records) < 2 {
		return nil, nil, nil, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = normalizeKey(h)
	}

	var rows []row
	for _, rec := range records[1:] {
		r := make(row, len(header))
		for i, v := range rec {
			if i < len(header) {
				r[header[i]] = v
			}
		}
		rows = append(rows, r)
	}
	return classifyRows(rows, source, filepath.Base(path))
}
