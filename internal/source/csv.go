// ABOUTME: CSV export parser: header-keyed rows classified as workout or
// ABOUTME: daily records by which aliased columns the file carries.
package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harperreed/pulse/internal/models"
)

func parseCSVFile(path, source string) ([]models.Workout, []models.DailyMetrics, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading csv: %w", err)
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

// classifyRows routes each row to the workout or daily normalizer.
// A row with a duration or workout name is a workout; one with only
// health metric columns is a daily record.
func classifyRows(rows []row, source, file string) ([]models.Workout, []models.DailyMetrics, []error, error) {
	var workouts []models.Workout
	var daily []models.DailyMetrics
	var rejected []error

	for i, r := range rows {
		record := fmt.Sprintf("%s row %d", file, i+2)
		if r.pick(aliasDuration) != "" || r.pick(aliasName) != "" || r.pick(aliasType) != "" {
			w, err := normalizeWorkout(r, source, record)
			if err != nil {
				rejected = append(rejected, err)
				continue
			}
			workouts = append(workouts, w)
			continue
		}
		d, hasData, err := normalizeDaily(r, source, record)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		if hasData {
			daily = append(daily, d)
		}
	}
	return workouts, daily, rejected, nil
}
