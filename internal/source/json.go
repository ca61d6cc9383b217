// ABOUTME: JSON export parser: accepts a bare record list or one wrapped
// ABOUTME: under the usual envelope keys, then flattens to aliased rows.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/harperreed/pulse/internal/models"
)

// wrapperKeys are the envelope names exports wrap their record list in.
var wrapperKeys = []string{"data", "records", "activities", "workouts", "items", "results", "entries"}

func parseJSONFile(path, source string) ([]models.Workout, []models.DailyMetrics, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}

	items, err := jsonRecordList(data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing json: %w", err)
	}

	rows := make([]row, 0, len(items))
	for _, item := range items {
		rows = append(rows, flattenJSON(item))
	}
	return classifyRows(rows, source, filepath.Base(path))
}

func jsonRecordList(data []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range wrapperKeys {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("key %q is not a record list: %w", key, err)
		}
		return list, nil
	}
	return nil, fmt.Errorf("no record list under any of %v", wrapperKeys)
}

// flattenJSON renders one record's scalar fields as a string-keyed row.
// Nested objects are skipped; exports put the fields we need at the top.
func flattenJSON(item map[string]any) row {
	r := make(row, len(item))
	for k, v := range item {
		key := normalizeKey(k)
		switch val := v.(type) {
		case string:
			r[key] = val
		case float64:
			r[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			r[key] = strconv.FormatBool(val)
		}
	}
	return r
}
