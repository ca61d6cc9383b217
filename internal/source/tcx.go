// ABOUTME: TCX parser: one workout per Activity, aggregated across laps
// ABOUTME: (time, distance, calories, HR weighted by lap duration).
package source

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

type tcxFile struct {
	Activities []tcxActivity `xml:"Activities>Activity"`
}

type tcxActivity struct {
	Sport string   `xml:"Sport,attr"`
	ID    string   `xml:"Id"`
	Laps  []tcxLap `xml:"Lap"`
}

type tcxLap struct {
	TotalTimeSeconds float64 `xml:"TotalTimeSeconds"`
	DistanceMeters   float64 `xml:"DistanceMeters"`
	Calories         float64 `xml:"Calories"`
	AvgHR            float64 `xml:"AverageHeartRateBpm>Value"`
	MaxHR            float64 `xml:"MaximumHeartRateBpm>Value"`
}

func parseTCXFile(path, source string) ([]models.Workout, []models.DailyMetrics, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	var t tcxFile
	if err := xml.Unmarshal(data, &t); err != nil {
		return nil, nil, nil, fmt.Errorf("parsing tcx: %w", err)
	}

	var workouts []models.Workout
	var rejected []error
	for i, act := range t.Activities {
		record := fmt.Sprintf("%s activity %d", filepath.Base(path), i+1)
		w, err := tcxToWorkout(act, source, record)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		workouts = append(workouts, w)
	}
	return workouts, nil, rejected, nil
}

func tcxToWorkout(act tcxActivity, source, record string) (models.Workout, error) {
	start, err := time.Parse(time.RFC3339, act.ID)
	if err != nil {
		return models.Workout{}, &ParseError{Source: source, Record: record,
			Err: fmt.Errorf("bad activity id %q: %w", act.ID, err)}
	}
	if len(act.Laps) == 0 {
		return models.Workout{}, &ParseError{Source: source, Record: record,
			Err: fmt.Errorf("activity has no laps")}
	}

	var seconds, distance, calories, hrWeighted float64
	var maxHR float64
	for _, lap := range act.Laps {
		seconds += lap.TotalTimeSeconds
		distance += lap.DistanceMeters
		calories += lap.Calories
		hrWeighted += lap.AvgHR * lap.TotalTimeSeconds
		if lap.MaxHR > maxHR {
			maxHR = lap.MaxHR
		}
	}

	w := models.Workout{
		Source:          source,
		Date:            models.FormatDate(start),
		StartTime:       start,
		Type:            strings.ToLower(act.Sport),
		Name:            strings.ToLower(act.Sport),
		DurationMinutes: seconds / 60,
		DistanceMeters:  distance,
		Calories:        int(calories),
		MaxHR:           maxHR,
	}
	if seconds > 0 {
		w.AvgHR = hrWeighted / seconds
	}
	w.Effort = w.DeriveEffort(0)
	w.SourceID = syntheticID(w)
	return w, nil
}
