// ABOUTME: GPX parser: one workout per file, duration from track point
// ABOUTME: timestamps and distance by haversine over the point sequence.
package source

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/pulse/internal/models"
)

type gpxFile struct {
	Name   string `xml:"metadata>name"`
	Tracks []struct {
		Name     string `xml:"name"`
		Type     string `xml:"type"`
		Segments []struct {
			Points []gpxPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Ele  float64 `xml:"ele"`
	Time string  `xml:"time"`
}

func parseGPXFile(path, source string) ([]models.Workout, []models.DailyMetrics, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	var g gpxFile
	if err := xml.Unmarshal(data, &g); err != nil {
		return nil, nil, nil, fmt.Errorf("parsing gpx: %w", err)
	}

	var points []gpxPoint
	name, actType := g.Name, ""
	for _, trk := range g.Tracks {
		if name == "" {
			name = trk.Name
		}
		if actType == "" {
			actType = trk.Type
		}
		for _, seg := range trk.Segments {
			points = append(points, seg.Points...)
		}
	}
	if len(points) < 2 {
		rejected := []error{&ParseError{Source: source, Record: filepath.Base(path),
			Err: fmt.Errorf("track has %d points", len(points))}}
		return nil, nil, rejected, nil
	}

	first, errFirst := time.Parse(time.RFC3339, points[0].Time)
	last, errLast := time.Parse(time.RFC3339, points[len(points)-1].Time)
	if errFirst != nil || errLast != nil || !last.After(first) {
		rejected := []error{&ParseError{Source: source, Record: filepath.Base(path),
			Err: fmt.Errorf("track points carry no usable timestamps")}}
		return nil, nil, rejected, nil
	}

	var distance, gain float64
	for i := 1; i < len(points); i++ {
		distance += haversineMeters(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
		if d := points[i].Ele - points[i-1].Ele; d > 0 {
			gain += d
		}
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	w := models.Workout{
		Source:          source,
		Date:            models.FormatDate(first),
		StartTime:       first,
		Type:            strings.ToLower(actType),
		Name:            name,
		DurationMinutes: last.Sub(first).Minutes(),
		DistanceMeters:  distance,
		ElevationGain:   gain,
	}
	w.Effort = w.DeriveEffort(0)
	w.SourceID = syntheticID(w)
	return []models.Workout{w}, nil, nil, nil
}

const earthRadiusMeters = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
