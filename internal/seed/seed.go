// Package seed generates demo defect data for local development.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"road-metrics-monitor/internal/models"
)

// Inserter is the subset of the store the seeder writes through.
type Inserter interface {
	InsertDefectBatch(ctx context.Context, defects []models.Defect) (int64, error)
}

// Bangalore metro coordinate box
const (
	latMin, latMax = 12.8, 13.1
	lngMin, lngMax = 77.4, 77.8
)

var defectTypes = []string{
	"pothole", "crack", "minor_pothole", "surface_damage",
	"road_marking_fade", "debris", "water_damage",
}

// Skewed towards low severity, as field data is
var severityPool = []models.Severity{
	models.SeverityLow, models.SeverityLow, models.SeverityLow, models.SeverityLow,
	models.SeverityMedium, models.SeverityMedium, models.SeverityMedium,
	models.SeverityHigh, models.SeverityHigh,
	models.SeverityCritical,
}

// Generate produces count random defects reported by up to vehicles
// distinct vehicles over the trailing 30 days.
func Generate(rng *rand.Rand, count, vehicles int) []models.Defect {
	now := time.Now().UTC()
	defects := make([]models.Defect, 0, count)

	for i := 0; i < count; i++ {
		defectType := defectTypes[rng.Intn(len(defectTypes))]
		d := models.Defect{
			Latitude:   latMin + rng.Float64()*(latMax-latMin),
			Longitude:  lngMin + rng.Float64()*(lngMax-lngMin),
			DefectType: defectType,
			Severity:   severityPool[rng.Intn(len(severityPool))],
			Timestamp:  now.Add(-time.Duration(rng.Intn(30*24)) * time.Hour),
		}

		// 70% of reports carry a vehicle reference
		if rng.Float64() < 0.7 {
			d.VehicleID = fmt.Sprintf("V%03d", 100+rng.Intn(vehicles))
		}

		// Occasional free-text notes
		if rng.Float64() < 0.4 {
			d.Notes = fmt.Sprintf("Large %s affecting traffic flow", defectType)
		}

		defects = append(defects, d)
	}

	return defects
}

// Populate generates and inserts demo defects, returning the inserted count.
func Populate(ctx context.Context, store Inserter, rng *rand.Rand, count, vehicles int) (int64, error) {
	return store.InsertDefectBatch(ctx, Generate(rng, count, vehicles))
}
