package models

import (
	"math"
	"time"
)

// Severity is the closed set of defect severity levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all valid severity levels.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityWeight returns the heatmap intensity multiplier for a severity.
// Unknown values weigh 1. Severity is a closed set, so hitting the fallback
// means bad data reached the store rather than a new business rule.
func SeverityWeight(s Severity) int64 {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 1
}

// Defect represents a single reported road-surface issue.
type Defect struct {
	ID         int64     `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	DefectType string    `json:"defect_type"`
	Severity   Severity  `json:"severity"`
	Notes      string    `json:"notes,omitempty"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"` // report (event) time, not row creation
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasCoordinates reports whether the defect's coordinates are finite and
// within WGS84 range.
func (d *Defect) HasCoordinates() bool {
	if math.IsNaN(d.Latitude) || math.IsInf(d.Latitude, 0) {
		return false
	}
	if math.IsNaN(d.Longitude) || math.IsInf(d.Longitude, 0) {
		return false
	}
	return d.Latitude >= -90 && d.Latitude <= 90 && d.Longitude >= -180 && d.Longitude <= 180
}

// Vehicle represents a reporting field vehicle and its rollup statistics.
type Vehicle struct {
	ID           int64      `json:"id"`
	VehicleID    string     `json:"vehicle_id"`
	LastReportAt *time.Time `json:"last_report_timestamp,omitempty"`
	TotalReports int64      `json:"total_reports"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DefectQuery represents filter parameters for defect listings.
type DefectQuery struct {
	DefectType string
	Severity   string
	Limit      int
	Offset     int
}
