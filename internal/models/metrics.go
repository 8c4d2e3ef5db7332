package models

import "time"

// Metric catalog entry names. total_defects and recent_defects_7d are stored
// as stringified integers; every other value is a JSON document. Downstream
// consumers depend on that asymmetry.
const (
	MetricTotalDefects      = "total_defects"
	MetricDefectsByType     = "defects_by_type"
	MetricDefectsBySeverity = "defects_by_severity"
	MetricGeoDistribution   = "geographic_distribution"
	MetricRecentDefects7d   = "recent_defects_7d"
	MetricHeatmapData       = "heatmap_data"
	MetricDailyReport       = "daily_report"
	MetricWeeklyReport      = "weekly_report"
)

// RecomputableMetrics is the cheap analytics family: entries older than the
// freshness window are evicted and recomputed on every batch run. heatmap_data
// is replaced by key instead, and the periodic reports are insert-only history.
var RecomputableMetrics = []string{
	MetricTotalDefects,
	MetricDefectsByType,
	MetricDefectsBySeverity,
	MetricGeoDistribution,
	MetricRecentDefects7d,
}

// Metric is a row in the metric catalog. Value is the serialized payload;
// multiple historical entries per name may coexist and the current one is the
// most recently calculated.
type Metric struct {
	ID           int64     `json:"id"`
	Name         string    `json:"metric_name"`
	Value        string    `json:"metric_value"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// GeoBucket is one geographic_distribution entry: defect count per
// 2-decimal-rounded coordinate bucket.
type GeoBucket struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Count int64   `json:"count"`
}

// HeatmapGroup is a raw heatmap aggregation row: defect count per
// (3-decimal-rounded coordinate, severity) group over the trailing window.
type HeatmapGroup struct {
	Lat      float64
	Lng      float64
	Severity Severity
	Count    int64
}

// HeatmapPoint is one heatmap_data entry. Groups with different severities at
// the same rounded location stay separate points.
type HeatmapPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Intensity int64   `json:"intensity"`
}

// DefectBreakdown is a (type, severity) count pair in the daily report.
type DefectBreakdown struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Count    int64    `json:"count"`
}

// DailyReport summarizes defects reported on a single calendar day.
type DailyReport struct {
	Date    string            `json:"date"`
	Summary []DefectBreakdown `json:"summary"`
}

// DailyCount is a per-day defect count in the weekly report.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// WeeklyReport holds per-day counts for the 7-day window ending WeekEnding.
type WeeklyReport struct {
	WeekEnding  string       `json:"week_ending"`
	DailyCounts []DailyCount `json:"daily_counts"`
}

// VehicleActivity is a top-reporting-vehicles entry in the analytics view.
type VehicleActivity struct {
	VehicleID string `json:"vehicle_id"`
	Reports   int64  `json:"reports"`
}
