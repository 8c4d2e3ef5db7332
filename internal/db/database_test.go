package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"road-metrics-monitor/internal/models"
)

// setupTestDB creates a throwaway SQLite database for testing
func setupTestDB(t *testing.T) *Database {
	t.Helper()

	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func seedDefects(t *testing.T, database *Database, defects []models.Defect) {
	t.Helper()
	count, err := database.InsertDefectBatch(context.Background(), defects)
	require.NoError(t, err)
	require.Equal(t, int64(len(defects)), count)
}

func TestCreateDefectUpsertsVehicle(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	reportedAt := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	d := models.Defect{
		Latitude:   12.9716,
		Longitude:  77.5946,
		DefectType: "pothole",
		Severity:   models.SeverityHigh,
		Notes:      "deep pothole near junction",
		VehicleID:  "V101",
		Timestamp:  reportedAt,
	}
	require.NoError(t, database.CreateDefect(ctx, &d))
	assert.NotZero(t, d.ID)

	v, err := database.GetVehicle(ctx, "V101")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.TotalReports)
	require.NotNil(t, v.LastReportAt)
	assert.True(t, v.LastReportAt.Equal(reportedAt))

	// Second report bumps the incremental counter
	d2 := models.Defect{
		Latitude: 12.98, Longitude: 77.60,
		DefectType: "crack", Severity: models.SeverityLow,
		VehicleID: "V101", Timestamp: reportedAt.Add(time.Hour),
	}
	require.NoError(t, database.CreateDefect(ctx, &d2))

	v, err = database.GetVehicle(ctx, "V101")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.TotalReports)
	assert.True(t, v.LastReportAt.Equal(reportedAt.Add(time.Hour)))
}

func TestListDefectsFilters(t *testing.T) {
	database := setupTestDB(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: now},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "crack", Severity: models.SeverityLow, Timestamp: now.Add(time.Minute)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: now.Add(2 * time.Minute)},
	})

	all, err := database.ListDefects(context.Background(), models.DefectQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first
	assert.Equal(t, "pothole", all[0].DefectType)
	assert.Equal(t, models.SeverityLow, all[0].Severity)

	potholes, err := database.ListDefects(context.Background(), models.DefectQuery{DefectType: "pothole", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, potholes, 2)

	lowSeverity, err := database.ListDefects(context.Background(), models.DefectQuery{Severity: "low", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, lowSeverity, 1)
}

func TestCounts(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: now},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: now.AddDate(0, 0, -10)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "crack", Severity: models.SeverityLow, Timestamp: now.AddDate(0, 0, -1)},
	})

	total, err := database.CountDefects(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	recent, err := database.CountDefectsSince(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(2), recent)

	byType, err := database.CountDefectsByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pothole": 2, "crack": 1}, byType)

	bySeverity, err := database.CountDefectsBySeverity(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"high": 1, "low": 2}, bySeverity)
}

func TestGeographicDistribution(t *testing.T) {
	database := setupTestDB(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// 12.9012 and 12.9036 share the 12.90 bucket; 13.0511 rounds to 13.05
	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9012, Longitude: 77.5991, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: now},
		{Latitude: 12.9036, Longitude: 77.6010, DefectType: "crack", Severity: models.SeverityLow, Timestamp: now},
		{Latitude: 13.0511, Longitude: 77.4998, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: now},
	})

	buckets, err := database.GeographicDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	// Ordered by count descending
	assert.Equal(t, models.GeoBucket{Lat: 12.9, Lng: 77.6, Count: 2}, buckets[0])
	assert.Equal(t, int64(1), buckets[1].Count)
	assert.Equal(t, int64(1), buckets[2].Count)
}

func TestHeatmapGroups(t *testing.T) {
	database := setupTestDB(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	seedDefects(t, database, []models.Defect{
		// Same rounded location, different severities stay separate groups
		{Latitude: 12.9001, Longitude: 77.6002, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: now.AddDate(0, 0, -2)},
		{Latitude: 12.9004, Longitude: 77.5996, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: now.AddDate(0, 0, -3)},
		{Latitude: 12.9002, Longitude: 77.5998, DefectType: "crack", Severity: models.SeverityLow, Timestamp: now.AddDate(0, 0, -1)},
		// Outside the window
		{Latitude: 12.9001, Longitude: 77.6001, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: now.AddDate(0, 0, -40)},
	})

	groups, err := database.HeatmapGroups(context.Background(), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, models.HeatmapGroup{Lat: 12.9, Lng: 77.6, Severity: models.SeverityHigh, Count: 2}, groups[0])
	assert.Equal(t, models.HeatmapGroup{Lat: 12.9, Lng: 77.6, Severity: models.SeverityLow, Count: 1}, groups[1])
}

func TestDeleteDefectsBeforeBoundary(t *testing.T) {
	database := setupTestDB(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -730)

	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: cutoff.Add(-time.Second)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: cutoff},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: cutoff.Add(time.Second)},
	})

	deleted, err := database.DeleteDefectsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The row exactly at the cutoff is retained
	total, err := database.CountDefects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestDailyBreakdownAndCounts(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	dayStart := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: dayStart.Add(2 * time.Hour)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityHigh, Timestamp: dayStart.Add(5 * time.Hour)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "crack", Severity: models.SeverityLow, Timestamp: dayStart.Add(23 * time.Hour)},
		// Previous day
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, Timestamp: dayStart.Add(-time.Hour)},
		// Next day, excluded from the half-open range
		{Latitude: 12.9, Longitude: 77.6, DefectType: "debris", Severity: models.SeverityLow, Timestamp: dayStart.Add(24 * time.Hour)},
	})

	breakdown, err := database.DailyBreakdown(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []models.DefectBreakdown{
		{Type: "crack", Severity: models.SeverityLow, Count: 1},
		{Type: "pothole", Severity: models.SeverityHigh, Count: 2},
	}, breakdown)

	counts, err := database.DailyCounts(ctx, dayStart.AddDate(0, 0, -6), dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []models.DailyCount{
		{Date: "2026-08-19", Count: 1},
		{Date: "2026-08-20", Count: 3},
	}, counts)
}

func TestRecomputeVehicleStatsCorrectsDrift(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, VehicleID: "V200", Timestamp: now.AddDate(0, 0, -800)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, VehicleID: "V200", Timestamp: now.AddDate(0, 0, -1)},
		{Latitude: 12.9, Longitude: 77.6, DefectType: "crack", Severity: models.SeverityLow, VehicleID: "V200", Timestamp: now.AddDate(0, 0, -2)},
	})

	// Retention cleanup drops one defect, leaving the incremental counter
	// inflated until rollup
	_, err := database.DeleteDefectsBefore(ctx, now.AddDate(0, 0, -730))
	require.NoError(t, err)

	v, err := database.GetVehicle(ctx, "V200")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.TotalReports)

	updated, err := database.RecomputeVehicleStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	v, err = database.GetVehicle(ctx, "V200")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.TotalReports)
	require.NotNil(t, v.LastReportAt)
	assert.True(t, v.LastReportAt.Equal(now.AddDate(0, 0, -1)))
}

func TestGetStats(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	seedDefects(t, database, []models.Defect{
		{Latitude: 12.9, Longitude: 77.6, DefectType: "pothole", Severity: models.SeverityLow, VehicleID: "V1", Timestamp: now},
	})
	require.NoError(t, database.InsertMetrics(ctx, []models.Metric{
		{Name: models.MetricTotalDefects, Value: "1", CalculatedAt: now},
	}))

	stats, err := database.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{TotalDefects: 1, TotalVehicles: 1, MetricEntries: 1}, stats)
}
