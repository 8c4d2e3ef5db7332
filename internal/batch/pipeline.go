// Package batch implements the periodic aggregation and maintenance pipeline
// for the road metrics store: an ordered list of idempotent tasks that scan
// the defect dataset, recompute derived metrics, and publish them to the
// metric catalog for dashboard consumers.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"road-metrics-monitor/internal/models"
)

const (
	// FreshnessWindow bounds how stale a recomputable analytics entry may
	// be before the cache refresh task evicts it.
	FreshnessWindow = time.Hour

	// RetentionWindow is the defect age beyond which rows are purged.
	// A row exactly at the boundary is retained.
	RetentionWindow = 730 * 24 * time.Hour

	// HeatmapWindow is the trailing report window the heatmap covers.
	HeatmapWindow = 30 * 24 * time.Hour

	// recentWindow is the trailing window for the recent_defects_7d metric
	// and the weekly report.
	recentWindow = 7
)

// Store is the persistence surface the pipeline operates on. Implemented by
// *db.Database; narrowed to an interface so tests can inject failures.
type Store interface {
	Ping(ctx context.Context) error

	CountDefects(ctx context.Context) (int64, error)
	CountDefectsSince(ctx context.Context, since time.Time) (int64, error)
	CountDefectsByType(ctx context.Context) (map[string]int64, error)
	CountDefectsBySeverity(ctx context.Context) (map[string]int64, error)
	GeographicDistribution(ctx context.Context) ([]models.GeoBucket, error)
	HeatmapGroups(ctx context.Context, since time.Time) ([]models.HeatmapGroup, error)
	DeleteDefectsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DailyBreakdown(ctx context.Context, start, end time.Time) ([]models.DefectBreakdown, error)
	DailyCounts(ctx context.Context, start, end time.Time) ([]models.DailyCount, error)
	RecomputeVehicleStats(ctx context.Context) (int64, error)

	ReplaceRecomputedAnalytics(ctx context.Context, cutoff time.Time, metrics []models.Metric) error
	ReplaceMetric(ctx context.Context, m models.Metric) error
	InsertMetrics(ctx context.Context, metrics []models.Metric) error
}

// TaskResult records the outcome of a single pipeline task.
type TaskResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RunResult is the consolidated outcome of one pipeline run. Tasks appear in
// execution order; tasks after a failure are absent because the pipeline
// halts at the first failing task.
type RunResult struct {
	RunID       string       `json:"run_id"`
	ProcessedAt time.Time    `json:"processed_at"`
	Tasks       []TaskResult `json:"tasks"`
	Failed      bool         `json:"failed"`
}

// Pipeline executes the maintenance tasks against a Store.
type Pipeline struct {
	store Store
	log   zerolog.Logger
}

// New creates a pipeline operating on store.
func New(store Store, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: store, log: log}
}

type task struct {
	name string
	run  func(ctx context.Context, now time.Time) (string, error)
}

// tasks returns the fixed ordered task list. Later tasks may observe the
// effects of earlier ones; each commits its own unit of work.
func (p *Pipeline) tasks() []task {
	return []task{
		{"refresh_analytics_cache", p.refreshAnalyticsCache},
		{"cleanup_old_data", p.cleanupOldData},
		{"generate_heatmap", p.generateHeatmap},
		{"update_vehicle_stats", p.updateVehicleStats},
		{"generate_reports", p.generateReports},
	}
}

// Run executes the full batch against the current store state.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	return p.RunAt(ctx, time.Now().UTC())
}

// RunAt executes the batch with an explicit "now", for deterministic runs.
//
// At most one run per deployment is assumed. Concurrent runs are not
// coordinated: they may race on the heatmap_data replace and on retention
// deletes, with undefined but non-corrupting results since every operation
// is an idempotent upsert or delete.
//
// The first failing task halts the run; effects of already-committed tasks
// are kept (each task is independently idempotent, so a rerun is safe). The
// returned RunResult is never nil.
func (p *Pipeline) RunAt(ctx context.Context, now time.Time) (*RunResult, error) {
	now = now.UTC()
	result := &RunResult{
		RunID:       uuid.NewString(),
		ProcessedAt: now,
		Tasks:       make([]TaskResult, 0, 5),
	}

	if err := p.store.Ping(ctx); err != nil {
		result.Failed = true
		return result, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	for _, t := range p.tasks() {
		start := time.Now()
		detail, err := t.run(ctx, now)
		if err != nil {
			result.Failed = true
			result.Tasks = append(result.Tasks, TaskResult{Name: t.name, Error: err.Error()})
			p.log.Error().Str("run_id", result.RunID).Str("task", t.name).Err(err).
				Msg("batch task failed, halting run")
			return result, &TaskError{Task: t.name, Err: err}
		}
		result.Tasks = append(result.Tasks, TaskResult{Name: t.name, OK: true, Detail: detail})
		p.log.Debug().Str("run_id", result.RunID).Str("task", t.name).
			Dur("elapsed", time.Since(start)).Str("detail", detail).Msg("batch task completed")
	}

	return result, nil
}

// refreshAnalyticsCache evicts recomputable analytics older than the
// freshness window and inserts fresh values, in one transaction.
func (p *Pipeline) refreshAnalyticsCache(ctx context.Context, now time.Time) (string, error) {
	total, err := p.store.CountDefects(ctx)
	if err != nil {
		return "", fmt.Errorf("count defects: %w", err)
	}
	byType, err := p.store.CountDefectsByType(ctx)
	if err != nil {
		return "", fmt.Errorf("count by type: %w", err)
	}
	bySeverity, err := p.store.CountDefectsBySeverity(ctx)
	if err != nil {
		return "", fmt.Errorf("count by severity: %w", err)
	}
	geo, err := p.store.GeographicDistribution(ctx)
	if err != nil {
		return "", fmt.Errorf("geographic distribution: %w", err)
	}
	recent, err := p.store.CountDefectsSince(ctx, now.AddDate(0, 0, -recentWindow))
	if err != nil {
		return "", fmt.Errorf("count recent: %w", err)
	}

	byTypeJSON, err := json.Marshal(byType)
	if err != nil {
		return "", err
	}
	bySeverityJSON, err := json.Marshal(bySeverity)
	if err != nil {
		return "", err
	}
	geoJSON, err := json.Marshal(geo)
	if err != nil {
		return "", err
	}

	// total_defects and recent_defects_7d stay stringified integers, the
	// rest are JSON documents. Existing consumers depend on the asymmetry.
	metrics := []models.Metric{
		{Name: models.MetricTotalDefects, Value: strconv.FormatInt(total, 10), CalculatedAt: now},
		{Name: models.MetricDefectsByType, Value: string(byTypeJSON), CalculatedAt: now},
		{Name: models.MetricDefectsBySeverity, Value: string(bySeverityJSON), CalculatedAt: now},
		{Name: models.MetricGeoDistribution, Value: string(geoJSON), CalculatedAt: now},
		{Name: models.MetricRecentDefects7d, Value: strconv.FormatInt(recent, 10), CalculatedAt: now},
	}

	if err := p.store.ReplaceRecomputedAnalytics(ctx, now.Add(-FreshnessWindow), metrics); err != nil {
		return "", fmt.Errorf("replace analytics: %w", err)
	}
	return fmt.Sprintf("refreshed %d metrics", len(metrics)), nil
}

// cleanupOldData hard-deletes defects past the retention window.
func (p *Pipeline) cleanupOldData(ctx context.Context, now time.Time) (string, error) {
	deleted, err := p.store.DeleteDefectsBefore(ctx, now.Add(-RetentionWindow))
	if err != nil {
		return "", fmt.Errorf("delete old defects: %w", err)
	}
	return fmt.Sprintf("deleted %d defects past retention", deleted), nil
}

// generateHeatmap recomputes the severity-weighted heatmap over the trailing
// 30 days and replaces the heatmap_data catalog entry.
func (p *Pipeline) generateHeatmap(ctx context.Context, now time.Time) (string, error) {
	groups, err := p.store.HeatmapGroups(ctx, now.Add(-HeatmapWindow))
	if err != nil {
		return "", fmt.Errorf("heatmap groups: %w", err)
	}

	points := make([]models.HeatmapPoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, models.HeatmapPoint{
			Lat:       g.Lat,
			Lng:       g.Lng,
			Intensity: g.Count * models.SeverityWeight(g.Severity),
		})
	}

	value, err := json.Marshal(points)
	if err != nil {
		return "", err
	}

	err = p.store.ReplaceMetric(ctx, models.Metric{
		Name:         models.MetricHeatmapData,
		Value:        string(value),
		CalculatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("replace heatmap: %w", err)
	}
	return fmt.Sprintf("generated %d heatmap points", len(points)), nil
}

// updateVehicleStats recomputes every vehicle's rollup from defect rows.
func (p *Pipeline) updateVehicleStats(ctx context.Context, _ time.Time) (string, error) {
	updated, err := p.store.RecomputeVehicleStats(ctx)
	if err != nil {
		return "", fmt.Errorf("recompute vehicle stats: %w", err)
	}
	return fmt.Sprintf("updated %d vehicles", updated), nil
}

// generateReports inserts the daily and weekly report entries. Insert-only:
// every run appends a new entry for each.
func (p *Pipeline) generateReports(ctx context.Context, now time.Time) (string, error) {
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.AddDate(0, 0, 1)
	weekStart := dayStart.AddDate(0, 0, -(recentWindow - 1))

	summary, err := p.store.DailyBreakdown(ctx, dayStart, dayEnd)
	if err != nil {
		return "", fmt.Errorf("daily breakdown: %w", err)
	}
	daily := models.DailyReport{
		Date:    dayStart.Format("2006-01-02"),
		Summary: summary,
	}

	counts, err := p.store.DailyCounts(ctx, weekStart, dayEnd)
	if err != nil {
		return "", fmt.Errorf("daily counts: %w", err)
	}
	weekly := models.WeeklyReport{
		WeekEnding:  dayStart.Format("2006-01-02"),
		DailyCounts: counts,
	}

	dailyJSON, err := json.Marshal(daily)
	if err != nil {
		return "", err
	}
	weeklyJSON, err := json.Marshal(weekly)
	if err != nil {
		return "", err
	}

	err = p.store.InsertMetrics(ctx, []models.Metric{
		{Name: models.MetricDailyReport, Value: string(dailyJSON), CalculatedAt: now},
		{Name: models.MetricWeeklyReport, Value: string(weeklyJSON), CalculatedAt: now},
	})
	if err != nil {
		return "", fmt.Errorf("insert reports: %w", err)
	}
	return fmt.Sprintf("daily report for %s, weekly window of %d days", daily.Date, len(counts)), nil
}
