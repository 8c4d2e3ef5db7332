package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"road-metrics-monitor/internal/models"
)

// InsertMetrics appends metric catalog entries in a single transaction.
// Insert-only: prior entries for the same names are kept as history.
func (db *Database) InsertMetrics(ctx context.Context, metrics []models.Metric) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO analytics (metric_name, metric_value, calculated_at)
			VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx, m.Name, m.Value, m.CalculatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceMetric replaces all entries for a metric name with a single fresh
// one. Only heatmap_data uses these replace-by-key semantics; every other
// metric keeps insert-only history.
func (db *Database) ReplaceMetric(ctx context.Context, m models.Metric) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM analytics WHERE metric_name = ?", m.Name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO analytics (metric_name, metric_value, calculated_at)
			VALUES (?, ?, ?)`, m.Name, m.Value, m.CalculatedAt)
		return err
	})
}

// ReplaceRecomputedAnalytics evicts recomputable-family entries calculated
// before cutoff and inserts the fresh values, as one transaction so readers
// never observe a partially refreshed cache.
func (db *Database) ReplaceRecomputedAnalytics(ctx context.Context, cutoff time.Time, metrics []models.Metric) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(models.RecomputableMetrics)), ", ")
	args := make([]interface{}, 0, len(models.RecomputableMetrics)+1)
	for _, name := range models.RecomputableMetrics {
		args = append(args, name)
	}
	args = append(args, cutoff)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM analytics WHERE metric_name IN ("+placeholders+") AND calculated_at < ?", args...)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO analytics (metric_name, metric_value, calculated_at)
			VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range metrics {
			if _, err := stmt.ExecContext(ctx, m.Name, m.Value, m.CalculatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestMetric returns the most recently calculated entry for a metric name.
// Returns sql.ErrNoRows when the catalog has no entry for the name.
func (db *Database) LatestMetric(ctx context.Context, name string) (*models.Metric, error) {
	var m models.Metric
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, metric_name, metric_value, calculated_at
		FROM analytics
		WHERE metric_name = ?
		ORDER BY calculated_at DESC, id DESC
		LIMIT 1`, name).Scan(&m.ID, &m.Name, &m.Value, &m.CalculatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMetricEntries returns the number of catalog entries for a metric name
func (db *Database) CountMetricEntries(ctx context.Context, name string) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM analytics WHERE metric_name = ?", name).Scan(&count)
	return count, err
}
