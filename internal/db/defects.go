package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"road-metrics-monitor/internal/models"
)

const defectColumns = `id, latitude, longitude, defect_type, severity, notes, vehicle_id, timestamp, created_at, updated_at`

// CreateDefect inserts a defect report and, when the report carries a vehicle
// reference, bumps that vehicle's incremental counters in the same
// transaction. The vehicle counters are advisory; the rollup task recomputes
// them from defect rows.
func (db *Database) CreateDefect(ctx context.Context, d *models.Defect) error {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insertDefect(ctx, tx, d)
		if err != nil {
			return err
		}
		d.ID = id

		if d.VehicleID != "" {
			if err := upsertVehicleReport(ctx, tx, d.VehicleID, d.Timestamp); err != nil {
				return fmt.Errorf("vehicle upsert: %w", err)
			}
		}
		return nil
	})
}

// InsertDefectBatch efficiently inserts multiple defect reports
func (db *Database) InsertDefectBatch(ctx context.Context, defects []models.Defect) (int64, error) {
	var count int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range defects {
			now := time.Now().UTC()
			defects[i].CreatedAt = now
			defects[i].UpdatedAt = now

			id, err := insertDefect(ctx, tx, &defects[i])
			if err != nil {
				return err
			}
			defects[i].ID = id
			count++

			if defects[i].VehicleID != "" {
				if err := upsertVehicleReport(ctx, tx, defects[i].VehicleID, defects[i].Timestamp); err != nil {
					return fmt.Errorf("vehicle upsert: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func insertDefect(ctx context.Context, tx *sql.Tx, d *models.Defect) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO defects (latitude, longitude, defect_type, severity, notes, vehicle_id, timestamp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Latitude, d.Longitude, d.DefectType, string(d.Severity),
		nullString(d.Notes), nullString(d.VehicleID), d.Timestamp, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListDefects retrieves defect reports matching the query, newest first
func (db *Database) ListDefects(ctx context.Context, q models.DefectQuery) ([]models.Defect, error) {
	var conditions []string
	var args []interface{}

	query := `SELECT ` + defectColumns + ` FROM defects`

	if q.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, q.Severity)
	}
	if q.DefectType != "" {
		conditions = append(conditions, "defect_type = ?")
		args = append(args, q.DefectType)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Defect
	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func scanDefect(rows *sql.Rows) (models.Defect, error) {
	var d models.Defect
	var notes, vehicleID sql.NullString
	err := rows.Scan(
		&d.ID, &d.Latitude, &d.Longitude, &d.DefectType, &d.Severity,
		&notes, &vehicleID, &d.Timestamp, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}
	d.Notes = notes.String
	d.VehicleID = vehicleID.String
	return d, nil
}

// CountDefects returns the total number of defect rows
func (db *Database) CountDefects(ctx context.Context) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM defects").Scan(&count)
	return count, err
}

// CountDefectsSince returns the number of defects reported at or after since
func (db *Database) CountDefectsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM defects WHERE timestamp >= ?", since).Scan(&count)
	return count, err
}

// CountDefectsByType returns defect counts grouped by defect_type
func (db *Database) CountDefectsByType(ctx context.Context) (map[string]int64, error) {
	return db.countGrouped(ctx, "SELECT defect_type, COUNT(*) FROM defects GROUP BY defect_type")
}

// CountDefectsBySeverity returns defect counts grouped by severity
func (db *Database) CountDefectsBySeverity(ctx context.Context) (map[string]int64, error) {
	return db.countGrouped(ctx, "SELECT severity, COUNT(*) FROM defects GROUP BY severity")
}

func (db *Database) countGrouped(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// GeographicDistribution returns defect counts per 2-decimal coordinate
// bucket, ordered by count descending.
func (db *Database) GeographicDistribution(ctx context.Context) ([]models.GeoBucket, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			ROUND(latitude, 2) AS lat_zone,
			ROUND(longitude, 2) AS lng_zone,
			COUNT(*) AS defect_count
		FROM defects
		GROUP BY lat_zone, lng_zone
		HAVING defect_count > 0
		ORDER BY defect_count DESC, lat_zone, lng_zone`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]models.GeoBucket, 0)
	for rows.Next() {
		var b models.GeoBucket
		if err := rows.Scan(&b.Lat, &b.Lng, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// HeatmapGroups returns defect counts per (3-decimal coordinate, severity)
// group for defects reported at or after since.
func (db *Database) HeatmapGroups(ctx context.Context, since time.Time) ([]models.HeatmapGroup, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			ROUND(latitude, 3) AS lat_zone,
			ROUND(longitude, 3) AS lng_zone,
			severity,
			COUNT(*) AS defect_count
		FROM defects
		WHERE timestamp >= ?
		GROUP BY lat_zone, lng_zone, severity
		ORDER BY lat_zone, lng_zone, severity`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]models.HeatmapGroup, 0)
	for rows.Next() {
		var g models.HeatmapGroup
		if err := rows.Scan(&g.Lat, &g.Lng, &g.Severity, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteDefectsBefore removes defects with a report timestamp strictly older
// than cutoff and returns the number of rows deleted.
func (db *Database) DeleteDefectsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM defects WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DailyBreakdown returns (type, severity) defect counts for reports with
// timestamp in [start, end).
func (db *Database) DailyBreakdown(ctx context.Context, start, end time.Time) ([]models.DefectBreakdown, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT defect_type, severity, COUNT(*) AS defect_count
		FROM defects
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY defect_type, severity
		ORDER BY defect_type, severity`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make([]models.DefectBreakdown, 0)
	for rows.Next() {
		var b models.DefectBreakdown
		if err := rows.Scan(&b.Type, &b.Severity, &b.Count); err != nil {
			return nil, err
		}
		summary = append(summary, b)
	}
	return summary, rows.Err()
}

// DailyCounts returns per-calendar-day defect counts for reports with
// timestamp in [start, end), ordered by date ascending. Days without reports
// are omitted.
func (db *Database) DailyCounts(ctx context.Context, start, end time.Time) ([]models.DailyCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', timestamp) AS report_date, COUNT(*) AS daily_count
		FROM defects
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY report_date
		ORDER BY report_date`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]models.DailyCount, 0)
	for rows.Next() {
		var c models.DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
