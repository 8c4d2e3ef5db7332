package db

import (
	"context"
	"database/sql"
	"time"

	"road-metrics-monitor/internal/models"
)

// upsertVehicleReport bumps a vehicle's incremental counters when a new
// report referencing it arrives. Creates the vehicle row on first sight.
func upsertVehicleReport(ctx context.Context, tx *sql.Tx, vehicleID string, reportedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vehicles (vehicle_id, last_report_timestamp, total_reports)
		VALUES (?, ?, 1)
		ON CONFLICT(vehicle_id) DO UPDATE SET
			last_report_timestamp = excluded.last_report_timestamp,
			total_reports = vehicles.total_reports + 1`,
		vehicleID, reportedAt)
	return err
}

// GetVehicle retrieves a vehicle by its external identifier
func (db *Database) GetVehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, vehicle_id, last_report_timestamp, total_reports, created_at
		FROM vehicles WHERE vehicle_id = ?`, vehicleID)

	v, err := scanVehicle(row)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVehicles returns all vehicles ordered by identifier
func (db *Database) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, vehicle_id, last_report_timestamp, total_reports, created_at
		FROM vehicles ORDER BY vehicle_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var lastReport sql.NullTime
	err := row.Scan(&v.ID, &v.VehicleID, &lastReport, &v.TotalReports, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastReport.Valid {
		t := lastReport.Time
		v.LastReportAt = &t
	}
	return &v, nil
}

// TopVehicles returns the most active reporting vehicles
func (db *Database) TopVehicles(ctx context.Context, limit int) ([]models.VehicleActivity, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT vehicle_id, total_reports
		FROM vehicles
		ORDER BY total_reports DESC, vehicle_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]models.VehicleActivity, 0, limit)
	for rows.Next() {
		var a models.VehicleActivity
		if err := rows.Scan(&a.VehicleID, &a.Reports); err != nil {
			return nil, err
		}
		top = append(top, a)
	}
	return top, rows.Err()
}

// RecomputeVehicleStats recalculates total_reports and last_report_timestamp
// for every vehicle row from the defect rows referencing it, overwriting any
// drift from incremental upserts. No vehicle rows are created or deleted.
// Returns the number of vehicle rows updated.
func (db *Database) RecomputeVehicleStats(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE vehicles
		SET total_reports = (
			SELECT COUNT(*)
			FROM defects
			WHERE defects.vehicle_id = vehicles.vehicle_id
		),
		last_report_timestamp = (
			SELECT MAX(timestamp)
			FROM defects
			WHERE defects.vehicle_id = vehicles.vehicle_id
		)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
