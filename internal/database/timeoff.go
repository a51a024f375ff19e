package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"uborka/internal/models"
)

func (db *DB) CreateTimeOff(ctx context.Context, t *models.TimeOff) error {
	now := time.Now()
	if t.Status == "" {
		t.Status = models.TimeOffRequested
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO time_off (cleaner_id, start_date, end_date, reason, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.CleanerID, t.StartDate, t.EndDate, t.Reason, t.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create time off: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (db *DB) GetTimeOff(ctx context.Context, id int64) (*models.TimeOff, error) {
	t := &models.TimeOff{}
	err := db.QueryRowContext(ctx,
		`SELECT id, cleaner_id, start_date, end_date, reason, status, created_at, updated_at
         FROM time_off WHERE id = ?`, id).
		Scan(&t.ID, &t.CleanerID, &t.StartDate, &t.EndDate, &t.Reason, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time off: %w", err)
	}
	return t, nil
}

func (db *DB) UpdateTimeOffStatus(ctx context.Context, id int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE time_off SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update time off status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTimeOffForCleaner returns a cleaner's windows that overlap [start, end].
// Declined windows are included; the conflict checker skips them itself.
func (db *DB) GetTimeOffForCleaner(ctx context.Context, cleanerID int64, start, end time.Time) ([]models.TimeOff, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, cleaner_id, start_date, end_date, reason, status, created_at, updated_at
         FROM time_off
         WHERE cleaner_id = ? AND end_date >= ? AND start_date <= ?
         ORDER BY start_date ASC`, cleanerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get time off for cleaner: %w", err)
	}
	defer rows.Close()

	var out []models.TimeOff
	for rows.Next() {
		var t models.TimeOff
		if err := rows.Scan(&t.ID, &t.CleanerID, &t.StartDate, &t.EndDate, &t.Reason, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan time off: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
