package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"uborka/internal/models"
)

const occurrenceColumns = `id, client_id, cleaner_id, address_id, service_type, duration_minutes, price,
                 notes, internal_notes, scheduled_at, status, is_paid, is_recurring,
                 frequency, recurrence_end, parent_id, series_state, created_at, updated_at, version`

func scanOccurrence(row interface{ Scan(...any) error }) (*models.Occurrence, error) {
	o := &models.Occurrence{}
	var recurrenceEnd sql.NullTime
	var parentID sql.NullInt64

	err := row.Scan(
		&o.ID,
		&o.ClientID,
		&o.CleanerID,
		&o.AddressID,
		&o.ServiceType,
		&o.DurationMinutes,
		&o.Price,
		&o.Notes,
		&o.InternalNotes,
		&o.ScheduledAt,
		&o.Status,
		&o.IsPaid,
		&o.IsRecurring,
		&o.Frequency,
		&recurrenceEnd,
		&parentID,
		&o.SeriesState,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}

	if recurrenceEnd.Valid {
		t := recurrenceEnd.Time
		o.RecurrenceEnd = &t
	}
	if parentID.Valid {
		id := parentID.Int64
		o.ParentID = &id
	}
	return o, nil
}

func (db *DB) queryOccurrences(ctx context.Context, query string, args ...any) ([]*models.Occurrence, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan occurrence: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOccurrence inserts a single occurrence and fills in its id and
// bookkeeping fields. Series roots default to the active state.
func (db *DB) CreateOccurrence(ctx context.Context, o *models.Occurrence) error {
	now := time.Now()
	if o.Status == "" {
		o.Status = models.StatusScheduled
	}
	if o.ParentID == nil && o.SeriesState == "" {
		o.SeriesState = models.SeriesActive
	}

	result, err := db.ExecContext(ctx, `
        INSERT INTO occurrences (client_id, cleaner_id, address_id, service_type, duration_minutes, price,
                                 notes, internal_notes, scheduled_at, status, is_paid, is_recurring,
                                 frequency, recurrence_end, parent_id, series_state, created_at, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ClientID, o.CleanerID, o.AddressID, o.ServiceType, o.DurationMinutes, o.Price,
		o.Notes, o.InternalNotes, o.ScheduledAt, o.Status, o.IsPaid, o.IsRecurring,
		o.Frequency, timePtr(o.RecurrenceEnd), int64Ptr(o.ParentID), o.SeriesState, now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to create occurrence: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	o.ID = id
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1
	return nil
}

// BulkCreateOccurrences persists a generated batch inside one transaction:
// either every record lands or none does, so readers never observe a
// half-generated series.
func (db *DB) BulkCreateOccurrences(ctx context.Context, occs []models.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range occs {
		if err := insertOccurrenceTx(ctx, tx, &occs[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk create: %w", err)
	}
	return nil
}

func insertOccurrenceTx(ctx context.Context, tx *sql.Tx, o *models.Occurrence) error {
	now := time.Now()
	result, err := tx.ExecContext(ctx, `
        INSERT INTO occurrences (client_id, cleaner_id, address_id, service_type, duration_minutes, price,
                                 notes, internal_notes, scheduled_at, status, is_paid, is_recurring,
                                 frequency, recurrence_end, parent_id, series_state, created_at, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ClientID, o.CleanerID, o.AddressID, o.ServiceType, o.DurationMinutes, o.Price,
		o.Notes, o.InternalNotes, o.ScheduledAt, o.Status, o.IsPaid, o.IsRecurring,
		o.Frequency, timePtr(o.RecurrenceEnd), int64Ptr(o.ParentID), o.SeriesState, now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert occurrence: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	o.ID = id
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1
	return nil
}

// GetOccurrence returns an occurrence by id or ErrNotFound.
func (db *DB) GetOccurrence(ctx context.Context, id int64) (*models.Occurrence, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE id = ?`, id)

	o, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get occurrence: %w", err)
	}
	return o, nil
}

// GetSeries returns a series root together with its children ordered by date.
// The id must name a root; a child id yields ErrNotSeriesRoot.
func (db *DB) GetSeries(ctx context.Context, rootID int64) (*models.Occurrence, []*models.Occurrence, error) {
	root, err := db.GetOccurrence(ctx, rootID)
	if err != nil {
		return nil, nil, err
	}
	if !root.IsSeriesRoot() {
		return nil, nil, ErrNotSeriesRoot
	}

	children, err := db.queryOccurrences(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE parent_id = ? ORDER BY scheduled_at ASC`, rootID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get series children: %w", err)
	}
	return root, children, nil
}

// ListSeriesRoots returns every recurring series root, newest first.
func (db *DB) ListSeriesRoots(ctx context.Context) ([]*models.Occurrence, error) {
	roots, err := db.queryOccurrences(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences
         WHERE parent_id IS NULL AND is_recurring = 1
         ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list series roots: %w", err)
	}
	return roots, nil
}

// GetOccurrencesByDateRange returns all visits inside [start, end] ordered by
// date.
func (db *DB) GetOccurrencesByDateRange(ctx context.Context, start, end time.Time) ([]*models.Occurrence, error) {
	occs, err := db.queryOccurrences(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences
         WHERE scheduled_at >= ? AND scheduled_at <= ?
         ORDER BY scheduled_at ASC, id ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get occurrences by date range: %w", err)
	}
	return occs, nil
}

// GetDailySchedule groups the visits of a period by calendar day.
func (db *DB) GetDailySchedule(ctx context.Context, start, end time.Time) (map[string][]*models.Occurrence, error) {
	occs, err := db.GetOccurrencesByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	daily := make(map[string][]*models.Occurrence)
	for _, o := range occs {
		key := o.ScheduledAt.Format("2006-01-02")
		daily[key] = append(daily[key], o)
	}
	return daily, nil
}

// UpdateOccurrenceStatusWithVersion applies an optimistic-concurrency status
// update. A stale version yields ErrConcurrentModification, a missing row
// ErrNotFound.
func (db *DB) UpdateOccurrenceStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE occurrences SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update occurrence status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.versionedUpdateError(ctx, id)
	}
	return nil
}

// MarkOccurrencePaid flips the paid flag on a single occurrence.
func (db *DB) MarkOccurrencePaid(ctx context.Context, id, fromVersion int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE occurrences SET is_paid = 1, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to mark occurrence paid: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.versionedUpdateError(ctx, id)
	}
	return nil
}

// RescheduleOccurrenceWithVersion moves a single visit to a new instant.
func (db *DB) RescheduleOccurrenceWithVersion(ctx context.Context, id, fromVersion int64, newAt time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE occurrences SET scheduled_at = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		newAt, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to reschedule occurrence: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.versionedUpdateError(ctx, id)
	}
	return nil
}

// versionedUpdateError tells a missing row apart from a lost version race
// after a conditional update matched nothing.
func (db *DB) versionedUpdateError(ctx context.Context, id int64) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM occurrences WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect occurrence: %w", err)
	}
	return ErrConcurrentModification
}

// PauseSeries atomically claims the active→paused transition and removes the
// not-yet-serviced future children. Past, completed and cancelled children
// are untouched. Returns how many occurrences were removed.
func (db *DB) PauseSeries(ctx context.Context, rootID int64, now time.Time) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE occurrences SET series_state = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND parent_id IS NULL AND series_state = ?`,
		models.SeriesPaused, now, rootID, models.SeriesActive)
	if err != nil {
		return 0, fmt.Errorf("failed to mark series paused: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return 0, db.seriesFlipError(ctx, tx, rootID, models.SeriesActive)
	}

	del, err := tx.ExecContext(ctx,
		`DELETE FROM occurrences WHERE parent_id = ? AND status = ? AND scheduled_at >= ?`,
		rootID, models.StatusScheduled, now)
	if err != nil {
		return 0, fmt.Errorf("failed to remove future occurrences: %w", err)
	}
	removed, _ := del.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pause: %w", err)
	}
	return int(removed), nil
}

// ResumeSeries atomically claims the paused→active transition and inserts the
// regenerated occurrences in the same transaction. If anything fails the
// claim rolls back, so the series stays paused unless its occurrences were
// committed — and two concurrent resumes cannot both materialize.
func (db *DB) ResumeSeries(ctx context.Context, rootID int64, occs []models.Occurrence) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE occurrences SET series_state = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND parent_id IS NULL AND series_state = ?`,
		models.SeriesActive, time.Now(), rootID, models.SeriesPaused)
	if err != nil {
		return 0, fmt.Errorf("failed to mark series active: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return 0, db.seriesFlipError(ctx, tx, rootID, models.SeriesPaused)
	}

	for i := range occs {
		if err := insertOccurrenceTx(ctx, tx, &occs[i]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit resume: %w", err)
	}
	return len(occs), nil
}

// seriesFlipError explains why a conditional series-state update matched no
// row: missing record, a child id, or a state the transition does not allow.
func (db *DB) seriesFlipError(ctx context.Context, tx *sql.Tx, rootID int64, wantedState string) error {
	var parentID sql.NullInt64
	var state string
	err := tx.QueryRowContext(ctx,
		`SELECT parent_id, series_state FROM occurrences WHERE id = ?`, rootID).
		Scan(&parentID, &state)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect series state: %w", err)
	}
	if parentID.Valid {
		return ErrNotSeriesRoot
	}
	if wantedState == models.SeriesActive {
		return ErrAlreadyPaused
	}
	return ErrNotPaused
}

// CountFutureScheduled reports how many scheduled visits of a series lie at
// or after the given instant, the root included.
func (db *DB) CountFutureScheduled(ctx context.Context, rootID int64, now time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM occurrences
         WHERE (id = ? OR parent_id = ?) AND status = ? AND scheduled_at >= ?`,
		rootID, rootID, models.StatusScheduled, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count future occurrences: %w", err)
	}
	return count, nil
}

// GetScheduledForCleaner returns a cleaner's scheduled visits inside a window.
func (db *DB) GetScheduledForCleaner(ctx context.Context, cleanerID int64, start, end time.Time) ([]*models.Occurrence, error) {
	occs, err := db.queryOccurrences(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences
         WHERE cleaner_id = ? AND status = ? AND scheduled_at >= ? AND scheduled_at <= ?
         ORDER BY scheduled_at ASC`, cleanerID, models.StatusScheduled, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get cleaner schedule: %w", err)
	}
	return occs, nil
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func int64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
