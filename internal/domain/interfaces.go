package domain

import (
	"context"
	"time"

	"uborka/internal/models"
	"uborka/internal/schedule"
)

type Repository interface {
	CreateOccurrence(ctx context.Context, o *models.Occurrence) error
	BulkCreateOccurrences(ctx context.Context, occs []models.Occurrence) error
	GetOccurrence(ctx context.Context, id int64) (*models.Occurrence, error)
	GetSeries(ctx context.Context, rootID int64) (*models.Occurrence, []*models.Occurrence, error)
	ListSeriesRoots(ctx context.Context) ([]*models.Occurrence, error)
	GetOccurrencesByDateRange(ctx context.Context, start, end time.Time) ([]*models.Occurrence, error)
	GetDailySchedule(ctx context.Context, start, end time.Time) (map[string][]*models.Occurrence, error)
	UpdateOccurrenceStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	MarkOccurrencePaid(ctx context.Context, id, fromVersion int64) error
	RescheduleOccurrenceWithVersion(ctx context.Context, id, fromVersion int64, newAt time.Time) error
	PauseSeries(ctx context.Context, rootID int64, now time.Time) (int, error)
	ResumeSeries(ctx context.Context, rootID int64, occs []models.Occurrence) (int, error)
	CountFutureScheduled(ctx context.Context, rootID int64, now time.Time) (int, error)
	GetScheduledForCleaner(ctx context.Context, cleanerID int64, start, end time.Time) ([]*models.Occurrence, error)
	CreateTimeOff(ctx context.Context, t *models.TimeOff) error
	GetTimeOff(ctx context.Context, id int64) (*models.TimeOff, error)
	UpdateTimeOffStatus(ctx context.Context, id int64, status string) error
	GetTimeOffForCleaner(ctx context.Context, cleanerID int64, start, end time.Time) ([]models.TimeOff, error)
	SetCleaners(cleaners []models.Cleaner)
	GetCleaners() []models.Cleaner
	GetCleanerByID(id int64) (models.Cleaner, bool)
}

// LockRepository guards series transitions across processes. Unlock must be
// called with the token Lock returned; a foreign token is a no-op.
type LockRepository interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SheetsWriter is the subset of the Sheets integration the sync worker drives.
type SheetsWriter interface {
	UpsertOccurrence(ctx context.Context, o *models.Occurrence) error
	DeleteOccurrenceRow(ctx context.Context, id int64) error
	UpdateOccurrenceStatus(ctx context.Context, id int64, status string) error
	UpdateScheduleSheet(
		ctx context.Context,
		startDate, endDate time.Time,
		daily map[string][]*models.Occurrence,
		cleaners []models.Cleaner,
	) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, occurrenceID int64, o *models.Occurrence, status string) error
	EnqueueSyncSchedule(ctx context.Context, startDate, endDate time.Time) error
}

type SubscriptionService interface {
	CreateRecurring(ctx context.Context, root *models.Occurrence) (*models.Occurrence, []models.Occurrence, []schedule.TimeOffConflict, error)
	GetSubscription(ctx context.Context, rootID int64) (*schedule.SubscriptionSummary, error)
	ListSubscriptions(ctx context.Context) ([]*schedule.SubscriptionSummary, error)
	Pause(ctx context.Context, rootID int64) (int, error)
	Resume(ctx context.Context, rootID int64) (int, []schedule.TimeOffConflict, error)
	CompleteOccurrence(ctx context.Context, id, version int64) error
	CancelOccurrence(ctx context.Context, id, version int64) error
	MarkPaid(ctx context.Context, id, version int64) error
	Reschedule(ctx context.Context, id, version int64, newAt time.Time) error
}

type TimeOffService interface {
	Request(ctx context.Context, off *models.TimeOff) ([]*models.Occurrence, error)
	Approve(ctx context.Context, id int64) error
	Decline(ctx context.Context, id int64) error
}
