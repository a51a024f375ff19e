package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"uborka/internal/domain"
	"uborka/internal/events"
	"uborka/internal/metrics"
	"uborka/internal/models"
	"uborka/internal/schedule"

	"github.com/rs/zerolog"
)

// ErrSeriesLocked is returned when another pause/resume holds the series lock.
var ErrSeriesLocked = errors.New("series is locked by another operation")

// ErrNotRecurring is returned for lifecycle calls addressed to a one-time visit.
var ErrNotRecurring = errors.New("occurrence is not a recurring series")

// ErrSeriesCancelled rejects lifecycle transitions on a cancelled series.
var ErrSeriesCancelled = errors.New("series is cancelled")

// ErrSeriesCompleted rejects pausing a series with nothing left to pause.
var ErrSeriesCompleted = errors.New("series has no upcoming occurrences")

type SubscriptionService struct {
	repo          domain.Repository
	locks         domain.LockRepository
	eventBus      domain.EventPublisher
	sheetsWorker  domain.SyncWorker
	maxOccurr     int
	resumeHorizon int
	lockTTL       time.Duration
	logger        *zerolog.Logger
}

func NewSubscriptionService(
	repo domain.Repository,
	locks domain.LockRepository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	maxOccurrences int,
	resumeHorizonMonths int,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *SubscriptionService {
	if maxOccurrences <= 0 {
		maxOccurrences = models.DefaultMaxOccurrences
	}
	if resumeHorizonMonths <= 0 {
		resumeHorizonMonths = models.DefaultResumeHorizonMonths
	}
	if lockTTL <= 0 {
		lockTTL = models.SeriesLockTTLSeconds * time.Second
	}
	return &SubscriptionService{
		repo:          repo,
		locks:         locks,
		eventBus:      eventBus,
		sheetsWorker:  sheetsWorker,
		maxOccurr:     maxOccurrences,
		resumeHorizon: resumeHorizonMonths,
		lockTTL:       lockTTL,
		logger:        logger,
	}
}

// CreateRecurring persists a booking and, for recurring frequencies, expands
// it into its future occurrences. The returned conflicts list the generated
// instants that fall inside the cleaner's requested or approved time off;
// conflicts are advisory and never block creation.
func (s *SubscriptionService) CreateRecurring(ctx context.Context, root *models.Occurrence) (*models.Occurrence, []models.Occurrence, []schedule.TimeOffConflict, error) {
	if err := s.validateBooking(root); err != nil {
		return nil, nil, nil, err
	}

	if root.Frequency == "" {
		root.Frequency = models.FrequencyNone
	}
	if root.Frequency == models.FrequencyNone {
		root.IsRecurring = false
		if err := s.repo.CreateOccurrence(ctx, root); err != nil {
			return nil, nil, nil, err
		}
		s.publishEvent(events.EventSeriesCreated, root, 0, 0)
		s.enqueueSync(ctx, root, "upsert")
		return root, nil, nil, nil
	}

	root.IsRecurring = true
	instants, err := schedule.Sequence(root.ScheduledAt, root.Frequency, root.RecurrenceEnd, s.maxOccurr)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := s.repo.CreateOccurrence(ctx, root); err != nil {
		return nil, nil, nil, err
	}

	children := schedule.Materialize(models.TemplateFromOccurrence(root), root.ID, instants)
	if err := s.repo.BulkCreateOccurrences(ctx, children); err != nil {
		return nil, nil, nil, err
	}
	metrics.AddGenerated(len(children))

	conflicts := s.checkTimeOff(ctx, root.CleanerID, append([]time.Time{root.ScheduledAt}, instants...))

	s.publishEvent(events.EventSeriesCreated, root, len(children), 0)
	s.enqueueSync(ctx, root, "upsert")
	if s.sheetsWorker != nil {
		s.sheetsWorker.EnqueueSyncSchedule(ctx, time.Time{}, time.Time{})
	}

	return root, children, conflicts, nil
}

// GetSubscription derives the aggregate view of a series. Paused is reported
// in place of active; terminal derived statuses win, so a paused series whose
// occurrences all lie in the past still reads completed.
func (s *SubscriptionService) GetSubscription(ctx context.Context, rootID int64) (*schedule.SubscriptionSummary, error) {
	parent, children, err := s.repo.GetSeries(ctx, rootID)
	if err != nil {
		return nil, err
	}

	summary := schedule.Summarize(parent, children, time.Now())
	if parent.SeriesState == models.SeriesPaused && summary.Status == models.SubscriptionActive {
		summary.Status = models.SubscriptionPaused
	}
	return &summary, nil
}

// ListSubscriptions summarizes every recurring series.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context) ([]*schedule.SubscriptionSummary, error) {
	roots, err := s.repo.ListSeriesRoots(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*schedule.SubscriptionSummary, 0, len(roots))
	for _, root := range roots {
		summary, err := s.GetSubscription(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// Pause stops a series: future scheduled occurrences are removed and the root
// is marked paused. History stays. Returns how many occurrences were removed.
// Cancelled and run-out series cannot be paused.
func (s *SubscriptionService) Pause(ctx context.Context, rootID int64) (int, error) {
	root, err := s.repo.GetOccurrence(ctx, rootID)
	if err != nil {
		return 0, err
	}
	if !root.IsSeriesRoot() || !root.IsRecurring {
		return 0, ErrNotRecurring
	}
	if root.Status == models.StatusCancelled {
		return 0, ErrSeriesCancelled
	}

	token, err := s.lockSeries(ctx, rootID)
	if err != nil {
		return 0, err
	}
	defer s.unlockSeries(ctx, rootID, token)

	now := time.Now()
	if root.SeriesState == models.SeriesActive {
		upcoming, err := s.repo.CountFutureScheduled(ctx, rootID, now)
		if err != nil {
			return 0, err
		}
		if upcoming == 0 {
			return 0, ErrSeriesCompleted
		}
	}

	removed, err := s.repo.PauseSeries(ctx, rootID, now)
	if err != nil {
		return 0, err
	}

	metrics.AddRemoved(removed)
	metrics.IncTransition("pause")
	s.publishEvent(events.EventSeriesPaused, root, 0, removed)
	if s.sheetsWorker != nil {
		s.sheetsWorker.EnqueueSyncSchedule(ctx, time.Time{}, time.Time{})
	}

	s.logger.Info().Int64("series_id", rootID).Int("removed", removed).Msg("series paused")
	return removed, nil
}

// Resume reactivates a paused series and materializes its future occurrences
// from the root's current field values. Generation starts tomorrow and runs
// to the recurrence end, or to the configured horizon when no end is set.
// Occurrences that would have fallen inside the paused window are gone for
// good. The returned conflicts list regenerated instants that collide with
// the cleaner's approved time off; like on creation, they are advisory.
func (s *SubscriptionService) Resume(ctx context.Context, rootID int64) (int, []schedule.TimeOffConflict, error) {
	root, err := s.repo.GetOccurrence(ctx, rootID)
	if err != nil {
		return 0, nil, err
	}
	if !root.IsSeriesRoot() || !root.IsRecurring {
		return 0, nil, ErrNotRecurring
	}

	token, err := s.lockSeries(ctx, rootID)
	if err != nil {
		return 0, nil, err
	}
	defer s.unlockSeries(ctx, rootID, token)

	now := time.Now()
	start := now.AddDate(0, 0, 1)
	end := now.AddDate(0, s.resumeHorizon, 0)
	if root.RecurrenceEnd != nil && root.RecurrenceEnd.After(now) {
		end = *root.RecurrenceEnd
	}

	var instants []time.Time
	var regenerated []models.Occurrence
	if end.After(start) {
		instants, err = schedule.Sequence(start, root.Frequency, &end, s.maxOccurr)
		if err != nil {
			return 0, nil, err
		}
		regenerated = schedule.Materialize(models.TemplateFromOccurrence(root), root.ID, instants)
	}

	created, err := s.repo.ResumeSeries(ctx, rootID, regenerated)
	if err != nil {
		return 0, nil, err
	}

	conflicts := s.checkTimeOff(ctx, root.CleanerID, instants)

	metrics.AddGenerated(created)
	metrics.IncTransition("resume")
	s.publishEvent(events.EventSeriesResumed, root, created, 0)
	if s.sheetsWorker != nil {
		s.sheetsWorker.EnqueueSyncSchedule(ctx, time.Time{}, time.Time{})
	}

	s.logger.Info().Int64("series_id", rootID).Int("created", created).Msg("series resumed")
	return created, conflicts, nil
}

// CompleteOccurrence marks a single visit as serviced.
func (s *SubscriptionService) CompleteOccurrence(ctx context.Context, id, version int64) error {
	return s.updateStatus(ctx, id, version, models.StatusCompleted, events.EventOccurrenceCompleted)
}

// CancelOccurrence cancels a single visit without touching its series.
func (s *SubscriptionService) CancelOccurrence(ctx context.Context, id, version int64) error {
	return s.updateStatus(ctx, id, version, models.StatusCancelled, events.EventOccurrenceCanceled)
}

func (s *SubscriptionService) updateStatus(ctx context.Context, id, version int64, status, eventType string) error {
	if err := s.repo.UpdateOccurrenceStatusWithVersion(ctx, id, version, status); err != nil {
		return err
	}

	occ, err := s.repo.GetOccurrence(ctx, id)
	if err == nil {
		s.publishEvent(eventType, occ, 0, 0)
		s.enqueueSync(ctx, occ, "update_status")
	}
	return nil
}

// MarkPaid records payment for a single visit.
func (s *SubscriptionService) MarkPaid(ctx context.Context, id, version int64) error {
	if err := s.repo.MarkOccurrencePaid(ctx, id, version); err != nil {
		return err
	}

	occ, err := s.repo.GetOccurrence(ctx, id)
	if err == nil {
		s.publishEvent(events.EventOccurrencePaid, occ, 0, 0)
		s.enqueueSync(ctx, occ, "upsert")
	}
	return nil
}

// Reschedule moves a single visit. The rest of the series keeps its cadence.
func (s *SubscriptionService) Reschedule(ctx context.Context, id, version int64, newAt time.Time) error {
	if newAt.IsZero() {
		return fmt.Errorf("%w: new date is required", schedule.ErrValidation)
	}
	if err := s.repo.RescheduleOccurrenceWithVersion(ctx, id, version, newAt); err != nil {
		return err
	}

	occ, err := s.repo.GetOccurrence(ctx, id)
	if err == nil {
		s.publishEvent(events.EventOccurrenceMoved, occ, 0, 0)
		s.enqueueSync(ctx, occ, "upsert")
	}
	return nil
}

func (s *SubscriptionService) validateBooking(o *models.Occurrence) error {
	if o.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", schedule.ErrValidation)
	}
	if o.ClientID == 0 {
		return fmt.Errorf("%w: client_id is required", schedule.ErrValidation)
	}
	if o.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", schedule.ErrValidation)
	}
	if o.ParentID != nil {
		return fmt.Errorf("%w: a booking cannot reference a parent", schedule.ErrValidation)
	}
	if o.Frequency != "" && o.Frequency != models.FrequencyNone && !models.ValidFrequency(o.Frequency) {
		return fmt.Errorf("%w: unknown frequency %q", schedule.ErrValidation, o.Frequency)
	}
	if o.RecurrenceEnd != nil && o.RecurrenceEnd.Before(o.ScheduledAt) {
		return fmt.Errorf("%w: recurrence_end precedes scheduled_at", schedule.ErrValidation)
	}
	return nil
}

func (s *SubscriptionService) checkTimeOff(ctx context.Context, cleanerID int64, instants []time.Time) []schedule.TimeOffConflict {
	if cleanerID == 0 || len(instants) == 0 {
		return nil
	}

	windows, err := s.repo.GetTimeOffForCleaner(ctx, cleanerID, instants[0], instants[len(instants)-1])
	if err != nil {
		s.logger.Error().Err(err).Int64("cleaner_id", cleanerID).Msg("time off lookup failed")
		return nil
	}
	return schedule.ConflictingInstants(instants, windows)
}

func (s *SubscriptionService) lockSeries(ctx context.Context, rootID int64) (string, error) {
	if s.locks == nil {
		return "", nil
	}
	token, ok, err := s.locks.Lock(ctx, strconv.FormatInt(rootID, 10), s.lockTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrSeriesLocked
	}
	return token, nil
}

func (s *SubscriptionService) unlockSeries(ctx context.Context, rootID int64, token string) {
	if s.locks == nil || token == "" {
		return
	}
	if err := s.locks.Unlock(ctx, strconv.FormatInt(rootID, 10), token); err != nil {
		s.logger.Error().Err(err).Int64("series_id", rootID).Msg("series unlock failed")
	}
}

func (s *SubscriptionService) publishEvent(eventType string, occ *models.Occurrence, generated, removed int) {
	if s.eventBus == nil {
		return
	}

	payload := events.SeriesEventPayload{
		OccurrenceID: occ.ID,
		ClientID:     occ.ClientID,
		CleanerID:    occ.CleanerID,
		Frequency:    occ.Frequency,
		Status:       occ.Status,
		ScheduledAt:  occ.ScheduledAt,
		Generated:    generated,
		Removed:      removed,
	}
	if occ.ParentID != nil {
		payload.SeriesID = *occ.ParentID
	} else if occ.IsRecurring {
		payload.SeriesID = occ.ID
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("occurrence_id", occ.ID).Msg("publish event error")
	}
}

func (s *SubscriptionService) enqueueSync(ctx context.Context, occ *models.Occurrence, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == "update_status" {
		status = occ.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, occ.ID, occ, status); err != nil {
		s.logger.Error().Err(err).Int64("occurrence_id", occ.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
