package service

import (
	"context"
	"io"
	"testing"
	"time"

	"uborka/internal/database"
	"uborka/internal/models"
	"uborka/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateOccurrence(ctx context.Context, o *models.Occurrence) error {
	return m.Called(ctx, o).Error(0)
}
func (m *mockRepo) BulkCreateOccurrences(ctx context.Context, occs []models.Occurrence) error {
	return m.Called(ctx, occs).Error(0)
}
func (m *mockRepo) GetOccurrence(ctx context.Context, id int64) (*models.Occurrence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Occurrence), args.Error(1)
}
func (m *mockRepo) GetSeries(ctx context.Context, rootID int64) (*models.Occurrence, []*models.Occurrence, error) {
	args := m.Called(ctx, rootID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var children []*models.Occurrence
	if args.Get(1) != nil {
		children = args.Get(1).([]*models.Occurrence)
	}
	return args.Get(0).(*models.Occurrence), children, args.Error(2)
}
func (m *mockRepo) ListSeriesRoots(ctx context.Context) ([]*models.Occurrence, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Occurrence), args.Error(1)
}
func (m *mockRepo) GetOccurrencesByDateRange(ctx context.Context, s, e time.Time) ([]*models.Occurrence, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Occurrence), args.Error(1)
}
func (m *mockRepo) GetDailySchedule(ctx context.Context, s, e time.Time) (map[string][]*models.Occurrence, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*models.Occurrence), args.Error(1)
}
func (m *mockRepo) UpdateOccurrenceStatusWithVersion(ctx context.Context, id, v int64, s string) error {
	return m.Called(ctx, id, v, s).Error(0)
}
func (m *mockRepo) MarkOccurrencePaid(ctx context.Context, id, v int64) error {
	return m.Called(ctx, id, v).Error(0)
}
func (m *mockRepo) RescheduleOccurrenceWithVersion(ctx context.Context, id, v int64, at time.Time) error {
	return m.Called(ctx, id, v, at).Error(0)
}
func (m *mockRepo) PauseSeries(ctx context.Context, rootID int64, now time.Time) (int, error) {
	args := m.Called(ctx, rootID, now)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) ResumeSeries(ctx context.Context, rootID int64, occs []models.Occurrence) (int, error) {
	args := m.Called(ctx, rootID, occs)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) CountFutureScheduled(ctx context.Context, rootID int64, now time.Time) (int, error) {
	args := m.Called(ctx, rootID, now)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) GetScheduledForCleaner(ctx context.Context, cid int64, s, e time.Time) ([]*models.Occurrence, error) {
	args := m.Called(ctx, cid, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Occurrence), args.Error(1)
}
func (m *mockRepo) CreateTimeOff(ctx context.Context, t *models.TimeOff) error {
	return m.Called(ctx, t).Error(0)
}
func (m *mockRepo) GetTimeOff(ctx context.Context, id int64) (*models.TimeOff, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimeOff), args.Error(1)
}
func (m *mockRepo) UpdateTimeOffStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockRepo) GetTimeOffForCleaner(ctx context.Context, cid int64, s, e time.Time) ([]models.TimeOff, error) {
	args := m.Called(ctx, cid, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TimeOff), args.Error(1)
}
func (m *mockRepo) SetCleaners(cleaners []models.Cleaner) { m.Called(cleaners) }
func (m *mockRepo) GetCleaners() []models.Cleaner {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.Cleaner)
}
func (m *mockRepo) GetCleanerByID(id int64) (models.Cleaner, bool) {
	args := m.Called(id)
	return args.Get(0).(models.Cleaner), args.Bool(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, oid int64, o *models.Occurrence, s string) error {
	return m.Called(ctx, tt, oid, o, s).Error(0)
}
func (m *mockWorker) EnqueueSyncSchedule(ctx context.Context, s, e time.Time) error {
	return m.Called(ctx, s, e).Error(0)
}

type mockLocks struct {
	mock.Mock
}

func (m *mockLocks) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *mockLocks) Unlock(ctx context.Context, key, token string) error {
	return m.Called(ctx, key, token).Error(0)
}

func newTestService(repo *mockRepo, locks *mockLocks, bus *mockEventBus, worker *mockWorker) *SubscriptionService {
	logger := zerolog.New(io.Discard)
	return NewSubscriptionService(repo, locks, bus, worker, 4, 12, 30*time.Second, &logger)
}

func TestCreateRecurring(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	t.Run("RecurringExpandsChildren", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(repo, new(mockLocks), bus, worker)

		root := &models.Occurrence{ClientID: 1, CleanerID: 5, Price: 100, ScheduledAt: start, Frequency: models.FrequencyWeekly}

		repo.On("CreateOccurrence", ctx, root).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Occurrence).ID = 77
		}).Return(nil).Once()
		repo.On("BulkCreateOccurrences", ctx, mock.AnythingOfType("[]models.Occurrence")).Return(nil).Once()
		repo.On("GetTimeOffForCleaner", ctx, int64(5), mock.Anything, mock.Anything).Return([]models.TimeOff(nil), nil).Once()
		bus.On("PublishJSON", "series_created", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", int64(77), mock.Anything, "").Return(nil).Once()
		worker.On("EnqueueSyncSchedule", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		created, children, conflicts, err := svc.CreateRecurring(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, int64(77), created.ID)
		require.Len(t, children, 4)
		for i, c := range children {
			require.NotNil(t, c.ParentID)
			assert.Equal(t, int64(77), *c.ParentID)
			assert.True(t, c.ScheduledAt.Equal(start.AddDate(0, 0, 7*(i+1))))
		}
		assert.Empty(t, conflicts)
		repo.AssertExpectations(t)
	})

	t.Run("OneTimeCreatesNoChildren", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(repo, new(mockLocks), bus, worker)

		root := &models.Occurrence{ClientID: 1, Price: 80, ScheduledAt: start}

		repo.On("CreateOccurrence", ctx, root).Return(nil).Once()
		bus.On("PublishJSON", "series_created", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", int64(0), mock.Anything, "").Return(nil).Once()

		_, children, conflicts, err := svc.CreateRecurring(ctx, root)
		require.NoError(t, err)
		assert.Empty(t, children)
		assert.Empty(t, conflicts)
		assert.False(t, root.IsRecurring)
		repo.AssertNotCalled(t, "BulkCreateOccurrences", mock.Anything, mock.Anything)
	})

	t.Run("ReportsTimeOffConflicts", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(repo, new(mockLocks), bus, worker)

		root := &models.Occurrence{ClientID: 1, CleanerID: 5, Price: 100, ScheduledAt: start, Frequency: models.FrequencyWeekly}
		windows := []models.TimeOff{{
			ID:        9,
			CleanerID: 5,
			StartDate: start.AddDate(0, 0, 6),
			EndDate:   start.AddDate(0, 0, 8),
			Status:    models.TimeOffApproved,
		}}

		repo.On("CreateOccurrence", ctx, root).Return(nil).Once()
		repo.On("BulkCreateOccurrences", ctx, mock.Anything).Return(nil).Once()
		repo.On("GetTimeOffForCleaner", ctx, int64(5), mock.Anything, mock.Anything).Return(windows, nil).Once()
		bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
		worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		worker.On("EnqueueSyncSchedule", ctx, mock.Anything, mock.Anything).Return(nil)

		_, _, conflicts, err := svc.CreateRecurring(ctx, root)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.True(t, conflicts[0].ScheduledAt.Equal(start.AddDate(0, 0, 7)))
		assert.Equal(t, int64(9), conflicts[0].TimeOff.ID)
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		svc := newTestService(new(mockRepo), new(mockLocks), new(mockEventBus), new(mockWorker))

		cases := []*models.Occurrence{
			{ClientID: 1, Price: 10},                                                          // no date
			{Price: 10, ScheduledAt: start},                                                   // no client
			{ClientID: 1, Price: -5, ScheduledAt: start},                                      // negative price
			{ClientID: 1, Price: 10, ScheduledAt: start, Frequency: "fortnightly"},            // bad frequency
			{ClientID: 1, Price: 10, ScheduledAt: start, RecurrenceEnd: timeRef(start.AddDate(0, 0, -1))}, // end before start
		}
		for _, c := range cases {
			_, _, _, err := svc.CreateRecurring(ctx, c)
			assert.ErrorIs(t, err, schedule.ErrValidation)
		}
	})
}

func timeRef(t time.Time) *time.Time { return &t }

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	recurringRoot := func() *models.Occurrence {
		return &models.Occurrence{ID: 77, ClientID: 1, Price: 100, ScheduledAt: start,
			IsRecurring: true, Frequency: models.FrequencyWeekly, SeriesState: models.SeriesActive}
	}

	t.Run("Pause", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, bus, worker)

		repo.On("GetOccurrence", ctx, int64(77)).Return(recurringRoot(), nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("tok", true, nil).Once()
		locks.On("Unlock", ctx, "77", "tok").Return(nil).Once()
		repo.On("CountFutureScheduled", ctx, int64(77), mock.AnythingOfType("time.Time")).Return(3, nil).Once()
		repo.On("PauseSeries", ctx, int64(77), mock.AnythingOfType("time.Time")).Return(3, nil).Once()
		bus.On("PublishJSON", "series_paused", mock.Anything).Return(nil).Once()
		worker.On("EnqueueSyncSchedule", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		removed, err := svc.Pause(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)
		locks.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("PauseRejectsOneTime", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		oneTime := &models.Occurrence{ID: 5, IsRecurring: false}
		repo.On("GetOccurrence", ctx, int64(5)).Return(oneTime, nil).Once()

		_, err := svc.Pause(ctx, 5)
		assert.ErrorIs(t, err, ErrNotRecurring)
	})

	t.Run("PauseRejectsCancelled", func(t *testing.T) {
		repo := new(mockRepo)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, new(mockEventBus), new(mockWorker))

		root := recurringRoot()
		root.Status = models.StatusCancelled
		repo.On("GetOccurrence", ctx, int64(77)).Return(root, nil).Once()

		_, err := svc.Pause(ctx, 77)
		assert.ErrorIs(t, err, ErrSeriesCancelled)
		locks.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "PauseSeries", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PauseRejectsRunOutSeries", func(t *testing.T) {
		repo := new(mockRepo)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, new(mockEventBus), new(mockWorker))

		repo.On("GetOccurrence", ctx, int64(77)).Return(recurringRoot(), nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("tok", true, nil).Once()
		locks.On("Unlock", ctx, "77", "tok").Return(nil).Once()
		repo.On("CountFutureScheduled", ctx, int64(77), mock.AnythingOfType("time.Time")).Return(0, nil).Once()

		_, err := svc.Pause(ctx, 77)
		assert.ErrorIs(t, err, ErrSeriesCompleted)
		repo.AssertNotCalled(t, "PauseSeries", mock.Anything, mock.Anything, mock.Anything)
		locks.AssertExpectations(t)
	})

	t.Run("PauseLockContention", func(t *testing.T) {
		repo := new(mockRepo)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, new(mockEventBus), new(mockWorker))

		repo.On("GetOccurrence", ctx, int64(77)).Return(recurringRoot(), nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("", false, nil).Once()

		_, err := svc.Pause(ctx, 77)
		assert.ErrorIs(t, err, ErrSeriesLocked)
		repo.AssertNotCalled(t, "PauseSeries", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ResumeGeneratesForward", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, bus, worker)

		root := recurringRoot()
		root.SeriesState = models.SeriesPaused

		var inserted []models.Occurrence
		repo.On("GetOccurrence", ctx, int64(77)).Return(root, nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("tok", true, nil).Once()
		locks.On("Unlock", ctx, "77", "tok").Return(nil).Once()
		repo.On("ResumeSeries", ctx, int64(77), mock.AnythingOfType("[]models.Occurrence")).
			Run(func(args mock.Arguments) {
				inserted = args.Get(2).([]models.Occurrence)
			}).Return(4, nil).Once()
		bus.On("PublishJSON", "series_resumed", mock.Anything).Return(nil).Once()
		worker.On("EnqueueSyncSchedule", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		created, conflicts, err := svc.Resume(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, 4, created)
		assert.Empty(t, conflicts)

		// everything regenerated lies strictly in the future
		now := time.Now()
		require.Len(t, inserted, 4)
		for _, occ := range inserted {
			assert.True(t, occ.ScheduledAt.After(now))
			require.NotNil(t, occ.ParentID)
			assert.Equal(t, int64(77), *occ.ParentID)
		}
	})

	t.Run("ResumeRespectsElapsedEnd", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, bus, worker)

		root := recurringRoot()
		past := time.Now().AddDate(0, 0, -7)
		root.RecurrenceEnd = &past

		repo.On("GetOccurrence", ctx, int64(77)).Return(root, nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("tok", true, nil).Once()
		locks.On("Unlock", ctx, "77", "tok").Return(nil).Once()
		repo.On("ResumeSeries", ctx, int64(77), mock.AnythingOfType("[]models.Occurrence")).
			Run(func(args mock.Arguments) {
				// elapsed end falls back to the horizon window, never the past
				for _, occ := range args.Get(2).([]models.Occurrence) {
					assert.True(t, occ.ScheduledAt.After(time.Now()))
				}
			}).Return(0, nil).Once()
		bus.On("PublishJSON", "series_resumed", mock.Anything).Return(nil).Once()
		worker.On("EnqueueSyncSchedule", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		_, _, err := svc.Resume(ctx, 77)
		require.NoError(t, err)
	})

	t.Run("ResumeReportsTimeOffConflicts", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, bus, worker)

		root := recurringRoot()
		root.CleanerID = 5
		root.SeriesState = models.SeriesPaused

		windows := []models.TimeOff{{
			ID:        9,
			CleanerID: 5,
			StartDate: time.Now(),
			EndDate:   time.Now().AddDate(0, 2, 0),
			Status:    models.TimeOffApproved,
		}}

		repo.On("GetOccurrence", ctx, int64(77)).Return(root, nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("tok", true, nil).Once()
		locks.On("Unlock", ctx, "77", "tok").Return(nil).Once()
		repo.On("ResumeSeries", ctx, int64(77), mock.AnythingOfType("[]models.Occurrence")).Return(4, nil).Once()
		repo.On("GetTimeOffForCleaner", ctx, int64(5), mock.Anything, mock.Anything).Return(windows, nil).Once()
		bus.On("PublishJSON", "series_resumed", mock.Anything).Return(nil).Once()
		worker.On("EnqueueSyncSchedule", ctx, mock.Anything, mock.Anything).Return(nil).Once()

		_, conflicts, err := svc.Resume(ctx, 77)
		require.NoError(t, err)
		require.NotEmpty(t, conflicts)
		for _, c := range conflicts {
			assert.Equal(t, int64(9), c.TimeOff.ID)
			assert.True(t, c.ScheduledAt.After(time.Now()))
		}
		repo.AssertExpectations(t)
	})

	t.Run("ResumeNotPaused", func(t *testing.T) {
		repo := new(mockRepo)
		locks := new(mockLocks)
		svc := newTestService(repo, locks, new(mockEventBus), new(mockWorker))

		repo.On("GetOccurrence", ctx, int64(77)).Return(recurringRoot(), nil).Once()
		locks.On("Lock", ctx, "77", 30*time.Second).Return("tok", true, nil).Once()
		locks.On("Unlock", ctx, "77", "tok").Return(nil).Once()
		repo.On("ResumeSeries", ctx, int64(77), mock.Anything).Return(0, database.ErrNotPaused).Once()

		_, _, err := svc.Resume(ctx, 77)
		assert.ErrorIs(t, err, database.ErrNotPaused)
	})
}

func TestGetSubscription(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("ActiveSeries", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		root := &models.Occurrence{ID: 1, Price: 100, ScheduledAt: start, Status: models.StatusScheduled,
			IsRecurring: true, SeriesState: models.SeriesActive}
		pid := root.ID
		children := []*models.Occurrence{
			{ID: 2, ParentID: &pid, Price: 100, ScheduledAt: start.AddDate(0, 0, 7), Status: models.StatusScheduled},
			{ID: 3, ParentID: &pid, Price: 100, ScheduledAt: start.AddDate(0, 0, 14), Status: models.StatusScheduled},
		}

		repo.On("GetSeries", ctx, int64(1)).Return(root, children, nil).Once()

		summary, err := svc.GetSubscription(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionActive, summary.Status)
		assert.Equal(t, 3, summary.TotalCount)
		assert.Equal(t, float64(300), summary.TotalRevenue)
		require.NotNil(t, summary.NextOccurrence)
		assert.True(t, summary.NextOccurrence.Equal(start))
	})

	t.Run("PausedOverride", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		root := &models.Occurrence{ID: 1, Price: 100, ScheduledAt: start, Status: models.StatusScheduled,
			IsRecurring: true, SeriesState: models.SeriesPaused}

		repo.On("GetSeries", ctx, int64(1)).Return(root, []*models.Occurrence(nil), nil).Once()

		summary, err := svc.GetSubscription(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionPaused, summary.Status)
	})

	t.Run("PausedWithOnlyHistoryReportsCompleted", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		// only history left after the pause: reads completed until Resume
		past := time.Now().AddDate(0, 0, -30)
		root := &models.Occurrence{ID: 1, Price: 100, ScheduledAt: past, Status: models.StatusCompleted,
			IsRecurring: true, SeriesState: models.SeriesPaused}
		pid := root.ID
		children := []*models.Occurrence{
			{ID: 2, ParentID: &pid, Price: 100, ScheduledAt: past.AddDate(0, 0, 7), Status: models.StatusCompleted},
		}

		repo.On("GetSeries", ctx, int64(1)).Return(root, children, nil).Once()

		summary, err := svc.GetSubscription(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionCompleted, summary.Status)
	})

	t.Run("CancelledWinsOverPaused", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		root := &models.Occurrence{ID: 1, Price: 100, ScheduledAt: start, Status: models.StatusCancelled,
			IsRecurring: true, SeriesState: models.SeriesPaused}

		repo.On("GetSeries", ctx, int64(1)).Return(root, []*models.Occurrence(nil), nil).Once()

		summary, err := svc.GetSubscription(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionCancelled, summary.Status)
	})

	t.Run("List", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		r1 := &models.Occurrence{ID: 1, Price: 50, ScheduledAt: start, Status: models.StatusScheduled,
			IsRecurring: true, SeriesState: models.SeriesActive}
		r2 := &models.Occurrence{ID: 2, Price: 60, ScheduledAt: start, Status: models.StatusScheduled,
			IsRecurring: true, SeriesState: models.SeriesPaused}

		repo.On("ListSeriesRoots", ctx).Return([]*models.Occurrence{r1, r2}, nil).Once()
		repo.On("GetSeries", ctx, int64(1)).Return(r1, []*models.Occurrence(nil), nil).Once()
		repo.On("GetSeries", ctx, int64(2)).Return(r2, []*models.Occurrence(nil), nil).Once()

		summaries, err := svc.ListSubscriptions(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, models.SubscriptionActive, summaries[0].Status)
		assert.Equal(t, models.SubscriptionPaused, summaries[1].Status)
	})
}

func TestOccurrenceOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("Complete", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(repo, new(mockLocks), bus, worker)

		occ := &models.Occurrence{ID: 10, Status: models.StatusCompleted}
		repo.On("UpdateOccurrenceStatusWithVersion", ctx, int64(10), int64(1), models.StatusCompleted).Return(nil).Once()
		repo.On("GetOccurrence", ctx, int64(10)).Return(occ, nil).Once()
		bus.On("PublishJSON", "occurrence_completed", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "update_status", int64(10), occ, models.StatusCompleted).Return(nil).Once()

		require.NoError(t, svc.CompleteOccurrence(ctx, 10, 1))
		repo.AssertExpectations(t)
	})

	t.Run("StaleVersion", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newTestService(repo, new(mockLocks), new(mockEventBus), new(mockWorker))

		repo.On("UpdateOccurrenceStatusWithVersion", ctx, int64(10), int64(1), models.StatusCancelled).
			Return(database.ErrConcurrentModification).Once()

		err := svc.CancelOccurrence(ctx, 10, 1)
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
	})

	t.Run("MarkPaid", func(t *testing.T) {
		repo := new(mockRepo)
		bus := new(mockEventBus)
		worker := new(mockWorker)
		svc := newTestService(repo, new(mockLocks), bus, worker)

		occ := &models.Occurrence{ID: 11, IsPaid: true}
		repo.On("MarkOccurrencePaid", ctx, int64(11), int64(2)).Return(nil).Once()
		repo.On("GetOccurrence", ctx, int64(11)).Return(occ, nil).Once()
		bus.On("PublishJSON", "occurrence_paid", mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, "upsert", int64(11), occ, "").Return(nil).Once()

		require.NoError(t, svc.MarkPaid(ctx, 11, 2))
	})

	t.Run("RescheduleRequiresDate", func(t *testing.T) {
		svc := newTestService(new(mockRepo), new(mockLocks), new(mockEventBus), new(mockWorker))
		err := svc.Reschedule(ctx, 10, 1, time.Time{})
		assert.ErrorIs(t, err, schedule.ErrValidation)
	})
}
