package schedule

import (
	"testing"
	"time"

	"uborka/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weeklyParent(price float64) *models.Occurrence {
	return &models.Occurrence{
		ID:          1,
		Price:       price,
		ScheduledAt: date(2025, 1, 1),
		Status:      models.StatusScheduled,
		IsRecurring: true,
		Frequency:   models.FrequencyWeekly,
		SeriesState: models.SeriesActive,
	}
}

func childAt(id int64, at time.Time, status string) *models.Occurrence {
	parentID := int64(1)
	return &models.Occurrence{
		ID:          id,
		ParentID:    &parentID,
		ScheduledAt: at,
		Status:      status,
		IsRecurring: true,
	}
}

func TestSummarizeFreshSeries(t *testing.T) {
	// Creation scenario: weekly from Jan 1 bounded at Jan 22, price 100.
	parent := weeklyParent(100)
	end := date(2025, 1, 22)
	parent.RecurrenceEnd = &end
	children := []*models.Occurrence{
		childAt(2, date(2025, 1, 8), models.StatusScheduled),
		childAt(3, date(2025, 1, 15), models.StatusScheduled),
		childAt(4, date(2025, 1, 22), models.StatusScheduled),
	}

	now := date(2025, 1, 2)
	got := Summarize(parent, children, now)

	assert.Equal(t, models.SubscriptionActive, got.Status)
	assert.Equal(t, 4, got.TotalCount)
	assert.Equal(t, 3, got.UpcomingCount)
	assert.Equal(t, 0, got.CompletedCount)
	require.NotNil(t, got.NextOccurrence)
	assert.Equal(t, date(2025, 1, 8), *got.NextOccurrence)
	assert.Equal(t, 400.0, got.TotalRevenue)
	assert.Equal(t, 0.0, got.PaidRevenue)
	assert.Equal(t, 400.0, got.UnpaidRevenue)
}

func TestSummarizeParentCountsAsUpcoming(t *testing.T) {
	parent := weeklyParent(80)
	now := date(2024, 12, 31)

	got := Summarize(parent, nil, now)

	assert.Equal(t, models.SubscriptionActive, got.Status)
	assert.Equal(t, 1, got.TotalCount)
	assert.Equal(t, 1, got.UpcomingCount)
	require.NotNil(t, got.NextOccurrence)
	assert.Equal(t, parent.ScheduledAt, *got.NextOccurrence)
}

func TestSummarizeCompletedWhenNothingUpcoming(t *testing.T) {
	parent := weeklyParent(100)
	parent.Status = models.StatusCompleted
	children := []*models.Occurrence{
		childAt(2, date(2025, 1, 8), models.StatusCompleted),
		childAt(3, date(2025, 1, 15), models.StatusCancelled),
	}

	got := Summarize(parent, children, date(2025, 2, 1))

	assert.Equal(t, models.SubscriptionCompleted, got.Status)
	assert.Equal(t, 0, got.UpcomingCount)
	assert.Equal(t, 2, got.CompletedCount)
	assert.Nil(t, got.NextOccurrence)
}

func TestSummarizeElapsedEndBoundary(t *testing.T) {
	parent := weeklyParent(100)
	parent.Status = models.StatusCompleted
	end := date(2025, 1, 22)
	parent.RecurrenceEnd = &end
	children := []*models.Occurrence{
		childAt(2, date(2025, 1, 8), models.StatusCompleted),
	}

	got := Summarize(parent, children, date(2025, 3, 1))
	assert.Equal(t, models.SubscriptionCompleted, got.Status)
}

func TestSummarizeCancelledWinsOverEverything(t *testing.T) {
	parent := weeklyParent(100)
	parent.Status = models.StatusCancelled
	children := []*models.Occurrence{
		childAt(2, date(2025, 6, 1), models.StatusScheduled),
	}

	got := Summarize(parent, children, date(2025, 1, 2))
	assert.Equal(t, models.SubscriptionCancelled, got.Status)
}

func TestSummarizePastScheduledNotUpcoming(t *testing.T) {
	parent := weeklyParent(100)
	parent.Status = models.StatusNoShow
	children := []*models.Occurrence{
		childAt(2, date(2025, 1, 8), models.StatusScheduled), // in the past now
	}

	got := Summarize(parent, children, date(2025, 2, 1))
	assert.Equal(t, 0, got.UpcomingCount)
	assert.Equal(t, models.SubscriptionCompleted, got.Status)
}

func TestSummarizeRevenueUsesRootPriceOnly(t *testing.T) {
	parent := weeklyParent(100)
	repriced := childAt(2, date(2025, 1, 8), models.StatusScheduled)
	repriced.Price = 500 // per-occurrence override, ignored by the rollup
	repriced.IsPaid = true

	got := Summarize(parent, []*models.Occurrence{repriced}, date(2025, 1, 2))

	assert.Equal(t, 200.0, got.TotalRevenue)
	assert.Equal(t, 100.0, got.PaidRevenue)
	assert.Equal(t, 100.0, got.UnpaidRevenue)
}
