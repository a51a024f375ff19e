package schedule

import (
	"time"

	"uborka/internal/models"
)

// SubscriptionSummary is the derived view of a series: one root plus its
// children rolled up into a single logical subscription. It is computed on
// demand and never persisted.
type SubscriptionSummary struct {
	ParentID       int64      `json:"parent_id"`
	Status         string     `json:"status"`
	TotalCount     int        `json:"total_count"`
	CompletedCount int        `json:"completed_count"`
	UpcomingCount  int        `json:"upcoming_count"`
	NextOccurrence *time.Time `json:"next_occurrence,omitempty"`
	TotalRevenue   float64    `json:"total_revenue"`
	PaidRevenue    float64    `json:"paid_revenue"`
	UnpaidRevenue  float64    `json:"unpaid_revenue"`
}

// Summarize derives the subscription view for a root and its children as of
// now. The paused override is applied by the lifecycle layer, which owns the
// series state; Summarize only reads the structural occurrence fields.
//
// Revenue uses the root's price for every occurrence. Per-occurrence price
// edits made after generation are intentionally not reflected here.
func Summarize(parent *models.Occurrence, children []*models.Occurrence, now time.Time) SubscriptionSummary {
	summary := SubscriptionSummary{
		ParentID:   parent.ID,
		TotalCount: 1 + len(children),
	}

	all := make([]*models.Occurrence, 0, 1+len(children))
	all = append(all, parent)
	all = append(all, children...)

	paidCount := 0
	for _, occ := range all {
		if occ.Status == models.StatusCompleted {
			summary.CompletedCount++
		}
		if occ.IsPaid {
			paidCount++
		}
		if isUpcoming(occ, now) {
			summary.UpcomingCount++
			if summary.NextOccurrence == nil || occ.ScheduledAt.Before(*summary.NextOccurrence) {
				at := occ.ScheduledAt
				summary.NextOccurrence = &at
			}
		}
	}

	summary.TotalRevenue = parent.Price * float64(summary.TotalCount)
	summary.PaidRevenue = parent.Price * float64(paidCount)
	summary.UnpaidRevenue = summary.TotalRevenue - summary.PaidRevenue
	summary.Status = deriveStatus(parent, summary.UpcomingCount, now)

	return summary
}

func isUpcoming(occ *models.Occurrence, now time.Time) bool {
	return occ.Status == models.StatusScheduled && !occ.ScheduledAt.Before(now)
}

// deriveStatus applies the precedence order: cancellation wins, then an
// elapsed end boundary with nothing upcoming, then exhaustion, then active.
func deriveStatus(parent *models.Occurrence, upcoming int, now time.Time) string {
	if parent.Status == models.StatusCancelled {
		return models.SubscriptionCancelled
	}
	if parent.RecurrenceEnd != nil && parent.RecurrenceEnd.Before(now) && upcoming == 0 {
		return models.SubscriptionCompleted
	}
	if upcoming == 0 {
		return models.SubscriptionCompleted
	}
	return models.SubscriptionActive
}
