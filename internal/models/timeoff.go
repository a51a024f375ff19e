package models

import "time"

// TimeOff is a cleaner's unavailability window. Dates are inclusive instants,
// already resolved by the caller; the scheduler only compares them.
type TimeOff struct {
	ID        int64     `json:"id"`
	CleanerID int64     `json:"cleaner_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason,omitempty"`
	Status    string    `json:"status"` // requested, approved, declined
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Covers reports whether the instant falls inside the window.
func (t *TimeOff) Covers(at time.Time) bool {
	return !at.Before(t.StartDate) && !at.After(t.EndDate)
}
