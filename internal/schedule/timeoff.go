package schedule

import (
	"time"

	"uborka/internal/models"
)

// TimeOffConflict pairs a generated instant with the time-off window it
// collides with. Conflicts are reported, never resolved: the scheduler does
// not reassign cleaners.
type TimeOffConflict struct {
	ScheduledAt time.Time      `json:"scheduled_at"`
	TimeOff     models.TimeOff `json:"time_off"`
}

// ConflictingInstants returns, in input order, the instants that fall inside
// any of the cleaner's time-off windows. Declined windows never conflict.
func ConflictingInstants(instants []time.Time, windows []models.TimeOff) []TimeOffConflict {
	var conflicts []TimeOffConflict
	for _, at := range instants {
		for i := range windows {
			if windows[i].Status == models.TimeOffDeclined {
				continue
			}
			if windows[i].Covers(at) {
				conflicts = append(conflicts, TimeOffConflict{ScheduledAt: at, TimeOff: windows[i]})
				break
			}
		}
	}
	return conflicts
}
