package schedule

import (
	"time"

	"uborka/internal/models"
)

// Materialize builds one occurrence record per instant from the template.
// Every template field is copied verbatim; the scheduling fields are stamped:
// the child points at parentID, starts out scheduled and unpaid, and carries
// the frequency only as a display copy.
//
// Materialize constructs records without touching storage. Persisting them is
// the caller's job and must happen as a single atomic bulk insert so a failed
// insert never leaves a half-generated series visible.
func Materialize(tmpl models.OccurrenceTemplate, parentID int64, instants []time.Time) []models.Occurrence {
	out := make([]models.Occurrence, 0, len(instants))
	for _, at := range instants {
		pid := parentID
		out = append(out, models.Occurrence{
			ClientID:        tmpl.ClientID,
			CleanerID:       tmpl.CleanerID,
			AddressID:       tmpl.AddressID,
			ServiceType:     tmpl.ServiceType,
			DurationMinutes: tmpl.DurationMinutes,
			Price:           tmpl.Price,
			Notes:           tmpl.Notes,
			InternalNotes:   tmpl.InternalNotes,
			ScheduledAt:     at,
			Status:          models.StatusScheduled,
			IsPaid:          false,
			IsRecurring:     true,
			Frequency:       tmpl.Frequency,
			ParentID:        &pid,
			Version:         1,
		})
	}
	return out
}
