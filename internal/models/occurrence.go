package models

import "time"

// Occurrence is a single scheduled cleaning visit. A row with a nil ParentID
// is a series root; children generated from a root point back at it via
// ParentID and never have children of their own.
type Occurrence struct {
	ID              int64      `json:"id"`
	ClientID        int64      `json:"client_id"`
	CleanerID       int64      `json:"cleaner_id"`
	AddressID       int64      `json:"address_id"`
	ServiceType     string     `json:"service_type"`
	DurationMinutes int        `json:"duration_minutes"`
	Price           float64    `json:"price"`
	Notes           string     `json:"notes"`
	InternalNotes   string     `json:"internal_notes"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	Status          string     `json:"status"` // scheduled, cleaner_completed, completed, cancelled, no_show
	IsPaid          bool       `json:"is_paid"`
	IsRecurring     bool       `json:"is_recurring"`
	Frequency       string     `json:"frequency"`                 // authoritative on roots, display copy on children
	RecurrenceEnd   *time.Time `json:"recurrence_end,omitempty"`  // authoritative on roots only
	ParentID        *int64     `json:"parent_id,omitempty"`       // nil for series roots
	SeriesState     string     `json:"series_state,omitempty"`    // active or paused, roots only
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Version         int64      `json:"version"`
}

// IsSeriesRoot reports whether the occurrence anchors a series.
func (o *Occurrence) IsSeriesRoot() bool {
	return o.ParentID == nil
}

// OccurrenceTemplate carries every booking field except the date. The
// materializer stamps one copy of the template per generated instant.
type OccurrenceTemplate struct {
	ClientID        int64
	CleanerID       int64
	AddressID       int64
	ServiceType     string
	DurationMinutes int
	Price           float64
	Notes           string
	InternalNotes   string
	Frequency       string
	RecurrenceEnd   *time.Time
}

// TemplateFromOccurrence snapshots the current field values of a series root.
// Resume uses this so edits made to the root while paused carry forward.
func TemplateFromOccurrence(o *Occurrence) OccurrenceTemplate {
	return OccurrenceTemplate{
		ClientID:        o.ClientID,
		CleanerID:       o.CleanerID,
		AddressID:       o.AddressID,
		ServiceType:     o.ServiceType,
		DurationMinutes: o.DurationMinutes,
		Price:           o.Price,
		Notes:           o.Notes,
		InternalNotes:   o.InternalNotes,
		Frequency:       o.Frequency,
		RecurrenceEnd:   o.RecurrenceEnd,
	}
}
