package models

const (
	StatusScheduled        = "scheduled"
	StatusCleanerCompleted = "cleaner_completed"
	StatusCompleted        = "completed"
	StatusCancelled        = "cancelled"
	StatusNoShow           = "no_show"
)

const (
	FrequencyNone     = "none"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

const (
	SeriesActive = "active"
	SeriesPaused = "paused"
)

// Derived subscription statuses. Never persisted; computed per read.
const (
	SubscriptionActive    = "active"
	SubscriptionPaused    = "paused"
	SubscriptionCompleted = "completed"
	SubscriptionCancelled = "cancelled"
)

const (
	TimeOffRequested = "requested"
	TimeOffApproved  = "approved"
	TimeOffDeclined  = "declined"
)

const (
	// DefaultMaxOccurrences ограничивает длину генерируемой серии (примерно год еженедельных визитов)
	DefaultMaxOccurrences = 52

	// DefaultResumeHorizonMonths окно генерации при возобновлении без recurrence_end
	DefaultResumeHorizonMonths = 12

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultExportRangeMonths период экспорта расписания по умолчанию
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2

	// SeriesLockTTLSeconds время жизни advisory-блокировки серии в Redis
	SeriesLockTTLSeconds = 30

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60 // 1 час в секундах
)

// ValidFrequency reports whether the value names a recurrence cadence the
// sequencer understands. FrequencyNone is valid on a booking but not a
// sequencer input.
func ValidFrequency(freq string) bool {
	switch freq {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// ValidStatus reports whether the value is a known occurrence status.
func ValidStatus(status string) bool {
	switch status {
	case StatusScheduled, StatusCleanerCompleted, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}
