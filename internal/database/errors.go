package database

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentModification signals a lost optimistic-version race.
	ErrConcurrentModification = errors.New("record was modified concurrently")

	// ErrNotSeriesRoot rejects lifecycle operations addressed at a child.
	ErrNotSeriesRoot = errors.New("occurrence is not a series root")

	// ErrAlreadyPaused rejects pausing a series that is not active.
	ErrAlreadyPaused = errors.New("series is already paused")

	// ErrNotPaused rejects resuming a series that carries no pause state.
	ErrNotPaused = errors.New("series is not paused")
)
