package service

import (
	"context"
	"fmt"

	"uborka/internal/domain"
	"uborka/internal/events"
	"uborka/internal/models"
	"uborka/internal/schedule"

	"github.com/rs/zerolog"
)

type TimeOffService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewTimeOffService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *TimeOffService {
	return &TimeOffService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Request files a time-off window and reports the cleaner's already scheduled
// visits that fall inside it. The visits are returned for a manager to act on;
// nothing is reassigned or cancelled automatically.
func (s *TimeOffService) Request(ctx context.Context, off *models.TimeOff) ([]*models.Occurrence, error) {
	if off.CleanerID == 0 {
		return nil, fmt.Errorf("%w: cleaner_id is required", schedule.ErrValidation)
	}
	if off.StartDate.IsZero() || off.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", schedule.ErrValidation)
	}
	if off.EndDate.Before(off.StartDate) {
		return nil, fmt.Errorf("%w: end date precedes start date", schedule.ErrValidation)
	}

	if err := s.repo.CreateTimeOff(ctx, off); err != nil {
		return nil, err
	}

	affected, err := s.repo.GetScheduledForCleaner(ctx, off.CleanerID, off.StartDate, off.EndDate)
	if err != nil {
		s.logger.Error().Err(err).Int64("cleaner_id", off.CleanerID).Msg("conflict lookup failed")
		affected = nil
	}

	if s.eventBus != nil {
		payload := events.TimeOffEventPayload{
			TimeOffID: off.ID,
			CleanerID: off.CleanerID,
			StartDate: off.StartDate,
			EndDate:   off.EndDate,
			Conflicts: len(affected),
		}
		if err := s.eventBus.PublishJSON(events.EventTimeOffRequested, payload); err != nil {
			s.logger.Error().Err(err).Int64("timeoff_id", off.ID).Msg("publish event error")
		}
	}

	return affected, nil
}

// Approve confirms a time-off request.
func (s *TimeOffService) Approve(ctx context.Context, id int64) error {
	return s.repo.UpdateTimeOffStatus(ctx, id, models.TimeOffApproved)
}

// Decline rejects a time-off request; declined windows stop conflicting.
func (s *TimeOffService) Decline(ctx context.Context, id int64) error {
	return s.repo.UpdateTimeOffStatus(ctx, id, models.TimeOffDeclined)
}
