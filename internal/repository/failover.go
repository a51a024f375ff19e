package repository

import (
	"context"
	"sync/atomic"
	"time"

	"uborka/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLockRepository prefers the primary (Redis) and degrades to the
// in-memory repository when it errors, probing the primary again after a
// minute.
type FailoverLockRepository struct {
	primary   domain.LockRepository
	fallback  domain.LockRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverLockRepository(primary, fallback domain.LockRepository, logger *zerolog.Logger) *FailoverLockRepository {
	return &FailoverLockRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLockRepository) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !r.isDown.Load() {
		token, ok, err := r.primary.Lock(ctx, key, ttl)
		if err == nil {
			return token, ok, nil
		}
		r.logger.Error().Err(err).Msg("Primary lock repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		token, ok, err := r.primary.Lock(ctx, key, ttl)
		if err == nil {
			r.isDown.Store(false)
			return token, ok, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.Lock(ctx, key, ttl)
}

func (r *FailoverLockRepository) Unlock(ctx context.Context, key, token string) error {
	if !r.isDown.Load() {
		err := r.primary.Unlock(ctx, key, token)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary lock repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Unlock(ctx, key, token)
}
