package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLockRepository is the in-process fallback used when Redis is down.
// Locks taken here only guard against races inside one process, which is
// still enough for a single-instance deployment.
type MemoryLockRepository struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
}

type memoryLockEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{
		locks: make(map[string]memoryLockEntry),
	}
}

func (r *MemoryLockRepository) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if entry, ok := r.locks[key]; ok && now.Before(entry.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	r.locks[key] = memoryLockEntry{
		token:     token,
		expiresAt: now.Add(ttl),
	}
	return token, true, nil
}

func (r *MemoryLockRepository) Unlock(ctx context.Context, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.locks[key]; ok && entry.token == token {
		delete(r.locks, key)
	}
	return nil
}
