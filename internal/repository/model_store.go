package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketState/internal/domain/models"
	domrepo "MarketState/internal/domain/repository"
	"MarketState/pkg/cache"
)

const defaultFitLockTTL = 2 * time.Minute

// CacheModelStore keeps fitted regime models in a cache.Service as JSON.
type CacheModelStore struct {
	c       cache.Service
	ttl     time.Duration
	lockTTL time.Duration
}

var _ domrepo.ModelStore = (*CacheModelStore)(nil)

// NewCacheModelStore stores models for ttl. A non-positive ttl keeps them
// until evicted.
func NewCacheModelStore(c cache.Service, ttl time.Duration) *CacheModelStore {
	return &CacheModelStore{c: c, ttl: ttl, lockTTL: defaultFitLockTTL}
}

func modelKey(symbol string) string { return cache.Key("model", symbol) }
func lockKey(symbol string) string  { return cache.Key("fitlock", symbol) }

func (s *CacheModelStore) Save(ctx context.Context, symbol string, p models.RegimeModelParameters) error {
	if err := s.c.Set(ctx, modelKey(symbol), p, s.ttl); err != nil {
		return fmt.Errorf("save model %s: %w", symbol, err)
	}
	return nil
}

// Load returns false without error when no model is stored.
func (s *CacheModelStore) Load(ctx context.Context, symbol string) (models.RegimeModelParameters, bool, error) {
	var p models.RegimeModelParameters
	err := s.c.Get(ctx, modelKey(symbol), &p)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return models.RegimeModelParameters{}, false, nil
	case err != nil:
		return models.RegimeModelParameters{}, false, fmt.Errorf("load model %s: %w", symbol, err)
	}
	return p, true, nil
}

func (s *CacheModelStore) TryLock(ctx context.Context, symbol string) (string, bool, error) {
	return s.c.TryLock(ctx, lockKey(symbol), s.lockTTL)
}

func (s *CacheModelStore) Unlock(ctx context.Context, symbol, token string) error {
	return s.c.Unlock(ctx, lockKey(symbol), token)
}
