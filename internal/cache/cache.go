package cache

import (
	"context"
	"time"

	"pdvlite/backend/internal/domain"
)

// SessionCache holds the current open cash session for the short window
// between register polls. Open and close must invalidate.
type SessionCache interface {
	Get(ctx context.Context, key string) (*domain.CashSession, bool, error)
	Set(ctx context.Context, key string, value *domain.CashSession, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopSessionCache struct{}

func (NoopSessionCache) Get(_ context.Context, _ string) (*domain.CashSession, bool, error) {
	return nil, false, nil
}

func (NoopSessionCache) Set(_ context.Context, _ string, _ *domain.CashSession, _ time.Duration) error {
	return nil
}

func (NoopSessionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
