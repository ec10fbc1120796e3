package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/marcogenualdo/edge-bridge/internal/cache"
)

const noncePrefix = "bridge:nonce:"

// ReplayGuard makes bridge tokens single-use by recording each consumed nonce
// until the token would have expired anyway.
type ReplayGuard struct {
	cache cache.Cache
	now   func() time.Time
}

func NewReplayGuard(c cache.Cache) *ReplayGuard {
	return &ReplayGuard{cache: c, now: time.Now}
}

// Consume records the nonce of claims. A nonce seen before yields
// ErrInvalidToken; a cache failure is returned wrapped so the caller can fail
// closed and log it.
func (g *ReplayGuard) Consume(ctx context.Context, claims Claims) error {
	ttl := claims.Expiry().Sub(g.now())
	if ttl <= 0 {
		return ErrInvalidToken
	}

	stored, err := g.cache.SetNX(ctx, noncePrefix+claims.Nonce, []byte("1"), ttl)
	if err != nil {
		return fmt.Errorf("failed to record bridge nonce: %w", err)
	}
	if !stored {
		return ErrInvalidToken
	}
	return nil
}
