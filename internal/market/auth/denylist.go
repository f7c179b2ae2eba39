package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/songzhibin97/qwork/pkg/store"
)

const denylistPrefix = "denylist:"

// Denylist records revoked refresh token IDs until they would expire
type Denylist struct {
	store store.AtomicStore
	now   func() time.Time
}

// NewDenylist creates a denylist backed by s
func NewDenylist(s store.AtomicStore) *Denylist {
	return &Denylist{store: s, now: time.Now}
}

// Revoke denylists jti until expiresAt. Already expired tokens are ignored.
func (d *Denylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return fmt.Errorf("token ID cannot be empty")
	}
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.store.Set(ctx, denylistPrefix+jti, []byte("1"), ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti has been denylisted
func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ok, err := d.store.Exists(ctx, denylistPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("failed to check token denylist: %w", err)
	}
	return ok, nil
}
