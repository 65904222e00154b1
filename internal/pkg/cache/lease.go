package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrLeaseHeld = errors.New("lease is held by another worker")

// Lease is a short-lived exclusive claim on a key.
type Lease struct {
	store Store
	key   string
	token string
}

// Acquire claims key for ttl. It returns ErrLeaseHeld when someone else owns it.
func Acquire(ctx context.Context, store Store, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lease %q: %w", key, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{store: store, key: key, token: token}, nil
}

// Release gives the lease back if it has not expired and been re-claimed.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if _, err := l.store.DelIfEqual(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release lease %q: %w", l.key, err)
	}
	return nil
}

func (l *Lease) Key() string { return l.key }
