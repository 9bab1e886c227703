package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"comanda/internal/domain/customer"
	"comanda/pkg/logger"
)

// Directory is the profile lookup surface consumed by the dispatcher
type Directory interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*customer.Profile, error)
}

// CachedDirectory is a read-through Redis cache in front of the
// customers API. Only session state is required to stay volatile;
// profiles are external data and safe to cache.
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedDirectory wraps a directory with a Redis cache
func NewCachedDirectory(inner Directory, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedDirectory {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &CachedDirectory{
		inner:  inner,
		client: client,
		ttl:    ttl,
		log:    log.With("component", "profile_cache"),
	}
}

// GetCustomerByPhone returns the cached profile when present, falling
// back to the API on miss or on any Redis failure.
func (d *CachedDirectory) GetCustomerByPhone(ctx context.Context, phone string) (*customer.Profile, error) {
	key := d.key(phone)

	data, err := d.client.Get(ctx, key).Result()
	if err == nil {
		var profile customer.Profile
		if jsonErr := json.Unmarshal([]byte(data), &profile); jsonErr == nil {
			return &profile, nil
		}
		// Corrupt entry, drop it and fall through to the API
		d.client.Del(ctx, key)
	} else if err != redis.Nil {
		d.log.Warnw("Profile cache read failed", "phone", phone, "error", err)
	}

	profile, err := d.inner.GetCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(profile); jsonErr == nil {
		if setErr := d.client.Set(ctx, key, encoded, d.ttl).Err(); setErr != nil {
			d.log.Warnw("Profile cache write failed", "phone", phone, "error", setErr)
		}
	}

	return profile, nil
}

// Invalidate drops the cached profile for a phone, used after a
// conversation collects fresh customer data.
func (d *CachedDirectory) Invalidate(ctx context.Context, phone string) {
	if err := d.client.Del(ctx, d.key(phone)).Err(); err != nil {
		d.log.Warnw("Profile cache invalidation failed", "phone", phone, "error", err)
	}
}

func (d *CachedDirectory) key(phone string) string {
	return fmt.Sprintf("profile:%s", phone)
}

var _ Directory = (*CachedDirectory)(nil)
