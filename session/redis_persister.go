package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the pair under two plain string keys so other tools reading the
// same slot (for example a portal's server-side renderer) see the familiar key names.
type RedisPersister struct {
	redis  redis.UniversalClient
	prefix string
	slot   Slot
	ttl    time.Duration
}

// NewRedisPersister returns a persister writing slot's keys under prefix. A ttl of zero
// stores the keys without expiry.
func NewRedisPersister(client redis.UniversalClient, prefix string, slot Slot, ttl time.Duration) (*RedisPersister, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if slot.AccessKey == "" || slot.RefreshKey == "" {
		return nil, errors.New("slot keys required")
	}
	if slot.AccessKey == slot.RefreshKey {
		return nil, errors.New("slot keys must differ")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must not be negative")
	}
	return &RedisPersister{redis: client, prefix: prefix, slot: slot, ttl: ttl}, nil
}

func (r *RedisPersister) accessKey() string  { return r.prefix + r.slot.AccessKey }
func (r *RedisPersister) refreshKey() string { return r.prefix + r.slot.RefreshKey }

// Load reads both keys in one round trip.
func (r *RedisPersister) Load(ctx context.Context) (Pair, error) {
	vals, err := r.redis.MGet(ctx, r.accessKey(), r.refreshKey()).Result()
	if err != nil {
		return Pair{}, err
	}

	var p Pair
	if s, ok := vals[0].(string); ok {
		p.AccessToken = s
	}
	if s, ok := vals[1].(string); ok {
		p.RefreshToken = s
	}
	return p, nil
}

// Save writes both keys inside MULTI/EXEC.
func (r *RedisPersister) Save(ctx context.Context, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.accessKey(), p.AccessToken, r.ttl)
		pipe.Set(ctx, r.refreshKey(), p.RefreshToken, r.ttl)
		return nil
	})
	return err
}

// Clear deletes both keys.
func (r *RedisPersister) Clear(ctx context.Context) error {
	return r.redis.Del(ctx, r.accessKey(), r.refreshKey()).Err()
}
