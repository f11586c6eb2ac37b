package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/railstack/go-resv/v1/syncbus"
)

// releaseScript deletes the key only while it still carries the caller's
// fencing token. -1: key gone (hold timeout lapsed), 0: held by another
// token, 1: released.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == false then
    return -1
end
if v == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Manager using a shared Redis instance, the serialization
// point across service instances. SET NX with a per-acquisition uuid token
// enforces single ownership; the key TTL is the hold timeout backstop.
type Redis struct {
	client *redis.Client
	bus    syncbus.Bus
	now    func() time.Time
}

// NewRedis returns a new Redis lock manager using the provided client. A
// nil bus disables cross-instance release notifications; waiters then rely
// on backoff alone.
func NewRedis(client *redis.Client, bus syncbus.Bus) *Redis {
	return &Redis{client: client, bus: bus, now: time.Now}
}

// TryAcquire implements Manager.TryAcquire.
func (r *Redis) TryAcquire(ctx context.Context, key string, hold time.Duration) (Handle, error) {
	if err := validate(key, hold); err != nil {
		return Handle{}, err
	}
	token := uuid.NewString()
	now := r.now()
	ok, err := r.client.SetNX(ctx, key, token, hold).Result()
	if err != nil {
		return Handle{}, err
	}
	if !ok {
		return Handle{}, ErrNotAcquired
	}
	return Handle{Key: key, OwnerToken: token, AcquiredAt: now, ExpiresAt: now.Add(hold)}, nil
}

// Acquire implements Manager.Acquire.
func (r *Redis) Acquire(ctx context.Context, key string, hold, wait time.Duration) (Handle, error) {
	return acquireWithWait(ctx, r.bus, key, wait, func(ctx context.Context) (Handle, error) {
		return r.TryAcquire(ctx, key, hold)
	})
}

// Release implements Manager.Release. The compare-and-delete runs server
// side so a slow holder whose hold timeout lapsed can never delete a lock
// that has since been re-acquired under a fresh token.
func (r *Redis) Release(ctx context.Context, h Handle) error {
	if h.Key == "" {
		return ErrEmptyKey
	}
	res, err := releaseScript.Run(ctx, r.client, []string{h.Key}, h.OwnerToken).Int64()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return ErrExpired
	case 0:
		return ErrNotOwner
	}
	if r.bus != nil {
		_ = r.bus.Publish(ctx, "unlock:"+h.Key)
	}
	return nil
}
