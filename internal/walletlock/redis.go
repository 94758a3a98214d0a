package walletlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vultisig/vultiwallet/contexthelper"
	"github.com/vultisig/vultiwallet/internal/types"
)

const (
	keyPrefix           = "walletlock:"
	releaseChannel      = "walletlock:released:"
	DefaultPollInterval = 250 * time.Millisecond
)

// compare-and-delete so a holder whose TTL expired can't free someone else's lock
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds wallet locks as `SET NX PX` keys. Waiters block on a
// release channel and re-poll at PollInterval in case a release message
// is missed or the holder's TTL lapses.
type RedisLocker struct {
	client       redis.UniversalClient
	execTTL      time.Duration
	pollInterval time.Duration
}

func NewRedisLocker(client redis.UniversalClient, execTTL, pollInterval time.Duration) *RedisLocker {
	if execTTL <= 0 {
		execTTL = types.LockExecTime
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &RedisLocker{
		client:       client,
		execTTL:      execTTL,
		pollInterval: pollInterval,
	}
}

func (r *RedisLocker) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, r.execTTL).Result()
	if err != nil {
		return false, fmt.Errorf("fail to acquire wallet lock: %w", err)
	}
	return ok, nil
}

func (r *RedisLocker) Acquire(ctx context.Context, walletID string, wait time.Duration) (string, error) {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return "", err
	}
	key := keyPrefix + walletID
	token := uuid.NewString()

	ok, err := r.tryAcquire(ctx, key, token)
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}

	sub := r.client.Subscribe(ctx, releaseChannel+walletID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return "", fmt.Errorf("fail to subscribe to lock release: %w", err)
	}
	released := sub.Channel()

	deadline := time.Now().Add(wait)
	for {
		if err := contexthelper.CheckCancellation(ctx); err != nil {
			return "", err
		}
		ok, err := r.tryAcquire(ctx, key, token)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", types.ErrLockTimeout
		}
		if err := contexthelper.WaitFor(ctx, min(remaining, r.pollInterval), released); err != nil {
			return "", err
		}
	}
}

func (r *RedisLocker) Release(ctx context.Context, walletID, token string) error {
	key := keyPrefix + walletID
	n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("fail to release wallet lock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	if err := r.client.Publish(ctx, releaseChannel+walletID, token).Err(); err != nil {
		return fmt.Errorf("fail to publish lock release: %w", err)
	}
	return nil
}
