package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vultisig/vultiwallet/config"
	"github.com/vultisig/vultiwallet/contexthelper"
	"github.com/vultisig/vultiwallet/internal/types"
)

const sessionKeyPrefix = "session:"

// RedisStorage holds copayer sessions. Each write refreshes the key TTL so
// expiry slides with activity.
type RedisStorage struct {
	client     redis.UniversalClient
	sessionTTL time.Duration
}

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.User,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return client, nil
}

func NewRedisStorage(client redis.UniversalClient, sessionTTL time.Duration) *RedisStorage {
	if sessionTTL <= 0 {
		sessionTTL = types.SessionExpiration
	}
	return &RedisStorage{
		client:     client,
		sessionTTL: sessionTTL,
	}
}

func sessionKey(copayerID string) string {
	return sessionKeyPrefix + copayerID
}

// GetSession returns the copayer session, or nil if none is live.
func (r *RedisStorage) GetSession(ctx context.Context, copayerID string) (*types.Session, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return nil, ctx.Err()
	}
	raw, err := r.client.Get(ctx, sessionKey(copayerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fail to get session, err: %w", err)
	}
	var s types.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("fail to deserialize session, err: %w", err)
	}
	return &s, nil
}

func (r *RedisStorage) StoreSession(ctx context.Context, s *types.Session) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	buf, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("fail to serialize session to json, err: %w", err)
	}
	return r.client.Set(ctx, sessionKey(s.CopayerID), string(buf), r.sessionTTL).Err()
}

func (r *RedisStorage) RemoveSession(ctx context.Context, copayerID string) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	return r.client.Del(ctx, sessionKey(copayerID)).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
