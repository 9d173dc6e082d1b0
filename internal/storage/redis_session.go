package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valter-silva-au/crmsync/pkg/models"
)

// RedisSessionStore keeps the session artifact in Redis so several hosts
// can share one marketplace login.
type RedisSessionStore struct {
	client *redis.Client
	key    string
}

// NewRedisSessionStore connects to redisURL and stores the session for
// domain under crmsync:session:<domain>.
func NewRedisSessionStore(redisURL, domain string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSessionStoreWithClient(client, domain), nil
}

// NewRedisSessionStoreWithClient creates a store from an existing Redis client.
func NewRedisSessionStoreWithClient(client *redis.Client, domain string) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		key:    "crmsync:session:" + domain,
	}
}

func (s *RedisSessionStore) Location() string {
	return "redis " + s.client.Options().Addr + " key " + s.key
}

// Load fetches the session. A missing key yields ErrNoSession.
func (s *RedisSessionStore) Load(ctx context.Context) (models.SessionCookies, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.SessionCookies{}, ErrNoSession
		}
		return models.SessionCookies{}, fmt.Errorf("load session: %w", err)
	}

	var session models.SessionCookies
	if err := json.Unmarshal(data, &session); err != nil {
		return models.SessionCookies{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

// Save stores the session until its earliest persistent cookie expires.
func (s *RedisSessionStore) Save(ctx context.Context, session models.SessionCookies) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, sessionTTL(session, time.Now())).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear deletes the session key.
func (s *RedisSessionStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// sessionTTL returns the time until the earliest cookie expiry, or 0 (no
// expiry) when every cookie is a browser-session cookie.
func sessionTTL(session models.SessionCookies, now time.Time) time.Duration {
	var ttl time.Duration
	for _, c := range session.Cookies {
		if c.Expires.IsZero() {
			continue
		}
		d := c.Expires.Sub(now)
		if d <= 0 {
			continue
		}
		if ttl == 0 || d < ttl {
			ttl = d
		}
	}
	return ttl
}
