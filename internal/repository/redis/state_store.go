package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
	"github.com/Maryam-Bagia/StudyNest/internal/repository"
)

// StateStore keeps one device's credentials in a hash and its back-stack in a list.
type StateStore struct {
	client   *red.Client
	prefix   string
	deviceID string
	ttl      time.Duration
}

// NewStateStore constructs a Redis backed store for deviceID. A zero ttl keeps keys forever.
func NewStateStore(client *red.Client, keyPrefix, deviceID string, ttl time.Duration) *StateStore {
	return &StateStore{
		client:   client,
		prefix:   keyPrefix,
		deviceID: deviceID,
		ttl:      ttl,
	}
}

func (s *StateStore) key(suffix string) string {
	if s.prefix == "" {
		return fmt.Sprintf("%s:%s", s.deviceID, suffix)
	}
	return fmt.Sprintf("%s:%s:%s", s.prefix, s.deviceID, suffix)
}

func (s *StateStore) credentialsKey() string { return s.key("credentials") }
func (s *StateStore) backStackKey() string   { return s.key("backstack") }

// SaveCredentials replaces the stored credentials.
func (s *StateStore) SaveCredentials(ctx context.Context, creds domain.Credentials) error {
	key := s.credentialsKey()
	fields := map[string]any{
		"user_id":       creds.Identity.ID,
		"username":      creds.Identity.Username,
		"email":         creds.Identity.Email,
		"session_id":    creds.SessionID,
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
		"issued_at":     formatTime(creds.IssuedAt),
		"expires_at":    formatTime(creds.ExpiresAt),
	}

	_, err := s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns repository.ErrNotFound when the device has no credentials.
func (s *StateStore) LoadCredentials(ctx context.Context) (domain.Credentials, error) {
	values, err := s.client.HGetAll(ctx, s.credentialsKey()).Result()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if len(values) == 0 || values["user_id"] == "" {
		return domain.Credentials{}, repository.ErrNotFound
	}

	issuedAt, err := parseTime(values["issued_at"])
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("parse issued_at: %w", err)
	}
	expiresAt, err := parseTime(values["expires_at"])
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("parse expires_at: %w", err)
	}

	return domain.Credentials{
		Identity: domain.Identity{
			ID:       values["user_id"],
			Username: values["username"],
			Email:    values["email"],
		},
		SessionID:    values["session_id"],
		AccessToken:  values["access_token"],
		RefreshToken: values["refresh_token"],
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *StateStore) DeleteCredentials(ctx context.Context) error {
	if err := s.client.Del(ctx, s.credentialsKey()).Err(); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// SaveBackStack replaces the stored back-stack.
func (s *StateStore) SaveBackStack(ctx context.Context, entries []string) error {
	key := s.backStackKey()
	_, err := s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) == 0 {
			return nil
		}
		values := make([]any, len(entries))
		for i, entry := range entries {
			values[i] = entry
		}
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save back stack: %w", err)
	}
	return nil
}

func (s *StateStore) LoadBackStack(ctx context.Context) ([]string, error) {
	entries, err := s.client.LRange(ctx, s.backStackKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, red.Nil) {
		return nil, fmt.Errorf("load back stack: %w", err)
	}
	return entries, nil
}

// HealthCheck pings the Redis server.
func (s *StateStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

var _ port.DeviceStateStore = (*StateStore)(nil)
