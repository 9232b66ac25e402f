package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
	"github.com/Maryam-Bagia/StudyNest/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StateStore persists one device's state in the device_credentials and
// device_back_stacks tables.
type StateStore struct {
	db       pgExecutor
	builder  squirrel.StatementBuilderType
	schema   string
	deviceID string
	now      func() time.Time
}

// NewStateStore constructs a StateStore for deviceID in schema.
func NewStateStore(db pgExecutor, schema, deviceID string) *StateStore {
	return &StateStore{
		db:       db,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		schema:   schema,
		deviceID: deviceID,
		now:      time.Now,
	}
}

func (s *StateStore) table(name string) string {
	return s.schema + "." + name
}

// SaveCredentials upserts the device row.
func (s *StateStore) SaveCredentials(ctx context.Context, creds domain.Credentials) error {
	var expiresAt *time.Time
	if !creds.ExpiresAt.IsZero() {
		t := creds.ExpiresAt.UTC()
		expiresAt = &t
	}

	sql, args, err := s.builder.Insert(s.table("device_credentials")).
		Columns(
			"device_id",
			"user_id",
			"username",
			"email",
			"session_id",
			"access_token",
			"refresh_token",
			"issued_at",
			"expires_at",
			"updated_at",
		).
		Values(
			s.deviceID,
			creds.Identity.ID,
			creds.Identity.Username,
			creds.Identity.Email,
			creds.SessionID,
			creds.AccessToken,
			creds.RefreshToken,
			creds.IssuedAt.UTC(),
			expiresAt,
			s.now().UTC(),
		).
		Suffix(`ON CONFLICT (device_id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	username = EXCLUDED.username,
	email = EXCLUDED.email,
	session_id = EXCLUDED.session_id,
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	issued_at = EXCLUDED.issued_at,
	expires_at = EXCLUDED.expires_at,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert credentials sql: %w", err)
	}

	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns repository.ErrNotFound when the device has no row.
func (s *StateStore) LoadCredentials(ctx context.Context) (domain.Credentials, error) {
	sql, args, err := s.builder.Select(
		"user_id",
		"username",
		"email",
		"session_id",
		"access_token",
		"refresh_token",
		"issued_at",
		"expires_at",
	).
		From(s.table("device_credentials")).
		Where(squirrel.Eq{"device_id": s.deviceID}).
		ToSql()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("build select credentials sql: %w", err)
	}

	var (
		creds     domain.Credentials
		expiresAt *time.Time
	)
	row := s.db.QueryRow(ctx, sql, args...)
	if err := row.Scan(
		&creds.Identity.ID,
		&creds.Identity.Username,
		&creds.Identity.Email,
		&creds.SessionID,
		&creds.AccessToken,
		&creds.RefreshToken,
		&creds.IssuedAt,
		&expiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credentials{}, repository.ErrNotFound
		}
		return domain.Credentials{}, fmt.Errorf("select credentials: %w", err)
	}
	if expiresAt != nil {
		creds.ExpiresAt = *expiresAt
	}
	return creds, nil
}

func (s *StateStore) DeleteCredentials(ctx context.Context) error {
	sql, args, err := s.builder.Delete(s.table("device_credentials")).
		Where(squirrel.Eq{"device_id": s.deviceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete credentials sql: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// SaveBackStack upserts the encoded back-stack.
func (s *StateStore) SaveBackStack(ctx context.Context, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	sql, args, err := s.builder.Insert(s.table("device_back_stacks")).
		Columns("device_id", "entries", "updated_at").
		Values(s.deviceID, entries, s.now().UTC()).
		Suffix("ON CONFLICT (device_id) DO UPDATE SET entries = EXCLUDED.entries, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert back stack sql: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert back stack: %w", err)
	}
	return nil
}

// LoadBackStack returns an empty stack when nothing was saved for the device.
func (s *StateStore) LoadBackStack(ctx context.Context) ([]string, error) {
	sql, args, err := s.builder.Select("entries").
		From(s.table("device_back_stacks")).
		Where(squirrel.Eq{"device_id": s.deviceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select back stack sql: %w", err)
	}

	var entries []string
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&entries); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select back stack: %w", err)
	}
	return entries, nil
}

// HealthCheck runs a trivial query.
func (s *StateStore) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}
	return nil
}

var _ port.DeviceStateStore = (*StateStore)(nil)
