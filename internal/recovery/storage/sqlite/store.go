// Package sqlite implements the record store over a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/recovery.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/recovery.space/internal/recovery/record"
	"github.com/louisbranch/recovery.space/internal/recovery/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements recovery record persistence over SQLite.
//
// A single SQLite file backs token state so records survive restarts; the
// lifecycle layer works identically against the volatile in-memory store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the record store at path and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Put inserts or replaces a record.
func (s *Store) Put(ctx context.Context, rec record.Record) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO recovery_token_records (id, username, audience, token_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			audience = excluded.audience,
			token_hash = excluded.token_hash,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Username, rec.Audience, rec.TokenHash, string(rec.Status),
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID returns the record with the given token id, or nil.
func (s *Store) GetByID(ctx context.Context, id string) (*record.Record, error) {
	var rec record.Record
	var status string
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, username, audience, token_hash, status, created_at, updated_at
		FROM recovery_token_records WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.Username, &rec.Audience, &rec.TokenHash, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	rec.Status = record.Status(status)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

// DeleteByID removes a record. Deleting an absent id is a success.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM recovery_token_records WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// ListByUsernameAndStatus returns the username's records in the given
// status, ordered by creation time ascending.
func (s *Store) ListByUsernameAndStatus(ctx context.Context, username string, status record.Status) ([]record.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, username, audience, token_hash, status, created_at, updated_at
		FROM recovery_token_records
		WHERE username = ? AND status = ?
		ORDER BY created_at ASC, id ASC`,
		username, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", username, err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var rec record.Record
		var recStatus string
		var createdAt, updatedAt int64
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.Audience, &rec.TokenHash, &recStatus, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = record.Status(recStatus)
		rec.CreatedAt = fromMillis(createdAt)
		rec.UpdatedAt = fromMillis(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records for %s: %w", username, err)
	}
	return records, nil
}
