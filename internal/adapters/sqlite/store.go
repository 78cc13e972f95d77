// Package sqlite provides the SQLite-backed user and avatar cache.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/sqlite/migrations"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// Store implements domain.UserStore and domain.ImageDataStore on one SQLite file.
// Writes are serialised through writeMu.
type Store struct {
	sqlDB   *sql.DB
	logger  domain.Logger
	writeMu sync.Mutex
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string, logger domain.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		panic("logger cannot be nil in sqlite.Open")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info(ctx, "SQLite store opened", "path", cleanPath)
	return &Store{sqlDB: sqlDB, logger: logger}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database handle is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreUnavailable
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreUnavailable
	}
	return nil
}

func (s *Store) RetrieveUser(ctx context.Context, userID int) (*domain.CachedUser, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, avatar_url, inserted_at FROM users WHERE id = ?`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to read cached user", "error", err.Error())
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &user, nil
}

func (s *Store) RetrieveAllUsers(ctx context.Context) ([]domain.CachedUser, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, avatar_url, inserted_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.CachedUser
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) InsertUser(ctx context.Context, user domain.CachedUser, timestamp time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, name, avatar_url, inserted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   avatar_url = excluded.avatar_url,
		   inserted_at = excluded.inserted_at`,
		user.ID, user.Name, user.AvatarURL, toMillis(timestamp),
	)
	if err != nil {
		s.logger.Error(ctx, "Failed to insert cached user", "error", err.Error(), "busy", isBusy(err))
		return fmt.Errorf("insert user %d: %w", user.ID, err)
	}
	return nil
}

func (s *Store) DeleteUsers(ctx context.Context, users []domain.CachedUser) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	placeholders := make([]string, len(users))
	args := make([]any, len(users))
	for i, u := range users {
		placeholders[i] = "?"
		args[i] = u.ID
	}
	query := `DELETE FROM users WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error(ctx, "Failed to delete cached users", "count", len(users), "error", err.Error())
		return fmt.Errorf("delete %d users: %w", len(users), err)
	}
	return nil
}

func (s *Store) ClearUsers(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users`); err != nil {
		s.logger.Error(ctx, "Failed to clear user cache", "error", err.Error())
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}

func (s *Store) RetrieveImageData(ctx context.Context, userID int) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM user_images WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to read cached image", "error", err.Error())
		return nil, fmt.Errorf("get image for user %d: %w", userID, err)
	}
	return data, nil
}

func (s *Store) InsertImageData(ctx context.Context, data []byte, userID int, sourceURL string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO user_images (user_id, source_url, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   source_url = excluded.source_url,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		userID, sourceURL, data, toMillis(time.Now()),
	)
	if err != nil {
		s.logger.Error(ctx, "Failed to insert cached image", "error", err.Error(), "busy", isBusy(err))
		return fmt.Errorf("insert image for user %d: %w", userID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.CachedUser, error) {
	var (
		user       domain.CachedUser
		insertedAt sql.NullInt64
	)
	if err := row.Scan(&user.ID, &user.Name, &user.AvatarURL, &insertedAt); err != nil {
		return domain.CachedUser{}, err
	}
	if insertedAt.Valid {
		ts := fromMillis(insertedAt.Int64)
		user.InsertedAt = &ts
	}
	return user, nil
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
