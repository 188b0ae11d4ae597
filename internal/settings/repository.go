package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Record is one persisted setting.
type Record struct {
	Key          string
	Path         string
	Value        string
	DefaultValue string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines the persistence operations the Store needs.
type Repository interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Create inserts a new record. Timestamps are set by the repository.
	Create(ctx context.Context, rec *Record) error

	// UpdateValue replaces the value of an existing record.
	UpdateValue(ctx context.Context, key, value string) error
}

// SQLiteRepository implements Repository using the settings table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed settings repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns a single setting by key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (*Record, error) {
	const query = `SELECT key, path, value, default_value, created_at, updated_at
		FROM settings WHERE key = ?`

	var (
		rec                  Record
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key, &rec.Path, &rec.Value, &rec.DefaultValue, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying setting %s: %w", key, err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Zero time on legacy rows
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Zero time on legacy rows
	return &rec, nil
}

// Create inserts a new setting.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	const query = `INSERT INTO settings (key, path, value, default_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.Key, rec.Path, rec.Value, rec.DefaultValue,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting setting %s: %w", rec.Key, err)
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// UpdateValue replaces the value of an existing setting.
func (r *SQLiteRepository) UpdateValue(ctx context.Context, key, value string) error {
	const query = `UPDATE settings SET value = ?, updated_at = ? WHERE key = ?`
	res, err := r.db.ExecContext(ctx, query, value, time.Now().UTC().Format(time.RFC3339), key)
	if err != nil {
		return fmt.Errorf("updating setting %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating setting %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
