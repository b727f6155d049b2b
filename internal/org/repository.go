package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for organisation persistence.
type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetByKeyHash(ctx context.Context, keyHash string) (*Organization, error)
	List(ctx context.Context) ([]Organization, error)
	Update(ctx context.Context, o *Organization) error
	RotateKey(ctx context.Context, id, newKeyHash string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed organisation
// repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// orgColumns is the column list every organisation query selects,
// in the order scanOrganization expects.
const orgColumns = "id, name, plan, device_limit, key_hash, status, created_at, updated_at"

// scanOrganization reads one organisation row.
func scanOrganization(row rowScanner) (*Organization, error) {
	var o Organization
	var createdAt, updatedAt string

	err := row.Scan(&o.ID, &o.Name, &o.Plan, &o.DeviceLimit, &o.KeyHash,
		&o.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &o, nil
}

// Create inserts a new organisation. The ID and timestamps are
// generated if empty. The caller must have set KeyHash; raw keys
// never reach this layer.
func (r *SQLiteRepository) Create(ctx context.Context, o *Organization) error {
	if err := o.Validate(); err != nil {
		return err
	}

	if o.ID == "" {
		o.ID = "org-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, plan, device_limit, key_hash, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, string(o.Plan), int64(o.DeviceLimit), o.KeyHash, string(o.Status),
		o.CreatedAt.Format(time.RFC3339), o.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating organisation: %w", err)
	}

	return nil
}

// GetByID retrieves an organisation by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+orgColumns+" FROM organizations WHERE id = ?", id)

	o, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting organisation: %w", err)
	}
	return o, nil
}

// GetByKeyHash retrieves an organisation by the SHA-256 digest of its
// API key. This is the authentication lookup: a miss means the
// presented key is not valid for any organisation.
func (r *SQLiteRepository) GetByKeyHash(ctx context.Context, keyHash string) (*Organization, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+orgColumns+" FROM organizations WHERE key_hash = ?", keyHash)

	o, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting organisation by key hash: %w", err)
	}
	return o, nil
}

// List returns all organisations ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orgColumns+" FROM organizations ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing organisations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning organisation: %w", err)
		}
		orgs = append(orgs, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating organisations: %w", err)
	}

	if orgs == nil {
		orgs = []Organization{}
	}
	return orgs, nil
}

// Update persists changes to name, plan, device limit, and status.
// The key hash is managed separately via RotateKey.
func (r *SQLiteRepository) Update(ctx context.Context, o *Organization) error {
	if err := o.Validate(); err != nil {
		return err
	}

	o.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations
		 SET name = ?, plan = ?, device_limit = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		o.Name, string(o.Plan), int64(o.DeviceLimit), string(o.Status),
		o.UpdatedAt.Format(time.RFC3339), o.ID,
	)
	if err != nil {
		return fmt.Errorf("updating organisation: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateKey replaces the organisation's key hash. The old key stops
// working the moment this commits; there is no overlap window.
func (r *SQLiteRepository) RotateKey(ctx context.Context, id, newKeyHash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE organizations SET key_hash = ?, updated_at = ? WHERE id = ?",
		newKeyHash, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("rotating organisation key: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of organisations. Used by first-boot
// seeding to decide whether a default organisation is needed.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM organizations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting organisations: %w", err)
	}
	return count, nil
}
