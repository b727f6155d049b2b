package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/machineid-io/machineid-core/internal/quota"
)

// Repository defines the interface for device record persistence.
// This abstraction allows for different implementations (SQLite,
// mock, etc.) and enables unit testing without database dependencies.
type Repository interface {
	// Get retrieves one device record.
	// Returns ErrNotRegistered if the identity is unknown.
	Get(ctx context.Context, orgID, deviceID string) (*Record, error)

	// List retrieves all device records for an organisation, oldest
	// registration first.
	List(ctx context.Context, orgID string) ([]Record, error)

	// CountActive returns the number of active devices for an
	// organisation, derived live from the table.
	CountActive(ctx context.Context, orgID string) (int, error)

	// Admit performs the atomic check-then-admit for a register call:
	// read the record, count active devices, apply the limit, and
	// create or restore as appropriate - all in one transaction.
	// Denials are reported in the result, not as errors.
	Admit(ctx context.Context, orgID, deviceID string, limit quota.Limit) (*AdmitResult, error)

	// Revoke parks an active record, freeing its quota slot
	// immediately. Revoking an already revoked record is a no-op.
	// Returns ErrNotRegistered if the identity is unknown.
	Revoke(ctx context.Context, orgID, deviceID string) (*Record, error)

	// TouchValidated records a successful validation timestamp.
	// Callers treat failures as non-fatal.
	TouchValidated(ctx context.Context, orgID, deviceID string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// recordColumns is the column list every record query selects, in the
// order scanRecord expects.
const recordColumns = "org_id, device_id, state, first_registered_at, last_validated_at, revoked_at"

// querier abstracts *sql.DB and *sql.Tx so record reads work inside
// and outside the admit transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanRecord reads one device record row.
func scanRecord(row *sql.Row) (*Record, error) {
	var r Record
	var firstRegistered string
	var lastValidated, revokedAt sql.NullString

	err := row.Scan(&r.OrgID, &r.DeviceID, &r.State, &firstRegistered, &lastValidated, &revokedAt)
	if err != nil {
		return nil, err
	}

	r.FirstRegisteredAt, _ = time.Parse(time.RFC3339, firstRegistered) //nolint:errcheck // format is controlled
	if lastValidated.Valid {
		t, _ := time.Parse(time.RFC3339, lastValidated.String) //nolint:errcheck // format is controlled
		r.LastValidatedAt = &t
	}
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String) //nolint:errcheck // format is controlled
		r.RevokedAt = &t
	}

	return &r, nil
}

// getRecord reads one record through the given querier.
func getRecord(ctx context.Context, q querier, orgID, deviceID string) (*Record, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM devices WHERE org_id = ? AND device_id = ?",
		orgID, deviceID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("getting device record: %w", err)
	}
	return rec, nil
}

// countActive counts active devices through the given querier.
func countActive(ctx context.Context, q querier, orgID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE org_id = ? AND state = ?",
		orgID, string(StateActive)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active devices: %w", err)
	}
	return count, nil
}

// Get retrieves one device record.
func (r *SQLiteRepository) Get(ctx context.Context, orgID, deviceID string) (*Record, error) {
	return getRecord(ctx, r.db, orgID, deviceID)
}

// List retrieves all device records for an organisation.
func (r *SQLiteRepository) List(ctx context.Context, orgID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM devices WHERE org_id = ? ORDER BY first_registered_at, device_id",
		orgID)
	if err != nil {
		return nil, fmt.Errorf("listing device records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var firstRegistered string
		var lastValidated, revokedAt sql.NullString

		if err := rows.Scan(&rec.OrgID, &rec.DeviceID, &rec.State,
			&firstRegistered, &lastValidated, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning device record: %w", err)
		}

		rec.FirstRegisteredAt, _ = time.Parse(time.RFC3339, firstRegistered) //nolint:errcheck // format is controlled
		if lastValidated.Valid {
			t, _ := time.Parse(time.RFC3339, lastValidated.String) //nolint:errcheck // format is controlled
			rec.LastValidatedAt = &t
		}
		if revokedAt.Valid {
			t, _ := time.Parse(time.RFC3339, revokedAt.String) //nolint:errcheck // format is controlled
			rec.RevokedAt = &t
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device records: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// CountActive returns the number of active devices for an organisation.
func (r *SQLiteRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	return countActive(ctx, r.db, orgID)
}

// Admit performs the atomic check-then-admit for a register call.
//
// The whole sequence runs in one transaction so the count a decision
// is based on cannot go stale between the check and the write. The
// ordered rules:
//
//  1. Identity already active: report exists, change nothing. Never
//     quota-checked - re-registering what is already admitted must not
//     fail even when the organisation is at its limit.
//  2. Identity revoked: re-admission competes for a slot like a new
//     device. Within the limit the record is restored; otherwise the
//     denial changes nothing.
//  3. Identity unknown: within the limit a record is created;
//     otherwise the denial changes nothing.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - orgID: The organisation being admitted into
//   - deviceID: The caller-chosen device identifier
//   - limit: The organisation's device limit at evaluation time
//
// Returns:
//   - *AdmitResult: Transition, the record (nil on denial), and the
//     active count after the transition
//   - error: Infrastructure failures only; denials are not errors
func (r *SQLiteRepository) Admit(ctx context.Context, orgID, deviceID string, limit quota.Limit) (*AdmitResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning admit transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	existing, err := getRecord(ctx, tx, orgID, deviceID)
	if err != nil && !errors.Is(err, ErrNotRegistered) {
		return nil, err
	}

	active, err := countActive(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// Already active: idempotent success regardless of quota.
	if existing != nil && existing.State == StateActive {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing admit: %w", err)
		}
		return &AdmitResult{Transition: TransitionExists, Record: existing, ActiveCount: active}, nil
	}

	// Restoring or creating takes a slot; both are subject to the limit.
	if !limit.Allows(active) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing admit: %w", err)
		}
		return &AdmitResult{Transition: TransitionDenied, ActiveCount: active}, nil
	}

	if existing != nil {
		// Revoked record: restore it.
		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET state = ?, revoked_at = NULL WHERE org_id = ? AND device_id = ?",
			string(StateActive), orgID, deviceID); err != nil {
			return nil, fmt.Errorf("restoring device record: %w", err)
		}

		existing.State = StateActive
		existing.RevokedAt = nil

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing admit: %w", err)
		}
		return &AdmitResult{Transition: TransitionRestored, Record: existing, ActiveCount: active + 1}, nil
	}

	// Unknown identity: create it.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO devices (org_id, device_id, state, first_registered_at)
		 VALUES (?, ?, ?, ?)`,
		orgID, deviceID, string(StateActive), now.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("creating device record: %w", err)
	}

	rec := &Record{
		OrgID:             orgID,
		DeviceID:          deviceID,
		State:             StateActive,
		FirstRegisteredAt: now,
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing admit: %w", err)
	}
	return &AdmitResult{Transition: TransitionCreated, Record: rec, ActiveCount: active + 1}, nil
}

// Revoke parks an active record, freeing its quota slot immediately.
func (r *SQLiteRepository) Revoke(ctx context.Context, orgID, deviceID string) (*Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning revoke transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	rec, err := getRecord(ctx, tx, orgID, deviceID)
	if err != nil {
		return nil, err
	}

	// Revoking a revoked record is idempotent; keep the original
	// revocation timestamp.
	if rec.State == StateRevoked {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing revoke: %w", err)
		}
		return rec, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE devices SET state = ?, revoked_at = ? WHERE org_id = ? AND device_id = ?",
		string(StateRevoked), now.Format(time.RFC3339), orgID, deviceID); err != nil {
		return nil, fmt.Errorf("revoking device record: %w", err)
	}

	rec.State = StateRevoked
	rec.RevokedAt = &now

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing revoke: %w", err)
	}
	return rec, nil
}

// TouchValidated records a successful validation timestamp.
func (r *SQLiteRepository) TouchValidated(ctx context.Context, orgID, deviceID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_validated_at = ? WHERE org_id = ? AND device_id = ?",
		at.UTC().Format(time.RFC3339), orgID, deviceID)
	if err != nil {
		return fmt.Errorf("touching validation timestamp: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotRegistered
	}
	return nil
}
