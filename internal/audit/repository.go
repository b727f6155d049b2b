// Package audit provides access to the decisions table, the
// append-only log of every admission verdict the gate has issued.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry represents a single recorded admission decision.
type Entry struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	DeviceID  string    `json:"device_id"`
	Op        string    `json:"op"`
	Outcome   string    `json:"outcome"`
	Allowed   bool      `json:"allowed"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which decisions to return. Queries are always
// scoped to one organisation; the filter narrows within it.
type Filter struct {
	Op       string // optional: filter by operation (register, validate, revoke)
	DeviceID string // optional: filter by device identifier
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains the paginated decision results.
type ListResult struct {
	Decisions []Entry `json:"decisions"`
	Total     int     `json:"total"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
}

// Repository defines the interface for decision log operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, orgID string, filter Filter) (*ListResult, error)
}

// SQLiteRepository reads and writes decisions in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new decision log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new decision entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "dec-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	allowed := 0
	if entry.Allowed {
		allowed = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO decisions (id, org_id, device_id, op, outcome, allowed, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrgID, entry.DeviceID, entry.Op, entry.Outcome,
		allowed, entry.RequestID,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}

	return nil
}

// List returns decisions for one organisation matching the filter,
// ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, orgID string, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for decision queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically. Organisation scoping is not
	// optional.
	conditions := []string{"org_id = ?"}
	args := []any{orgID}

	if filter.Op != "" {
		conditions = append(conditions, "op = ?")
		args = append(args, filter.Op)
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Get total count.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM decisions %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}

	// Get paginated results.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, org_id, device_id, op, outcome, allowed, request_id, created_at FROM decisions %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Entry
	for rows.Next() {
		var entry Entry
		var allowed int
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.OrgID, &entry.DeviceID,
			&entry.Op, &entry.Outcome, &allowed, &entry.RequestID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}

		entry.Allowed = allowed != 0

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing decision timestamp %q: %w", createdAt, err)
		}
		entry.CreatedAt = t

		decisions = append(decisions, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}

	if decisions == nil {
		decisions = []Entry{}
	}

	return &ListResult{
		Decisions: decisions,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}
