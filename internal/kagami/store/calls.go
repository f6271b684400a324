package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Kagami/internal/kagami/llm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// CallLog is one persisted provider attempt.
type CallLog struct {
	ID        int64
	Timestamp time.Time
	Status    string
	Input     string
	Output    string
}

// CallFilter narrows and pages a ListCalls query. Zero values mean
// "unfiltered"; Limit is capped to keep responses bounded.
type CallFilter struct {
	Status string
	Start  time.Time
	End    time.Time
	Page   int
	Limit  int
	// Ascending orders oldest-first; the default is newest-first.
	Ascending bool
}

const (
	defaultCallLimit = 20
	maxCallLimit     = 100
)

// InsertCall persists one provider attempt. It satisfies llm.CallLogger.
func (s *Store) InsertCall(ctx context.Context, rec llm.CallRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_call_logs (ts, status, input, output)
		VALUES (?, ?, ?, ?)
	`, ts, rec.Status, rec.Input, rec.Output)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// ListCalls returns one page of call logs matching the filter, plus the total
// match count for pagination.
func (s *Store) ListCalls(ctx context.Context, f CallFilter) ([]*CallLog, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultCallLimit
	}
	if f.Limit > maxCallLimit {
		f.Limit = maxCallLimit
	}

	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, f.End)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM llm_call_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count call logs: %w", err)
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query := fmt.Sprintf(
		"SELECT id, ts, status, input, COALESCE(output, '') FROM llm_call_logs%s ORDER BY ts %s, id %s LIMIT ? OFFSET ?",
		where, order, order,
	)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query call logs: %w", err)
	}
	defer rows.Close()

	var entries []*CallLog
	for rows.Next() {
		entry := &CallLog{}
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Status, &entry.Input, &entry.Output); err != nil {
			return nil, 0, fmt.Errorf("failed to scan call log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating call logs: %w", err)
	}

	return entries, total, nil
}

// GetCall fetches one call log by ID.
func (s *Store) GetCall(ctx context.Context, id int64) (*CallLog, error) {
	entry := &CallLog{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ts, status, input, COALESCE(output, '')
		FROM llm_call_logs WHERE id = ?
	`, id).Scan(&entry.ID, &entry.Timestamp, &entry.Status, &entry.Input, &entry.Output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call log %d: %w", id, err)
	}
	return entry, nil
}
