package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const entryColumns = "id, task_id, kind, prompt, status, error_message, result_path, created_at, updated_at"

// Record inserts a fresh submission with status pending.
func (s *Store) Record(ctx context.Context, taskID, kind, prompt string) (*Entry, error) {
	if taskID == "" {
		return nil, errors.New("task id required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO submissions (task_id, kind, prompt, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, kind, prompt, "pending", timestamp, timestamp,
	); err != nil {
		return nil, fmt.Errorf("record submission: %w", err)
	}
	return s.Get(ctx, taskID)
}

// UpdateStatus stores the last observed status for a submission; errMessage
// may be empty. Unknown task ids are ignored, the ledger only covers local
// submissions.
func (s *Store) UpdateStatus(ctx context.Context, taskID, status, errMessage string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE submissions SET status = ?, error_message = ?, updated_at = ? WHERE task_id = ?`,
		status,
		nullableString(errMessage),
		time.Now().UTC().Format(time.RFC3339Nano),
		taskID,
	); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SetResultPath remembers where a resolved result was saved.
func (s *Store) SetResultPath(ctx context.Context, taskID, path string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE submissions SET result_path = ?, updated_at = ? WHERE task_id = ?`,
		nullableString(path),
		time.Now().UTC().Format(time.RFC3339Nano),
		taskID,
	); err != nil {
		return fmt.Errorf("set result path: %w", err)
	}
	return nil
}

// Get fetches one submission by task id, or nil when unknown.
func (s *Store) Get(ctx context.Context, taskID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM submissions WHERE task_id = ?`, taskID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return entry, nil
}

// List returns submissions newest first, at most limit rows. A non-positive
// limit returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM submissions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest keep submissions and reports how many
// rows were removed. keep <= 0 empties the ledger.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	var (
		query string
		args  []any
	)
	if keep <= 0 {
		query = `DELETE FROM submissions`
	} else {
		query = `DELETE FROM submissions WHERE id NOT IN (SELECT id FROM submissions ORDER BY id DESC LIMIT ?)`
		args = append(args, keep)
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune submissions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune submissions: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry                Entry
		errMessage, path     sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&entry.ID, &entry.TaskID, &entry.Kind, &entry.Prompt, &entry.Status,
		&errMessage, &path, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	entry.Error = errMessage.String
	entry.ResultPath = path.String
	entry.CreatedAt = parseTimestamp(createdAt)
	entry.UpdatedAt = parseTimestamp(updatedAt)
	return &entry, nil
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
