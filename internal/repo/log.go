package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"choreline/internal/domain"
)

const logColumns = `id,action,actor_id,task_id,details_json,undo_json,created_at,reversed_at`

func scanLogEntry(row rowScanner) (domain.LogEntry, error) {
	var (
		l        domain.LogEntry
		actorID  sql.NullInt64
		taskID   sql.NullInt64
		details  string
		undo     sql.NullString
		reversed sql.NullString
	)
	err := row.Scan(&l.ID, &l.Action, &actorID, &taskID, &details, &undo, &l.CreatedAt, &reversed)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.ActorID = int64Ptr(actorID)
	l.TaskID = int64Ptr(taskID)
	l.UndoJSON = strPtr(undo)
	l.ReversedAt = strPtr(reversed)
	l.Details = map[string]any{}
	if details != "" {
		if err := json.Unmarshal([]byte(details), &l.Details); err != nil {
			return l, fmt.Errorf("log entry %d details: %w", l.ID, err)
		}
	}
	return l, nil
}

func getLogEntry(ctx context.Context, q queryer, id int64) (domain.LogEntry, error) {
	return scanLogEntry(q.QueryRowContext(ctx, `SELECT `+logColumns+` FROM action_log WHERE id=?`, id))
}

func (r Repo) GetLogEntry(ctx context.Context, id int64) (domain.LogEntry, error) {
	return getLogEntry(ctx, r.DB, id)
}

func (r Repo) GetLogEntryTx(ctx context.Context, tx *sql.Tx, id int64) (domain.LogEntry, error) {
	return getLogEntry(ctx, tx, id)
}

// LogFilters narrows ListLog. BeforeID pages backwards from an entry id.
type LogFilters struct {
	Action   string
	TaskID   int64
	BeforeID int64
	Limit    int
}

// ListLog returns entries newest first.
func (r Repo) ListLog(ctx context.Context, f LogFilters) ([]domain.LogEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.TaskID != 0 {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.BeforeID > 0 {
		clauses = append(clauses, "id < ?")
		args = append(args, f.BeforeID)
	}
	query := `SELECT ` + logColumns + ` FROM action_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LogEntry
	for rows.Next() {
		l, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
