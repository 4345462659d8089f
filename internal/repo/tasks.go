package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"choreline/internal/domain"
)

const taskColumns = `id,title,description,task_type,interval_days,points,urgency_score,escalation_level,next_due_at,archived,archived_at,rotation_user_ids_json,blacklist_json,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t          domain.Task
		desc       sql.NullString
		taskType   string
		interval   sql.NullInt64
		nextDue    sql.NullString
		archived   int
		archivedAt sql.NullString
		rotation   string
		blacklist  string
	)
	err := row.Scan(&t.ID, &t.Title, &desc, &taskType, &interval, &t.Points, &t.UrgencyScore, &t.EscalationLevel,
		&nextDue, &archived, &archivedAt, &rotation, &blacklist, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = desc.String
	t.Type = domain.TaskType(taskType)
	t.IntervalDays = intPtr(interval)
	t.NextDueAt = strPtr(nextDue)
	t.Archived = archived == 1
	t.ArchivedAt = strPtr(archivedAt)
	if t.RotationUserIDs, err = unmarshalIDs(rotation); err != nil {
		return t, fmt.Errorf("task %d rotation: %w", t.ID, err)
	}
	if t.Blacklist, err = unmarshalIDs(blacklist); err != nil {
		return t, fmt.Errorf("task %d blacklist: %w", t.ID, err)
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	rotation, err := marshalIDs(t.RotationUserIDs)
	if err != nil {
		return 0, err
	}
	blacklist, err := marshalIDs(t.Blacklist)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(title,description,task_type,interval_days,points,urgency_score,escalation_level,next_due_at,archived,archived_at,rotation_user_ids_json,blacklist_json,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, nullable(t.Description), string(t.Type), nullableIntPtr(t.IntervalDays), t.Points, t.UrgencyScore, t.EscalationLevel,
		nullableStrPtr(t.NextDueAt), boolToInt(t.Archived), nullableStrPtr(t.ArchivedAt), rotation, blacklist, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

func getTask(ctx context.Context, q queryer, id int64) (domain.Task, error) {
	return scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

// TaskFilters narrows ListTasks.
type TaskFilters struct {
	IncludeArchived bool
	Type            string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeArchived {
		clauses = append(clauses, "archived=0")
	}
	if f.Type != "" {
		clauses = append(clauses, "task_type=?")
		args = append(args, f.Type)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTask writes every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	rotation, err := marshalIDs(t.RotationUserIDs)
	if err != nil {
		return err
	}
	blacklist, err := marshalIDs(t.Blacklist)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, interval_days=?, points=?, urgency_score=?, escalation_level=?, next_due_at=?, archived=?, archived_at=?, rotation_user_ids_json=?, blacklist_json=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), nullableIntPtr(t.IntervalDays), t.Points, t.UrgencyScore, t.EscalationLevel,
		nullableStrPtr(t.NextDueAt), boolToInt(t.Archived), nullableStrPtr(t.ArchivedAt), rotation, blacklist, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return affectedOrNotFound(res)
}

// DeleteTask removes the task; assignments, skips and temp orders cascade.
func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return affectedOrNotFound(res)
}
