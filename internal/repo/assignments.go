package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"choreline/internal/domain"
)

const assignmentColumns = `id,task_id,user_id,turn_user_id,status,due_at,done_at,credits_awarded,temporary_until,created_at`

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var (
		a        domain.Assignment
		userID   sql.NullInt64
		turnID   sql.NullInt64
		status   string
		dueAt    sql.NullString
		doneAt   sql.NullString
		tempTill sql.NullString
	)
	err := row.Scan(&a.ID, &a.TaskID, &userID, &turnID, &status, &dueAt, &doneAt, &a.CreditsAwarded, &tempTill, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.UserID = int64Ptr(userID)
	a.TurnUserID = int64Ptr(turnID)
	a.Status = domain.AssignmentStatus(status)
	a.DueAt = strPtr(dueAt)
	a.DoneAt = strPtr(doneAt)
	a.TemporaryUntil = strPtr(tempTill)
	return a, nil
}

func scanAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// InsertAssignment stores a and returns its id. A second pending assignment
// for the same task is refused by the storage layer and yields a conflict.
func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO assignments(task_id,user_id,turn_user_id,status,due_at,done_at,credits_awarded,temporary_until,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.TaskID, nullableInt64Ptr(a.UserID), nullableInt64Ptr(a.TurnUserID), string(a.Status), nullableStrPtr(a.DueAt),
		nullableStrPtr(a.DoneAt), a.CreditsAwarded, nullableStrPtr(a.TemporaryUntil), a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.Conflict("task %d already has a pending assignment", a.TaskID)
		}
		return 0, fmt.Errorf("insert assignment: %w", err)
	}
	return res.LastInsertId()
}

func getAssignment(ctx context.Context, q queryer, id int64) (domain.Assignment, error) {
	return scanAssignment(q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id))
}

func (r Repo) GetAssignment(ctx context.Context, id int64) (domain.Assignment, error) {
	return getAssignment(ctx, r.DB, id)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Assignment, error) {
	return getAssignment(ctx, tx, id)
}

func pendingAssignments(ctx context.Context, q queryer, taskID int64) ([]domain.Assignment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE task_id=? AND status='pending' ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

func (r Repo) PendingAssignments(ctx context.Context, taskID int64) ([]domain.Assignment, error) {
	return pendingAssignments(ctx, r.DB, taskID)
}

func (r Repo) PendingAssignmentsTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.Assignment, error) {
	return pendingAssignments(ctx, tx, taskID)
}

func lastDone(ctx context.Context, q queryer, taskID int64) (domain.Assignment, error) {
	return scanAssignment(q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE task_id=? AND status='done' ORDER BY done_at DESC, id DESC LIMIT 1`, taskID))
}

// LastDoneAssignmentTx returns the most recent completion of the task.
func (r Repo) LastDoneAssignmentTx(ctx context.Context, tx *sql.Tx, taskID int64) (domain.Assignment, error) {
	return lastDone(ctx, tx, taskID)
}

// UpdateAssignment writes every mutable column of a.
func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET user_id=?, turn_user_id=?, status=?, due_at=?, done_at=?, credits_awarded=?, temporary_until=? WHERE id=?`,
		nullableInt64Ptr(a.UserID), nullableInt64Ptr(a.TurnUserID), string(a.Status), nullableStrPtr(a.DueAt), nullableStrPtr(a.DoneAt),
		a.CreditsAwarded, nullableStrPtr(a.TemporaryUntil), a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("task %d already has a pending assignment", a.TaskID)
		}
		return fmt.Errorf("update assignment: %w", err)
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteAssignment(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return affectedOrNotFound(res)
}

// DeletePendingAssignments removes the open assignments of a task and reports how many went.
func (r Repo) DeletePendingAssignments(ctx context.Context, tx *sql.Tx, taskID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE task_id=? AND status='pending'`, taskID)
	if err != nil {
		return 0, fmt.Errorf("delete pending assignments: %w", err)
	}
	return res.RowsAffected()
}

// AssignmentFilters narrows ListAssignments.
type AssignmentFilters struct {
	UserID int64
	TaskID int64
	Status string
	Limit  int
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var (
		clauses []string
		args    []any
	)
	if f.UserID != 0 {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.TaskID != 0 {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}
