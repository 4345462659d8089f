package repo

import (
	"context"
	"database/sql"
	"fmt"

	"choreline/internal/domain"
)

func skips(ctx context.Context, q queryer, taskID int64) (map[int64]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id,count FROM rotation_skips WHERE task_id=? AND count > 0`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int{}
	for rows.Next() {
		var (
			userID int64
			count  int
		)
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		out[userID] = count
	}
	return out, rows.Err()
}

// Skips returns the positive skip counters of a task keyed by user id.
func (r Repo) Skips(ctx context.Context, taskID int64) (map[int64]int, error) {
	return skips(ctx, r.DB, taskID)
}

func (r Repo) SkipsTx(ctx context.Context, tx *sql.Tx, taskID int64) (map[int64]int, error) {
	return skips(ctx, tx, taskID)
}

// AdjustSkipTx adds delta to a user's skip counter, never going below zero.
func (r Repo) AdjustSkipTx(ctx context.Context, tx *sql.Tx, taskID, userID int64, delta int) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO rotation_skips(task_id,user_id,count) VALUES (?,?,MAX(0,?))
		ON CONFLICT(task_id,user_id) DO UPDATE SET count = MAX(0, rotation_skips.count + ?)`,
		taskID, userID, delta, delta)
	if err != nil {
		return fmt.Errorf("adjust skip: %w", err)
	}
	return nil
}

func orderTemp(ctx context.Context, q queryer, taskID int64) (domain.RotationOrderTemp, error) {
	var (
		t   domain.RotationOrderTemp
		raw string
	)
	err := q.QueryRowContext(ctx, `SELECT task_id,original_order_json,remaining,created_at FROM rotation_order_temps WHERE task_id=?`, taskID).
		Scan(&t.TaskID, &raw, &t.Remaining, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if t.OriginalOrder, err = unmarshalIDs(raw); err != nil {
		return t, fmt.Errorf("temp order %d: %w", taskID, err)
	}
	return t, nil
}

// OrderTemp returns the active one-cycle swap of a task.
func (r Repo) OrderTemp(ctx context.Context, taskID int64) (domain.RotationOrderTemp, error) {
	return orderTemp(ctx, r.DB, taskID)
}

func (r Repo) OrderTempTx(ctx context.Context, tx *sql.Tx, taskID int64) (domain.RotationOrderTemp, error) {
	return orderTemp(ctx, tx, taskID)
}

func (r Repo) UpsertOrderTempTx(ctx context.Context, tx *sql.Tx, t domain.RotationOrderTemp) error {
	raw, err := marshalIDs(t.OriginalOrder)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO rotation_order_temps(task_id,original_order_json,remaining,created_at) VALUES (?,?,?,?)
		ON CONFLICT(task_id) DO UPDATE SET original_order_json=excluded.original_order_json, remaining=excluded.remaining, created_at=excluded.created_at`,
		t.TaskID, raw, t.Remaining, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert temp order: %w", err)
	}
	return nil
}

func (r Repo) DeleteOrderTempTx(ctx context.Context, tx *sql.Tx, taskID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM rotation_order_temps WHERE task_id=?`, taskID); err != nil {
		return fmt.Errorf("delete temp order: %w", err)
	}
	return nil
}
