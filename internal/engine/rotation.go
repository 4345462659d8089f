package engine

import (
	"context"
	"errors"
	"log/slog"

	"choreline/internal/actionlog"
	"choreline/internal/domain"
	"choreline/internal/repo"
	"choreline/internal/rotation"
)

// SwapOptions exchanges two members of a task's rotation order.
type SwapOptions struct {
	TaskID   int64
	UserA    int64
	UserB    int64
	OneCycle bool
	ActorID  *int64
}

// SwapResult is the task after a swap together with the countdown, if any.
type SwapResult struct {
	Task      domain.Task               `json:"task"`
	Temporary *domain.RotationOrderTemp `json:"temporary,omitempty"`
}

// SwapRotation exchanges the positions of two members. A one-cycle swap
// reverts on its own after len(order) completions; swapping again while one
// is active keeps the order captured by the first and restarts the count.
func (e Engine) SwapRotation(ctx context.Context, opts SwapOptions) (SwapResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SwapResult{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, opts.TaskID)
	if err != nil {
		return SwapResult{}, err
	}
	if t.Type != domain.TaskRotating {
		return SwapResult{}, domain.Invalid("task %d is not a rotating task", t.ID)
	}
	swapped, err := rotation.Swap(t.RotationUserIDs, opts.UserA, opts.UserB)
	if err != nil {
		return SwapResult{}, domain.Invalid("%s", err.Error())
	}
	temp, err := e.Repo.OrderTempTx(ctx, tx, t.ID)
	active := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return SwapResult{}, err
	}
	if active && !opts.OneCycle {
		return SwapResult{}, domain.Conflict("task %d has a one-cycle swap in progress", t.ID).
			WithDetails(map[string]any{"remaining": temp.Remaining})
	}

	prev := t.RotationUserIDs
	now := formatTS(e.now())
	res := SwapResult{}
	action := actionlog.SwapRotation
	if opts.OneCycle {
		action = actionlog.SwapRotationOneCycle
		cd := rotation.NewCountdown(prev)
		if active {
			cd.Original = temp.OriginalOrder
		}
		temp = domain.RotationOrderTemp{TaskID: t.ID, OriginalOrder: cd.Original, Remaining: cd.Remaining, CreatedAt: now}
		if err := e.Repo.UpsertOrderTempTx(ctx, tx, temp); err != nil {
			return SwapResult{}, err
		}
		res.Temporary = &temp
	}
	t.RotationUserIDs = swapped
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return SwapResult{}, notFound(err, "task", t.ID)
	}
	details := actionlog.Details{"user_a": opts.UserA, "user_b": opts.UserB, "prev_order": prev, "new_order": swapped}
	if res.Temporary != nil {
		details["remaining"] = res.Temporary.Remaining
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  action,
		ActorID: opts.ActorID,
		TaskID:  idPtr(t.ID),
		Details: details,
	}); err != nil {
		return SwapResult{}, err
	}
	if err := commit(tx); err != nil {
		return SwapResult{}, err
	}
	e.Metrics.Action(action)
	e.logger().Info("rotation swapped", slog.Int64("task_id", t.ID), slog.Bool("one_cycle", opts.OneCycle))
	res.Task = t
	return res, nil
}

// RotationState is the stored order of a task with its per-user skip counters
// and any one-cycle countdown.
type RotationState struct {
	Order     []int64                   `json:"order"`
	Skips     []domain.RotationSkip     `json:"skips"`
	Temporary *domain.RotationOrderTemp `json:"temporary,omitempty"`
}

func (e Engine) Rotation(ctx context.Context, taskID int64) (RotationState, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return RotationState{}, notFound(err, "task", taskID)
	}
	skips, err := e.Repo.Skips(ctx, t.ID)
	if err != nil {
		return RotationState{}, err
	}
	st := RotationState{Order: t.RotationUserIDs, Skips: []domain.RotationSkip{}}
	for _, id := range t.RotationUserIDs {
		if n := skips[id]; n > 0 {
			st.Skips = append(st.Skips, domain.RotationSkip{TaskID: t.ID, UserID: id, Count: n})
		}
	}
	temp, err := e.Repo.OrderTemp(ctx, t.ID)
	switch {
	case err == nil:
		st.Temporary = &temp
	case !errors.Is(err, repo.ErrNotFound):
		return RotationState{}, err
	}
	return st, nil
}
