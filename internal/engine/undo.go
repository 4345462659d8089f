package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"choreline/internal/actionlog"
	"choreline/internal/domain"
	"choreline/internal/repo"
)

type undoFunc func(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error

var inverses = map[string]undoFunc{
	actionlog.AddCredit:       undoCredit,
	actionlog.SubCredit:       undoCredit,
	actionlog.UrgencyVote:     undoVote,
	actionlog.Assign:          undoAssign,
	actionlog.Claim:           undoClaim,
	actionlog.SwitchTemporary: undoSwitch,
	actionlog.MarkDone:        undoMarkDone,
}

// CanReverse reports whether entries of the given action kind have an inverse.
func CanReverse(action string) bool {
	_, ok := inverses[action]
	return ok
}

// ReverseResult is the reversed entry and the REVERSE entry recording it.
type ReverseResult struct {
	Entry        domain.LogEntry `json:"entry"`
	ReverseLogID int64           `json:"reverse_log_id"`
}

// Reverse applies the inverse of a log entry. Each entry can be reversed once.
func (e Engine) Reverse(ctx context.Context, logID int64, actorID *int64) (ReverseResult, error) {
	res, err := e.reverse(ctx, logID, actorID)
	if err != nil {
		kind := "unknown"
		if res.Entry.Action != "" {
			kind = res.Entry.Action
		}
		result := "error"
		if code, ok := domain.CodeOf(err); ok {
			result = string(code)
		}
		e.Metrics.Reversal(kind, result)
		return res, err
	}
	e.Metrics.Reversal(res.Entry.Action, "ok")
	e.logger().Info("log entry reversed", slog.Int64("log_id", logID), slog.String("action", res.Entry.Action))
	return res, nil
}

func (e Engine) reverse(ctx context.Context, logID int64, actorID *int64) (ReverseResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ReverseResult{}, err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetLogEntryTx(ctx, tx, logID)
	if err != nil {
		return ReverseResult{}, notFound(err, "log entry", logID)
	}
	res := ReverseResult{Entry: entry}
	if entry.ReversedAt != nil {
		return res, domain.Conflict("log entry %d was already reversed", entry.ID).
			WithDetails(map[string]any{"reversed_at": *entry.ReversedAt})
	}
	inverse, ok := inverses[entry.Action]
	if !ok || entry.UndoJSON == nil {
		return res, domain.Unsupported("undo is not supported for %s", entry.Action)
	}
	if err := inverse(e, ctx, tx, []byte(*entry.UndoJSON)); err != nil {
		return res, err
	}
	w := e.Log
	w.Now = e.now
	marked, err := w.MarkReversed(ctx, tx, entry.ID)
	if err != nil {
		return res, err
	}
	if !marked {
		return res, domain.Conflict("log entry %d was already reversed", entry.ID)
	}
	res.ReverseLogID, err = e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.Reverse,
		ActorID: actorID,
		TaskID:  entry.TaskID,
		Details: actionlog.Details{"log_id": entry.ID, "action": entry.Action},
	})
	if err != nil {
		return res, err
	}
	if err := commit(tx); err != nil {
		return res, err
	}
	stamp := formatTS(e.now())
	res.Entry.ReversedAt = &stamp
	return res, nil
}

func decodeUndo(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode undo payload: %w", err)
	}
	return nil
}

func undoCredit(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error {
	var u creditUndo
	if err := decodeUndo(raw, &u); err != nil {
		return err
	}
	if err := e.Repo.AddCredits(ctx, tx, u.UserID, -u.Delta, formatTS(e.now())); err != nil {
		return notFound(err, "user", u.UserID)
	}
	return nil
}

func undoVote(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error {
	var u voteUndo
	if err := decodeUndo(raw, &u); err != nil {
		return err
	}
	t, err := e.getTask(ctx, tx, u.TaskID)
	if err != nil {
		return err
	}
	t.UrgencyScore -= u.Delta
	t.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return notFound(err, "task", t.ID)
	}
	return nil
}

// stillPending loads an assignment the undo wants to touch and requires it to
// be open.
func (e Engine) stillPending(ctx context.Context, tx *sql.Tx, id int64) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignmentTx(ctx, tx, id)
	if err != nil {
		return a, notFound(err, "assignment", id)
	}
	if a.Status != domain.AssignmentPending {
		return a, domain.Conflict("assignment %d is no longer pending", id)
	}
	return a, nil
}

func undoAssign(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error {
	var u assignUndo
	if err := decodeUndo(raw, &u); err != nil {
		return err
	}
	a, err := e.stillPending(ctx, tx, u.AssignmentID)
	if err != nil {
		return err
	}
	return e.Repo.DeleteAssignment(ctx, tx, a.ID)
}

func undoClaim(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error {
	var u claimUndo
	if err := decodeUndo(raw, &u); err != nil {
		return err
	}
	a, err := e.stillPending(ctx, tx, u.AssignmentID)
	if err != nil {
		return err
	}
	if a.UserID == nil || *a.UserID != u.UserID {
		return domain.Conflict("assignment %d changed hands since it was claimed", a.ID)
	}
	a.UserID = nil
	return e.Repo.UpdateAssignment(ctx, tx, a)
}

func undoSwitch(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error {
	var u switchUndo
	if err := decodeUndo(raw, &u); err != nil {
		return err
	}
	a, err := e.stillPending(ctx, tx, u.AssignmentID)
	if err != nil {
		return err
	}
	a.UserID = u.PrevUserID
	a.TemporaryUntil = u.PrevTemporaryUntil
	return e.Repo.UpdateAssignment(ctx, tx, a)
}

// undoMarkDone puts a completed assignment back in the queue and rolls back
// everything the completion planned.
func undoMarkDone(e Engine, ctx context.Context, tx *sql.Tx, raw []byte) error {
	var u markDoneUndo
	if err := decodeUndo(raw, &u); err != nil {
		return err
	}
	a, err := e.Repo.GetAssignmentTx(ctx, tx, u.AssignmentID)
	if err != nil {
		return notFound(err, "assignment", u.AssignmentID)
	}
	if a.Status != domain.AssignmentDone {
		return domain.Conflict("assignment %d is not done", a.ID)
	}
	t, err := e.getTask(ctx, tx, u.TaskID)
	if err != nil {
		return err
	}
	if t.Archived {
		return domain.Conflict("task %d is archived", t.ID)
	}
	if u.Countdown != nil {
		if err := e.countdownUnchanged(ctx, tx, t, *u.Countdown); err != nil {
			return err
		}
	}
	if u.FollowUpID != 0 {
		next, err := e.Repo.GetAssignmentTx(ctx, tx, u.FollowUpID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return err
		case next.Status != domain.AssignmentPending:
			return domain.Conflict("follow-up assignment %d was already completed", next.ID)
		default:
			if err := e.Repo.DeleteAssignment(ctx, tx, next.ID); err != nil {
				return err
			}
		}
	}
	pending, err := e.Repo.PendingAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return domain.Conflict("task %d already has a pending assignment", t.ID).
			WithDetails(map[string]any{"assignment_id": pending[0].ID})
	}

	a.Status = domain.AssignmentPending
	a.DoneAt = nil
	a.CreditsAwarded = 0
	if u.WasUnassigned {
		a.UserID = nil
	}
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return err
	}
	now := formatTS(e.now())
	if err := e.Repo.AddCredits(ctx, tx, u.UserID, -u.Points, now); err != nil {
		return notFound(err, "user", u.UserID)
	}
	for _, id := range u.ConsumedSkips {
		if err := e.Repo.AdjustSkipTx(ctx, tx, t.ID, id, 1); err != nil {
			return err
		}
	}
	if cd := u.Countdown; cd != nil {
		if cd.Reverted {
			t.RotationUserIDs = cd.SwappedOrder
		}
		if err := e.Repo.UpsertOrderTempTx(ctx, tx, domain.RotationOrderTemp{
			TaskID:        t.ID,
			OriginalOrder: cd.OriginalOrder,
			Remaining:     cd.PrevRemaining,
			CreatedAt:     cd.CreatedAt,
		}); err != nil {
			return err
		}
	}
	t.NextDueAt = u.PrevNextDueAt
	t.UrgencyScore = u.PrevUrgency
	t.EscalationLevel = u.PrevEscalation
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return notFound(err, "task", t.ID)
	}
	return nil
}

// countdownUnchanged checks that the rotation is still exactly where the
// completion left it, so restoring the countdown cannot overwrite a later swap.
func (e Engine) countdownUnchanged(ctx context.Context, tx *sql.Tx, t domain.Task, cd countdownUndo) error {
	temp, err := e.Repo.OrderTempTx(ctx, tx, t.ID)
	hasTemp := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	changed := domain.Conflict("rotation of task %d changed after this completion", t.ID)
	if cd.Reverted {
		if hasTemp || !slices.Equal(t.RotationUserIDs, cd.OriginalOrder) {
			return changed
		}
		return nil
	}
	if !hasTemp ||
		temp.Remaining != cd.PrevRemaining-1 ||
		temp.CreatedAt != cd.CreatedAt ||
		!slices.Equal(temp.OriginalOrder, cd.OriginalOrder) ||
		!slices.Equal(t.RotationUserIDs, cd.SwappedOrder) {
		return changed
	}
	return nil
}
