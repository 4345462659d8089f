package actionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Action kinds written to the log.
const (
	CreateUser           = "CREATE_USER"
	UpdateUser           = "UPDATE_USER"
	SetPhoto             = "SET_PHOTO"
	AddCredit            = "ADD_CREDIT"
	SubCredit            = "SUB_CREDIT"
	CreateTask           = "CREATE_TASK"
	EditTask             = "EDIT_TASK"
	ResetTask            = "RESET_TASK"
	UrgencyVote          = "URGENCY_VOTE"
	Escalate             = "ESCALATE"
	Blacklist            = "BLACKLIST"
	ArchiveTask          = "ARCHIVE_TASK"
	UnarchiveTask        = "UNARCHIVE_TASK"
	DeleteTask           = "DELETE_TASK"
	Assign               = "ASSIGN"
	Claim                = "CLAIM"
	SwitchTemporary      = "SWITCH_TEMPORARY"
	Cover                = "COVER"
	MarkDone             = "MARK_DONE"
	SwapRotation         = "SWAP_ROTATION"
	SwapRotationOneCycle = "SWAP_ROTATION_ONE_CYCLE"
	Reverse              = "REVERSE"
)

// Details is the free-form "what happened" payload.
type Details map[string]any

// Entry is one record to append.
type Entry struct {
	Action  string
	ActorID *int64
	TaskID  *int64
	Details Details
	// Undo is marshalled as-is; nil means the action cannot be reversed.
	Undo any
}

type Writer struct {
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append writes e inside tx and returns the new entry id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) (int64, error) {
	ts := w.now().UTC().Format(time.RFC3339)
	if e.Details == nil {
		e.Details = Details{}
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return 0, fmt.Errorf("marshal log details: %w", err)
	}
	var undo any
	if e.Undo != nil {
		b, err := json.Marshal(e.Undo)
		if err != nil {
			return 0, fmt.Errorf("marshal undo payload: %w", err)
		}
		undo = string(b)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO action_log(action,actor_id,task_id,details_json,undo_json,created_at) VALUES (?,?,?,?,?,?)`,
		e.Action, nullableID(e.ActorID), nullableID(e.TaskID), string(details), undo, ts)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", e.Action, err)
	}
	return res.LastInsertId()
}

// MarkReversed stamps reversed_at on an entry that has not been reversed yet.
// It reports false when another reversal got there first.
func (w Writer) MarkReversed(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	ts := w.now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE action_log SET reversed_at=? WHERE id=? AND reversed_at IS NULL`, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
