package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"time"

	"choreline/internal/actionlog"
	"choreline/internal/domain"
	"choreline/internal/repo"
	"choreline/internal/rotation"
)

// AssignOptions are parameters for handing a task to a user.
type AssignOptions struct {
	TaskID  int64
	UserID  int64
	DueDays *int
	ActorID *int64
}

type assignUndo struct {
	AssignmentID int64 `json:"assignment_id"`
	TaskID       int64 `json:"task_id"`
}

// Assign opens a pending assignment for the user. It fails with a conflict
// when the task already has one open.
func (e Engine) Assign(ctx context.Context, opts AssignOptions) (domain.Assignment, int64, error) {
	if opts.DueDays != nil && *opts.DueDays <= 0 {
		return domain.Assignment{}, 0, domain.Invalid("due_days must be positive")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	if t.Archived {
		return domain.Assignment{}, 0, domain.Conflict("task %d is archived", t.ID)
	}
	if _, err := e.requireActiveUser(ctx, tx, opts.UserID); err != nil {
		return domain.Assignment{}, 0, err
	}
	pending, err := e.Repo.PendingAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	if len(pending) > 0 {
		return domain.Assignment{}, 0, domain.Conflict("task %d is already assigned", t.ID).
			WithDetails(map[string]any{"assignment_id": pending[0].ID})
	}
	dueDays := e.intervalOrDefault(t)
	if opts.DueDays != nil {
		dueDays = *opts.DueDays
	}
	now := e.now()
	a := domain.Assignment{
		TaskID:    t.ID,
		UserID:    idPtr(opts.UserID),
		Status:    domain.AssignmentPending,
		DueAt:     tsPtr(now.Add(time.Duration(dueDays) * day)),
		CreatedAt: formatTS(now),
	}
	if t.HasMember(opts.UserID) {
		a.TurnUserID = idPtr(opts.UserID)
	}
	if a.ID, err = e.Repo.InsertAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, 0, err
	}
	logID, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.Assign,
		ActorID: opts.ActorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"assignment_id": a.ID, "user_id": opts.UserID, "due_at": a.DueAt},
		Undo:    assignUndo{AssignmentID: a.ID, TaskID: t.ID},
	})
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	if err := commit(tx); err != nil {
		return domain.Assignment{}, 0, err
	}
	e.Metrics.Action(actionlog.Assign)
	return a, logID, nil
}

type claimUndo struct {
	AssignmentID int64 `json:"assignment_id"`
	UserID       int64 `json:"user_id"`
}

// Claim takes the single open unassigned occurrence of a task.
func (e Engine) Claim(ctx context.Context, taskID, userID int64, actorID *int64) (domain.Assignment, int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	if _, err := e.requireActiveUser(ctx, tx, userID); err != nil {
		return domain.Assignment{}, 0, err
	}
	pending, err := e.Repo.PendingAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	if len(pending) != 1 {
		return domain.Assignment{}, 0, domain.Conflict("task %d has no open assignment to claim", t.ID)
	}
	a := pending[0]
	if a.UserID != nil {
		return domain.Assignment{}, 0, domain.Conflict("task %d is already claimed", t.ID).
			WithDetails(map[string]any{"assignment_id": a.ID, "user_id": *a.UserID})
	}
	a.UserID = idPtr(userID)
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, 0, err
	}
	logID, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.Claim,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"assignment_id": a.ID, "user_id": userID},
		Undo:    claimUndo{AssignmentID: a.ID, UserID: userID},
	})
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	if err := commit(tx); err != nil {
		return domain.Assignment{}, 0, err
	}
	e.Metrics.Action(actionlog.Claim)
	return a, logID, nil
}

// SwitchOptions reassigns an open assignment without touching its due date.
type SwitchOptions struct {
	AssignmentID int64
	UserID       int64
	Until        *string
	ActorID      *int64
}

type switchUndo struct {
	AssignmentID       int64   `json:"assignment_id"`
	PrevUserID         *int64  `json:"prev_user_id"`
	PrevTemporaryUntil *string `json:"prev_temporary_until"`
	UserID             int64   `json:"user_id"`
}

func (e Engine) SwitchTemporarily(ctx context.Context, opts SwitchOptions) (domain.Assignment, int64, error) {
	var until *string
	if opts.Until != nil {
		ts, err := parseTS(*opts.Until)
		if err != nil {
			return domain.Assignment{}, 0, err
		}
		until = tsPtr(ts)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, 0, err
	}
	defer tx.Rollback()

	a, err := e.getPendingAssignment(ctx, tx, opts.AssignmentID)
	if err != nil {
		return a, 0, err
	}
	if _, err := e.requireActiveUser(ctx, tx, opts.UserID); err != nil {
		return a, 0, err
	}
	if a.UserID != nil && *a.UserID == opts.UserID {
		return a, 0, domain.Invalid("assignment %d already belongs to user %d", a.ID, opts.UserID)
	}
	undo := switchUndo{AssignmentID: a.ID, PrevUserID: a.UserID, PrevTemporaryUntil: a.TemporaryUntil, UserID: opts.UserID}
	a.UserID = idPtr(opts.UserID)
	a.TemporaryUntil = until
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return a, 0, err
	}
	logID, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.SwitchTemporary,
		ActorID: opts.ActorID,
		TaskID:  idPtr(a.TaskID),
		Details: actionlog.Details{"assignment_id": a.ID, "prev_user_id": undo.PrevUserID, "user_id": opts.UserID, "until": until},
		Undo:    undo,
	})
	if err != nil {
		return a, 0, err
	}
	if err := commit(tx); err != nil {
		return a, 0, err
	}
	e.Metrics.Action(actionlog.SwitchTemporary)
	return a, logID, nil
}

// Cover hands an open assignment to coverUserID and owes them one skip on
// this task's rotation. The turn stays with the covered member, so the
// rotation continues as if they had done it.
func (e Engine) Cover(ctx context.Context, assignmentID, coverUserID int64, actorID *int64) (domain.Assignment, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	a, err := e.getPendingAssignment(ctx, tx, assignmentID)
	if err != nil {
		return a, err
	}
	t, err := e.getTask(ctx, tx, a.TaskID)
	if err != nil {
		return a, err
	}
	// Skip tokens are only spent by rotation selection.
	if t.Type != domain.TaskRotating {
		return a, domain.Invalid("task %d is not a rotating task; switch the assignment instead", t.ID)
	}
	if _, err := e.requireActiveUser(ctx, tx, coverUserID); err != nil {
		return a, err
	}
	if a.UserID == nil {
		return a, domain.Invalid("assignment %d has nobody to cover; claim it instead", a.ID)
	}
	if *a.UserID == coverUserID {
		return a, domain.Conflict("user %d already holds assignment %d", coverUserID, a.ID)
	}
	prev := *a.UserID
	if a.TurnUserID == nil {
		a.TurnUserID = idPtr(prev)
	}
	a.UserID = idPtr(coverUserID)
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Repo.AdjustSkipTx(ctx, tx, a.TaskID, coverUserID, 1); err != nil {
		return a, err
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.Cover,
		ActorID: actorID,
		TaskID:  idPtr(a.TaskID),
		Details: actionlog.Details{"assignment_id": a.ID, "covered_user_id": prev, "cover_user_id": coverUserID, "skip_delta": 1},
	}); err != nil {
		return a, err
	}
	if err := commit(tx); err != nil {
		return a, err
	}
	e.Metrics.Action(actionlog.Cover)
	return a, nil
}

// MarkDoneResult is the outcome of completing an assignment.
type MarkDoneResult struct {
	Assignment domain.Assignment  `json:"assignment"`
	Next       *domain.Assignment `json:"next,omitempty"`
	Task       domain.Task        `json:"task"`
	LogID      int64              `json:"log_id"`
}

// countdownUndo captures a one-cycle swap as it stood before a completion
// ticked it. SwappedOrder is the order that was in effect.
type countdownUndo struct {
	PrevRemaining int     `json:"prev_remaining"`
	Reverted      bool    `json:"reverted"`
	SwappedOrder  []int64 `json:"swapped_order,omitempty"`
	OriginalOrder []int64 `json:"original_order,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type markDoneUndo struct {
	AssignmentID   int64          `json:"assignment_id"`
	TaskID         int64          `json:"task_id"`
	UserID         int64          `json:"user_id"`
	Points         int64          `json:"points"`
	PrevNextDueAt  *string        `json:"prev_next_due_at"`
	PrevUrgency    int            `json:"prev_urgency_score"`
	PrevEscalation int            `json:"prev_escalation_level"`
	WasUnassigned  bool           `json:"was_unassigned,omitempty"`
	FollowUpID     int64          `json:"follow_up_assignment_id,omitempty"`
	ConsumedSkips  []int64        `json:"consumed_skips,omitempty"`
	Countdown      *countdownUndo `json:"countdown,omitempty"`
}

// MarkDone completes a pending assignment, credits the doer and plans the
// next occurrence according to the task type. actorID is credited when the
// assignment has no user.
func (e Engine) MarkDone(ctx context.Context, assignmentID int64, actorID *int64) (MarkDoneResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return MarkDoneResult{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssignmentTx(ctx, tx, assignmentID)
	if err != nil {
		return MarkDoneResult{}, notFound(err, "assignment", assignmentID)
	}
	if a.Status != domain.AssignmentPending {
		return MarkDoneResult{}, domain.Conflict("assignment %d is already done", a.ID)
	}
	t, err := e.getTask(ctx, tx, a.TaskID)
	if err != nil {
		return MarkDoneResult{}, err
	}
	var credited int64
	switch {
	case a.UserID != nil:
		credited = *a.UserID
	case actorID != nil:
		credited = *actorID
	default:
		return MarkDoneResult{}, domain.Invalid("assignment %d has no user; an acting user is required", a.ID)
	}
	if _, err := e.getUser(ctx, tx, credited); err != nil {
		return MarkDoneResult{}, err
	}

	now := e.now()
	undo := markDoneUndo{
		AssignmentID:   a.ID,
		TaskID:         t.ID,
		UserID:         credited,
		Points:         t.Points,
		PrevNextDueAt:  t.NextDueAt,
		PrevUrgency:    t.UrgencyScore,
		PrevEscalation: t.EscalationLevel,
	}
	a.Status = domain.AssignmentDone
	a.DoneAt = tsPtr(now)
	a.CreditsAwarded = t.Points
	if a.UserID == nil {
		undo.WasUnassigned = true
		a.UserID = idPtr(credited)
	}
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return MarkDoneResult{}, err
	}
	if err := e.Repo.AddCredits(ctx, tx, credited, t.Points, formatTS(now)); err != nil {
		return MarkDoneResult{}, notFound(err, "user", credited)
	}
	t.UrgencyScore = 0
	t.EscalationLevel = 0

	next, err := e.planNext(ctx, tx, &t, a, now, &undo)
	if err != nil {
		return MarkDoneResult{}, err
	}
	t.UpdatedAt = formatTS(now)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return MarkDoneResult{}, notFound(err, "task", t.ID)
	}
	details := actionlog.Details{"assignment_id": a.ID, "user_id": credited, "points": t.Points, "next_due_at": t.NextDueAt}
	if next != nil {
		details["next_assignment_id"] = next.ID
		details["next_user_id"] = next.UserID
	}
	logID, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.MarkDone,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: details,
		Undo:    undo,
	})
	if err != nil {
		return MarkDoneResult{}, err
	}
	if err := commit(tx); err != nil {
		return MarkDoneResult{}, err
	}
	e.Metrics.Action(actionlog.MarkDone)
	e.Metrics.Completion(string(t.Type), len(undo.ConsumedSkips))
	e.logger().Info("assignment done",
		slog.Int64("assignment_id", a.ID),
		slog.Int64("task_id", t.ID),
		slog.Int64("user_id", credited),
		slog.Int64("points", t.Points),
	)
	return MarkDoneResult{Assignment: a, Next: next, Task: t, LogID: logID}, nil
}

// planNext schedules the occurrence after done and records in undo what it
// changed. The completed assignment is already closed, so the new pending row
// never collides with it.
func (e Engine) planNext(ctx context.Context, tx *sql.Tx, t *domain.Task, done domain.Assignment, now time.Time, undo *markDoneUndo) (*domain.Assignment, error) {
	if t.Type == domain.TaskOneOff {
		t.NextDueAt = nil
		return nil, nil
	}
	due := tsPtr(now.Add(time.Duration(e.intervalOrDefault(*t)) * day))
	t.NextDueAt = due
	next := domain.Assignment{
		TaskID:    t.ID,
		Status:    domain.AssignmentPending,
		DueAt:     due,
		CreatedAt: formatTS(now),
	}
	if t.Type == domain.TaskRotating {
		last := turnOf(done)
		sel, err := e.selectNext(ctx, tx, *t, last, true)
		if err != nil {
			return nil, err
		}
		for _, id := range sel.Consumed {
			if err := e.Repo.AdjustSkipTx(ctx, tx, t.ID, id, -1); err != nil {
				return nil, err
			}
		}
		undo.ConsumedSkips = sel.Consumed
		if sel.OK {
			next.UserID = idPtr(sel.UserID)
			next.TurnUserID = idPtr(sel.UserID)
		}
		cd, err := e.tickCountdown(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		undo.Countdown = cd
	}
	id, err := e.Repo.InsertAssignment(ctx, tx, next)
	if err != nil {
		return nil, err
	}
	next.ID = id
	undo.FollowUpID = id
	return &next, nil
}

// tickCountdown advances an active one-cycle swap and restores the captured
// order once it runs out.
func (e Engine) tickCountdown(ctx context.Context, tx *sql.Tx, t *domain.Task) (*countdownUndo, error) {
	temp, err := e.Repo.OrderTempTx(ctx, tx, t.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	undo := &countdownUndo{
		PrevRemaining: temp.Remaining,
		SwappedOrder:  slices.Clone(t.RotationUserIDs),
		OriginalOrder: temp.OriginalOrder,
		CreatedAt:     temp.CreatedAt,
	}
	cd, revert := rotation.Countdown{Original: temp.OriginalOrder, Remaining: temp.Remaining}.Tick()
	if revert {
		undo.Reverted = true
		t.RotationUserIDs = cd.Original
		if err := e.Repo.DeleteOrderTempTx(ctx, tx, t.ID); err != nil {
			return nil, err
		}
		return undo, nil
	}
	temp.Remaining = cd.Remaining
	if err := e.Repo.UpsertOrderTempTx(ctx, tx, temp); err != nil {
		return nil, err
	}
	return undo, nil
}

// turnOf is the member whose rotation turn a completed assignment was.
func turnOf(a domain.Assignment) int64 {
	if a.TurnUserID != nil {
		return *a.TurnUserID
	}
	if a.UserID != nil {
		return *a.UserID
	}
	return 0
}

func (e Engine) selectNext(ctx context.Context, tx *sql.Tx, t domain.Task, last int64, consume bool) (rotation.Selection, error) {
	skips, err := e.Repo.SkipsTx(ctx, tx, t.ID)
	if err != nil {
		return rotation.Selection{}, err
	}
	excluded, err := e.excludedUsers(ctx, tx, t)
	if err != nil {
		return rotation.Selection{}, err
	}
	return rotation.Next(rotation.Input{
		Order:    t.RotationUserIDs,
		Last:     last,
		Skips:    skips,
		Excluded: excluded,
	}, consume), nil
}

// AssigneePreview tells who a task goes to next.
type AssigneePreview struct {
	UserID int64  `json:"user_id,omitempty"`
	OK     bool   `json:"ok"`
	Source string `json:"source" enum:"pending,rotation,none"`
}

// NextAssignee previews who the task goes to next without changing anything:
// the open assignment's user if there is one, otherwise the rotation with skip
// tokens left untouched.
func (e Engine) NextAssignee(ctx context.Context, taskID int64) (AssigneePreview, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AssigneePreview{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return AssigneePreview{}, err
	}
	pending, err := e.Repo.PendingAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return AssigneePreview{}, err
	}
	if len(pending) > 0 && pending[0].UserID != nil {
		return AssigneePreview{UserID: *pending[0].UserID, OK: true, Source: "pending"}, nil
	}
	if t.Type != domain.TaskRotating {
		return AssigneePreview{Source: "none"}, nil
	}
	var last int64
	lastDone, err := e.Repo.LastDoneAssignmentTx(ctx, tx, t.ID)
	switch {
	case err == nil:
		last = turnOf(lastDone)
	case !errors.Is(err, repo.ErrNotFound):
		return AssigneePreview{}, err
	}
	sel, err := e.selectNext(ctx, tx, t, last, false)
	if err != nil {
		return AssigneePreview{}, err
	}
	if !sel.OK {
		return AssigneePreview{Source: "none"}, nil
	}
	return AssigneePreview{UserID: sel.UserID, OK: true, Source: "rotation"}, nil
}

func (e Engine) GetAssignment(ctx context.Context, id int64) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, notFound(err, "assignment", id)
	}
	return a, nil
}

// ListAssignments lists assignments newest first.
func (e Engine) ListAssignments(ctx context.Context, f repo.AssignmentFilters) ([]domain.Assignment, error) {
	if f.Status != "" && f.Status != string(domain.AssignmentPending) && f.Status != string(domain.AssignmentDone) {
		return nil, domain.Invalid("invalid status %q", f.Status)
	}
	f.Limit = e.normalizeLimit(f.Limit)
	return e.Repo.ListAssignments(ctx, f)
}
