package engine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"choreline/internal/actionlog"
	"choreline/internal/config"
	"choreline/internal/domain"
	"choreline/internal/repo"
	"choreline/internal/rotation"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title           string
	Description     string
	Type            domain.TaskType
	IntervalDays    *int
	Points          *int64
	RotationUserIDs []int64
	FirstDueAt      *string
	ActorID         *int64
}

// CreateTask stores a task and opens its first pending assignment.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, domain.Invalid("title is required")
	}
	if !opts.Type.Valid() {
		return domain.Task{}, domain.Invalid("invalid task_type %q", opts.Type)
	}
	if opts.IntervalDays != nil && *opts.IntervalDays <= 0 {
		return domain.Task{}, domain.Invalid("interval_days must be positive")
	}
	if opts.Type.Recurring() && opts.IntervalDays == nil {
		return domain.Task{}, domain.Invalid("interval_days is required for %s tasks", opts.Type)
	}
	points := e.cfg().Defaults.Points
	if opts.Points != nil {
		points = *opts.Points
	}
	if points < 0 {
		return domain.Task{}, domain.Invalid("points must not be negative")
	}
	if len(opts.RotationUserIDs) > 0 && opts.Type != domain.TaskRotating {
		return domain.Task{}, domain.Invalid("rotation_user_ids only apply to rotating tasks")
	}
	if err := rotation.Validate(opts.RotationUserIDs); err != nil {
		return domain.Task{}, domain.Invalid("%s", err.Error())
	}
	now := e.now()
	var nextDue *string
	if opts.FirstDueAt != nil {
		due, err := parseTS(*opts.FirstDueAt)
		if err != nil {
			return domain.Task{}, err
		}
		nextDue = tsPtr(due)
	} else if opts.Type.Recurring() {
		nextDue = tsPtr(now)
	}
	t := domain.Task{
		Title:           title,
		Description:     opts.Description,
		Type:            opts.Type,
		IntervalDays:    opts.IntervalDays,
		Points:          points,
		NextDueAt:       nextDue,
		RotationUserIDs: slices.Clone(opts.RotationUserIDs),
		Blacklist:       []int64{},
		CreatedAt:       formatTS(now),
		UpdatedAt:       formatTS(now),
	}
	if t.RotationUserIDs == nil {
		t.RotationUserIDs = []int64{}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	for _, id := range t.RotationUserIDs {
		if _, err := e.getUser(ctx, tx, id); err != nil {
			return domain.Task{}, err
		}
	}
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	first := domain.Assignment{
		TaskID:    t.ID,
		Status:    domain.AssignmentPending,
		DueAt:     t.NextDueAt,
		CreatedAt: formatTS(now),
	}
	if t.Type == domain.TaskRotating {
		excluded, err := e.excludedUsers(ctx, tx, t)
		if err != nil {
			return domain.Task{}, err
		}
		if userID, ok := rotation.First(t.RotationUserIDs, excluded); ok {
			first.UserID = idPtr(userID)
			first.TurnUserID = idPtr(userID)
		}
	}
	if _, err := e.Repo.InsertAssignment(ctx, tx, first); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.CreateTask,
		ActorID: opts.ActorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"title": t.Title, "task_type": t.Type, "rotation_user_ids": t.RotationUserIDs},
	}); err != nil {
		return domain.Task{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Task{}, err
	}
	e.Metrics.Action(actionlog.CreateTask)
	return t, nil
}

// TaskEditOptions carries the fields to change; nil leaves a field as is.
// RotationUserIDs may only be set while the task has no rotation yet.
type TaskEditOptions struct {
	ID              int64
	Title           *string
	Description     *string
	Points          *int64
	IntervalDays    *int
	RotationUserIDs []int64
	ActorID         *int64
}

func (e Engine) EditTask(ctx context.Context, opts TaskEditOptions) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, opts.ID)
	if err != nil {
		return t, err
	}
	details := actionlog.Details{}
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return t, domain.Invalid("title must not be empty")
		}
		details["title"] = title
		t.Title = title
	}
	if opts.Description != nil {
		details["description"] = *opts.Description
		t.Description = *opts.Description
	}
	if opts.Points != nil {
		if *opts.Points < 0 {
			return t, domain.Invalid("points must not be negative")
		}
		details["points"] = *opts.Points
		t.Points = *opts.Points
	}
	if opts.IntervalDays != nil {
		if *opts.IntervalDays <= 0 {
			return t, domain.Invalid("interval_days must be positive")
		}
		details["interval_days"] = *opts.IntervalDays
		t.IntervalDays = opts.IntervalDays
	}
	if opts.RotationUserIDs != nil {
		if t.Type != domain.TaskRotating {
			return t, domain.Invalid("rotation_user_ids only apply to rotating tasks")
		}
		if len(t.RotationUserIDs) > 0 {
			return t, domain.Conflict("task %d already has a rotation; use a swap to reorder it", t.ID)
		}
		if err := rotation.Validate(opts.RotationUserIDs); err != nil {
			return t, domain.Invalid("%s", err.Error())
		}
		for _, id := range opts.RotationUserIDs {
			if _, err := e.getUser(ctx, tx, id); err != nil {
				return t, err
			}
		}
		t.RotationUserIDs = slices.Clone(opts.RotationUserIDs)
		details["rotation_user_ids"] = t.RotationUserIDs
		if err := e.fillUnassignedTurn(ctx, tx, t); err != nil {
			return t, err
		}
	}
	if len(details) == 0 {
		return t, domain.Invalid("nothing to update")
	}
	t.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.EditTask,
		ActorID: opts.ActorID,
		TaskID:  idPtr(t.ID),
		Details: details,
	}); err != nil {
		return t, err
	}
	if err := commit(tx); err != nil {
		return t, err
	}
	e.Metrics.Action(actionlog.EditTask)
	return t, nil
}

// fillUnassignedTurn hands an open unassigned occurrence to the first
// selectable member once a rotation exists.
func (e Engine) fillUnassignedTurn(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	pending, err := e.Repo.PendingAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	if len(pending) != 1 || pending[0].UserID != nil {
		return nil
	}
	excluded, err := e.excludedUsers(ctx, tx, t)
	if err != nil {
		return err
	}
	userID, ok := rotation.First(t.RotationUserIDs, excluded)
	if !ok {
		return nil
	}
	a := pending[0]
	a.UserID = idPtr(userID)
	a.TurnUserID = idPtr(userID)
	return e.Repo.UpdateAssignment(ctx, tx, a)
}

// ResetTask restarts the interval of a recurring task from now.
func (e Engine) ResetTask(ctx context.Context, taskID int64, actorID *int64) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if !t.Type.Recurring() {
		return t, domain.Invalid("one-off tasks cannot be reset")
	}
	if t.Archived {
		return t, domain.Conflict("task %d is archived", t.ID)
	}
	now := e.now()
	prev := t.NextDueAt
	t.NextDueAt = tsPtr(now.Add(time.Duration(e.intervalOrDefault(t)) * day))
	t.UpdatedAt = formatTS(now)
	pending, err := e.Repo.PendingAssignmentsTx(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	for _, a := range pending {
		a.DueAt = t.NextDueAt
		if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
			return t, err
		}
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.ResetTask,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"prev_next_due_at": prev, "next_due_at": t.NextDueAt},
	}); err != nil {
		return t, err
	}
	if err := commit(tx); err != nil {
		return t, err
	}
	e.Metrics.Action(actionlog.ResetTask)
	return t, nil
}

type voteUndo struct {
	TaskID int64 `json:"task_id"`
	Delta  int   `json:"delta"`
}

// VoteUrgency moves the urgency score by direction (+1 or -1) within the
// configured band. The applied delta may be zero at the band edge.
func (e Engine) VoteUrgency(ctx context.Context, taskID int64, direction int, actorID *int64) (domain.Task, int64, error) {
	if direction != 1 && direction != -1 {
		return domain.Task{}, 0, domain.Invalid("vote direction must be +1 or -1")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, 0, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return t, 0, err
	}
	limit := e.cfg().Urgency.MaxVotes
	score := min(max(t.UrgencyScore+direction, -limit), limit)
	applied := score - t.UrgencyScore
	t.UrgencyScore = score
	t.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, 0, notFound(err, "task", t.ID)
	}
	logID, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.UrgencyVote,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"direction": direction, "applied": applied, "urgency_score": score},
		Undo:    voteUndo{TaskID: t.ID, Delta: applied},
	})
	if err != nil {
		return t, 0, err
	}
	if err := commit(tx); err != nil {
		return t, 0, err
	}
	e.Metrics.Action(actionlog.UrgencyVote)
	return t, logID, nil
}

// Escalate bumps the escalation level, saturating at the configured maximum.
func (e Engine) Escalate(ctx context.Context, taskID int64, actorID *int64) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	prev := t.EscalationLevel
	t.EscalationLevel = min(t.EscalationLevel+1, e.cfg().Escalation.Max)
	t.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.Escalate,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"prev_level": prev, "level": t.EscalationLevel},
	}); err != nil {
		return t, err
	}
	if err := commit(tx); err != nil {
		return t, err
	}
	e.Metrics.Action(actionlog.Escalate)
	return t, nil
}

// BlacklistOptions adds or removes a user from a task's exclusion set.
type BlacklistOptions struct {
	TaskID   int64
	UserID   int64
	Excluded bool
	ActorID  *int64
}

func (e Engine) SetBlacklist(ctx context.Context, opts BlacklistOptions) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, opts.TaskID)
	if err != nil {
		return t, err
	}
	if _, err := e.getUser(ctx, tx, opts.UserID); err != nil {
		return t, err
	}
	if opts.Excluded == t.Excludes(opts.UserID) {
		return t, nil
	}
	if opts.Excluded {
		t.Blacklist = append(t.Blacklist, opts.UserID)
	} else {
		t.Blacklist = slices.DeleteFunc(t.Blacklist, func(id int64) bool { return id == opts.UserID })
	}
	t.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.Blacklist,
		ActorID: opts.ActorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"user_id": opts.UserID, "excluded": opts.Excluded},
	}); err != nil {
		return t, err
	}
	if err := commit(tx); err != nil {
		return t, err
	}
	e.Metrics.Action(actionlog.Blacklist)
	return t, nil
}

// ArchiveTask hides a task and drops its open assignments.
func (e Engine) ArchiveTask(ctx context.Context, taskID int64, actorID *int64) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if t.Archived {
		return t, domain.Conflict("task %d is already archived", t.ID)
	}
	now := formatTS(e.now())
	t.Archived = true
	t.ArchivedAt = &now
	t.UpdatedAt = now
	removed, err := e.Repo.DeletePendingAssignments(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.ArchiveTask,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"deleted_pending": removed},
	}); err != nil {
		return t, err
	}
	if err := commit(tx); err != nil {
		return t, err
	}
	e.Metrics.Action(actionlog.ArchiveTask)
	return t, nil
}

// UnarchiveTask clears the archived flag. Assignments are not recreated.
func (e Engine) UnarchiveTask(ctx context.Context, taskID int64, actorID *int64) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if !t.Archived {
		return t, domain.Conflict("task %d is not archived", t.ID)
	}
	t.Archived = false
	t.ArchivedAt = nil
	t.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.UnarchiveTask,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
	}); err != nil {
		return t, err
	}
	if err := commit(tx); err != nil {
		return t, err
	}
	e.Metrics.Action(actionlog.UnarchiveTask)
	return t, nil
}

// DeleteTask removes a task with all of its assignments and rotation state.
func (e Engine) DeleteTask(ctx context.Context, taskID int64, actorID *int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return notFound(err, "task", t.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.DeleteTask,
		ActorID: actorID,
		TaskID:  idPtr(t.ID),
		Details: actionlog.Details{"title": t.Title, "task_type": t.Type},
	}); err != nil {
		return err
	}
	if err := commit(tx); err != nil {
		return err
	}
	e.Metrics.Action(actionlog.DeleteTask)
	return nil
}

// excludedUsers is the set rotation selection must pass over: the task's
// blacklist plus inactive members.
func (e Engine) excludedUsers(ctx context.Context, tx *sql.Tx, t domain.Task) (map[int64]bool, error) {
	excluded, err := e.Repo.InactiveUserIDsTx(ctx, tx, t.RotationUserIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range t.Blacklist {
		excluded[id] = true
	}
	return excluded, nil
}

// TaskView is a task with its read-time classification.
type TaskView struct {
	domain.Task
	RemainingDays     *int                `json:"remaining_days,omitempty"`
	Overdue           bool                `json:"overdue"`
	UrgencyClass      domain.UrgencyClass `json:"urgency_class" enum:"green,yellow,red"`
	PendingAssignment *domain.Assignment  `json:"pending_assignment,omitempty"`
	NextAssigneeID    *int64              `json:"next_assignee_id,omitempty"`
}

// RemainingDays is ceil((next_due_at - now) / 1 day) floored at zero. It is
// undefined for one-off tasks and tasks without a due date.
func RemainingDays(t domain.Task, now time.Time) (int, bool) {
	if t.Type == domain.TaskOneOff || t.NextDueAt == nil {
		return 0, false
	}
	due, err := time.Parse(time.RFC3339, *t.NextDueAt)
	if err != nil {
		return 0, false
	}
	left := due.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return int(math.Ceil(left.Hours() / 24)), true
}

// ClassifyUrgency bands a task red/yellow/green from escalation and the share
// of its interval that is left.
func ClassifyUrgency(t domain.Task, now time.Time, cfg *config.Config) domain.UrgencyClass {
	if t.EscalationLevel >= 1 {
		return domain.UrgencyRed
	}
	if t.Type == domain.TaskOneOff || t.NextDueAt == nil || t.IntervalDays == nil || *t.IntervalDays <= 0 {
		return domain.UrgencyGreen
	}
	due, err := time.Parse(time.RFC3339, *t.NextDueAt)
	if err != nil {
		return domain.UrgencyGreen
	}
	left := max(due.Sub(now), 0)
	percent := float64(left) / float64(time.Duration(*t.IntervalDays)*day) * 100
	switch {
	case percent < cfg.Urgency.RedBelow:
		return domain.UrgencyRed
	case percent < cfg.Urgency.YellowBelow:
		return domain.UrgencyYellow
	default:
		return domain.UrgencyGreen
	}
}

func (e Engine) viewOf(ctx context.Context, t domain.Task) (TaskView, error) {
	now := e.now()
	v := TaskView{Task: t, UrgencyClass: ClassifyUrgency(t, now, e.cfg())}
	if days, ok := RemainingDays(t, now); ok {
		v.RemainingDays = &days
	}
	if t.NextDueAt != nil {
		if due, err := time.Parse(time.RFC3339, *t.NextDueAt); err == nil && !due.After(now) {
			v.Overdue = true
		}
	}
	pending, err := e.Repo.PendingAssignments(ctx, t.ID)
	if err != nil {
		return v, err
	}
	if len(pending) > 0 {
		p := pending[0]
		v.PendingAssignment = &p
	}
	next, err := e.NextAssignee(ctx, t.ID)
	if err != nil {
		return v, err
	}
	if next.OK {
		v.NextAssigneeID = idPtr(next.UserID)
	}
	return v, nil
}

// DescribeTask loads a task with its derived fields.
func (e Engine) DescribeTask(ctx context.Context, taskID int64) (TaskView, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskView{}, notFound(err, "task", taskID)
	}
	return e.viewOf(ctx, t)
}

// ListTaskViews lists tasks with their derived fields.
func (e Engine) ListTaskViews(ctx context.Context, f repo.TaskFilters) ([]TaskView, error) {
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		v, err := e.viewOf(ctx, t)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}
