package server

import (
	"choreline/internal/domain"
	"choreline/internal/engine"
)

// Request payloads

type CreateUserRequest struct {
	Name   string `json:"name" minLength:"1"`
	Active *bool  `json:"active,omitempty"`
}

type UpdateUserRequest struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type CreditRequest struct {
	Delta  int64  `json:"delta" doc:"Signed amount; negative values subtract."`
	Reason string `json:"reason,omitempty"`
	TaskID *int64 `json:"task_id,omitempty"`
}

type CreateTaskRequest struct {
	Title           string  `json:"title" minLength:"1"`
	Description     *string `json:"description,omitempty"`
	TaskType        string  `json:"task_type" enum:"rotating,recurring_unassigned,one_off"`
	IntervalDays    *int    `json:"interval_days,omitempty" minimum:"1"`
	Points          *int64  `json:"points,omitempty" minimum:"0"`
	RotationUserIDs []int64 `json:"rotation_user_ids,omitempty"`
	FirstDueAt      *string `json:"first_due_at,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Points          *int64  `json:"points,omitempty"`
	IntervalDays    *int    `json:"interval_days,omitempty"`
	RotationUserIDs []int64 `json:"rotation_user_ids,omitempty"`
}

type VoteRequest struct {
	Direction string `json:"direction" enum:"up,down"`
}

type AssignRequest struct {
	UserID  int64 `json:"user_id" minimum:"1"`
	DueDays *int  `json:"due_days,omitempty" minimum:"1"`
}

// UserRequest names a user; when omitted the acting user is used.
type UserRequest struct {
	UserID *int64 `json:"user_id,omitempty"`
}

type SwitchRequest struct {
	UserID int64   `json:"user_id" minimum:"1"`
	Until  *string `json:"until,omitempty" format:"date-time"`
}

type SwapRequest struct {
	UserA    int64 `json:"user_a" minimum:"1"`
	UserB    int64 `json:"user_b" minimum:"1"`
	OneCycle bool  `json:"one_cycle,omitempty"`
}

// Response payloads

type UserList struct {
	Items []domain.User `json:"items"`
}

type CreditResponse struct {
	User  domain.User `json:"user"`
	LogID int64       `json:"log_id"`
}

// TaskResponse is a task with its read-time classification, flattened so the
// schema carries no embedded domain types.
type TaskResponse struct {
	ID                int64               `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	Type              domain.TaskType     `json:"task_type" enum:"rotating,recurring_unassigned,one_off"`
	IntervalDays      *int                `json:"interval_days,omitempty"`
	Points            int64               `json:"points"`
	UrgencyScore      int                 `json:"urgency_score"`
	EscalationLevel   int                 `json:"escalation_level"`
	NextDueAt         *string             `json:"next_due_at,omitempty" format:"date-time"`
	Archived          bool                `json:"archived"`
	ArchivedAt        *string             `json:"archived_at,omitempty" format:"date-time"`
	RotationUserIDs   []int64             `json:"rotation_user_ids"`
	Blacklist         []int64             `json:"blacklist"`
	CreatedAt         string              `json:"created_at" format:"date-time"`
	UpdatedAt         string              `json:"updated_at" format:"date-time"`
	RemainingDays     *int                `json:"remaining_days,omitempty"`
	Overdue           bool                `json:"overdue"`
	UrgencyClass      domain.UrgencyClass `json:"urgency_class" enum:"green,yellow,red"`
	PendingAssignment *domain.Assignment  `json:"pending_assignment,omitempty"`
	NextAssigneeID    *int64              `json:"next_assignee_id,omitempty"`
}

func taskResponse(v engine.TaskView) TaskResponse {
	return TaskResponse{
		ID:                v.ID,
		Title:             v.Title,
		Description:       v.Description,
		Type:              v.Type,
		IntervalDays:      v.IntervalDays,
		Points:            v.Points,
		UrgencyScore:      v.UrgencyScore,
		EscalationLevel:   v.EscalationLevel,
		NextDueAt:         v.NextDueAt,
		Archived:          v.Archived,
		ArchivedAt:        v.ArchivedAt,
		RotationUserIDs:   nonNil(v.RotationUserIDs),
		Blacklist:         nonNil(v.Blacklist),
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
		RemainingDays:     v.RemainingDays,
		Overdue:           v.Overdue,
		UrgencyClass:      v.UrgencyClass,
		PendingAssignment: v.PendingAssignment,
		NextAssigneeID:    v.NextAssigneeID,
	}
}

type TaskList struct {
	Items []TaskResponse `json:"items"`
}

type VoteResponse struct {
	Task  domain.Task `json:"task"`
	LogID int64       `json:"log_id"`
}

type AssignmentList struct {
	Items []domain.Assignment `json:"items"`
}

type AssignmentResponse struct {
	Assignment domain.Assignment `json:"assignment"`
	LogID      int64             `json:"log_id,omitempty"`
}

type LogEntryResponse struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	ActorID    *int64         `json:"actor_id,omitempty"`
	TaskID     *int64         `json:"task_id,omitempty"`
	Details    map[string]any `json:"details"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	ReversedAt *string        `json:"reversed_at,omitempty" format:"date-time"`
	Reversible bool           `json:"reversible"`
}

type LogList struct {
	Items []LogEntryResponse `json:"items"`
}

func logEntryResponse(l domain.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:         l.ID,
		Action:     l.Action,
		ActorID:    l.ActorID,
		TaskID:     l.TaskID,
		Details:    l.Details,
		CreatedAt:  l.CreatedAt,
		ReversedAt: l.ReversedAt,
		Reversible: l.Reversible() && engine.CanReverse(l.Action),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
