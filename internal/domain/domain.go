package domain

type TaskType string

const (
	TaskRotating            TaskType = "rotating"
	TaskRecurringUnassigned TaskType = "recurring_unassigned"
	TaskOneOff              TaskType = "one_off"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskRotating, TaskRecurringUnassigned, TaskOneOff:
		return true
	}
	return false
}

// Recurring reports whether tasks of this type re-trigger after completion.
func (t TaskType) Recurring() bool {
	return t == TaskRotating || t == TaskRecurringUnassigned
}

type AssignmentStatus string

const (
	AssignmentPending AssignmentStatus = "pending"
	AssignmentDone    AssignmentStatus = "done"
)

type UrgencyClass string

const (
	UrgencyGreen  UrgencyClass = "green"
	UrgencyYellow UrgencyClass = "yellow"
	UrgencyRed    UrgencyClass = "red"
)

type User struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Active          bool    `json:"active"`
	Credits         int64   `json:"credits"`
	ProfileImageURL *string `json:"profile_image_url,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Type            TaskType `json:"task_type" enum:"rotating,recurring_unassigned,one_off"`
	IntervalDays    *int     `json:"interval_days,omitempty"`
	Points          int64    `json:"points"`
	UrgencyScore    int      `json:"urgency_score"`
	EscalationLevel int      `json:"escalation_level"`
	NextDueAt       *string  `json:"next_due_at,omitempty" format:"date-time"`
	Archived        bool     `json:"archived"`
	ArchivedAt      *string  `json:"archived_at,omitempty" format:"date-time"`
	RotationUserIDs []int64  `json:"rotation_user_ids"`
	Blacklist       []int64  `json:"blacklist"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

// Excludes reports whether userID is on the task's exclusion list.
func (t Task) Excludes(userID int64) bool {
	for _, id := range t.Blacklist {
		if id == userID {
			return true
		}
	}
	return false
}

// HasMember reports whether userID is part of the rotation order.
func (t Task) HasMember(userID int64) bool {
	for _, id := range t.RotationUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Assignment struct {
	ID             int64            `json:"id"`
	TaskID         int64            `json:"task_id"`
	UserID         *int64           `json:"user_id,omitempty"`
	TurnUserID     *int64           `json:"turn_user_id,omitempty"`
	Status         AssignmentStatus `json:"status" enum:"pending,done"`
	DueAt          *string          `json:"due_at,omitempty" format:"date-time"`
	DoneAt         *string          `json:"done_at,omitempty" format:"date-time"`
	CreditsAwarded int64            `json:"credits_awarded"`
	TemporaryUntil *string          `json:"temporary_until,omitempty" format:"date-time"`
	CreatedAt      string           `json:"created_at" format:"date-time"`
}

type RotationSkip struct {
	TaskID int64 `json:"task_id"`
	UserID int64 `json:"user_id"`
	Count  int   `json:"count"`
}

type RotationOrderTemp struct {
	TaskID        int64   `json:"task_id"`
	OriginalOrder []int64 `json:"original_order"`
	Remaining     int     `json:"remaining"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type LogEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	ActorID    *int64         `json:"actor_id,omitempty"`
	TaskID     *int64         `json:"task_id,omitempty"`
	Details    map[string]any `json:"details"`
	UndoJSON   *string        `json:"-"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	ReversedAt *string        `json:"reversed_at,omitempty" format:"date-time"`
}

// Reversible reports whether the entry carries an undo payload and has not
// been reversed yet.
func (l LogEntry) Reversible() bool {
	return l.UndoJSON != nil && l.ReversedAt == nil
}
