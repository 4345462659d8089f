package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"choreline/internal/actionlog"
	"choreline/internal/config"
	"choreline/internal/domain"
	"choreline/internal/logging"
	"choreline/internal/metrics"
	"choreline/internal/repo"
)

const day = 24 * time.Hour

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Log     actionlog.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Log:    actionlog.Writer{},
		Config: cfg,
		Now:    time.Now,
		Logger: logging.Discard(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) cfg() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default("home")
}

// record appends a log entry stamped with the engine clock.
func (e Engine) record(ctx context.Context, tx *sql.Tx, entry actionlog.Entry) (int64, error) {
	w := e.Log
	w.Now = e.now
	id, err := w.Append(ctx, tx, entry)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Invalid("invalid timestamp %q: must be RFC3339", s)
	}
	return t.UTC(), nil
}

func tsPtr(t time.Time) *string {
	s := formatTS(t)
	return &s
}

func idPtr(v int64) *int64 {
	return &v
}

func notFound(err error, kind string, id int64) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound("%s %d not found", kind, id)
	}
	return err
}

func (e Engine) getTask(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return t, notFound(err, "task", id)
	}
	return t, nil
}

func (e Engine) getUser(ctx context.Context, tx *sql.Tx, id int64) (domain.User, error) {
	u, err := e.Repo.GetUserTx(ctx, tx, id)
	if err != nil {
		return u, notFound(err, "user", id)
	}
	return u, nil
}

// requireActiveUser loads a user that may take on work.
func (e Engine) requireActiveUser(ctx context.Context, tx *sql.Tx, id int64) (domain.User, error) {
	u, err := e.getUser(ctx, tx, id)
	if err != nil {
		return u, err
	}
	if !u.Active {
		return u, domain.Invalid("user %d is inactive", id)
	}
	return u, nil
}

func (e Engine) getPendingAssignment(ctx context.Context, tx *sql.Tx, id int64) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignmentTx(ctx, tx, id)
	if err != nil {
		return a, notFound(err, "assignment", id)
	}
	if a.Status != domain.AssignmentPending {
		return a, domain.NotFound("pending assignment %d not found", id)
	}
	return a, nil
}

// intervalOrDefault is the re-trigger period of a task in days.
func (e Engine) intervalOrDefault(t domain.Task) int {
	if t.IntervalDays != nil && *t.IntervalDays > 0 {
		return *t.IntervalDays
	}
	return e.cfg().Defaults.DueDays
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
