package engine

import (
	"context"
	"log/slog"
	"strings"

	"choreline/internal/actionlog"
	"choreline/internal/domain"
)

// UserCreateOptions are parameters for registering a user.
type UserCreateOptions struct {
	Name    string
	Active  *bool
	ActorID *int64
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.User{}, domain.Invalid("name is required")
	}
	now := formatTS(e.now())
	u := domain.User{
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.Active != nil {
		u.Active = *opts.Active
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertUser(ctx, tx, u)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.CreateUser,
		ActorID: opts.ActorID,
		Details: actionlog.Details{"user_id": u.ID, "name": u.Name},
	}); err != nil {
		return domain.User{}, err
	}
	if err := commit(tx); err != nil {
		return domain.User{}, err
	}
	e.Metrics.Action(actionlog.CreateUser)
	return u, nil
}

// UserUpdateOptions carries the profile fields to change; nil leaves a field as is.
type UserUpdateOptions struct {
	ID      int64
	Name    *string
	Active  *bool
	ActorID *int64
}

func (e Engine) UpdateUser(ctx context.Context, opts UserUpdateOptions) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u, err := e.getUser(ctx, tx, opts.ID)
	if err != nil {
		return u, err
	}
	details := actionlog.Details{"user_id": u.ID}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return u, domain.Invalid("name must not be empty")
		}
		details["prev_name"] = u.Name
		details["name"] = name
		u.Name = name
	}
	if opts.Active != nil {
		details["prev_active"] = u.Active
		details["active"] = *opts.Active
		u.Active = *opts.Active
	}
	u.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return u, notFound(err, "user", u.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.UpdateUser,
		ActorID: opts.ActorID,
		Details: details,
	}); err != nil {
		return u, err
	}
	if err := commit(tx); err != nil {
		return u, err
	}
	e.Metrics.Action(actionlog.UpdateUser)
	return u, nil
}

// SetUserPhoto points the user's profile image at an already stored file.
func (e Engine) SetUserPhoto(ctx context.Context, userID int64, imageURL string, actorID *int64) (domain.User, error) {
	if strings.TrimSpace(imageURL) == "" {
		return domain.User{}, domain.Invalid("image url is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u, err := e.getUser(ctx, tx, userID)
	if err != nil {
		return u, err
	}
	var prev any
	if u.ProfileImageURL != nil {
		prev = *u.ProfileImageURL
	}
	u.ProfileImageURL = &imageURL
	u.UpdatedAt = formatTS(e.now())
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return u, notFound(err, "user", u.ID)
	}
	if _, err := e.record(ctx, tx, actionlog.Entry{
		Action:  actionlog.SetPhoto,
		ActorID: actorID,
		Details: actionlog.Details{"user_id": u.ID, "prev_url": prev, "url": imageURL},
	}); err != nil {
		return u, err
	}
	if err := commit(tx); err != nil {
		return u, err
	}
	e.Metrics.Action(actionlog.SetPhoto)
	return u, nil
}

// CreditOptions describes a manual ledger adjustment. Delta is signed.
type CreditOptions struct {
	UserID  int64
	Delta   int64
	Reason  string
	TaskID  *int64
	ActorID *int64
}

type creditUndo struct {
	UserID int64 `json:"user_id"`
	Delta  int64 `json:"delta"`
}

// AdjustCredit applies a signed delta to a user's credits and logs it as
// ADD_CREDIT or SUB_CREDIT.
func (e Engine) AdjustCredit(ctx context.Context, opts CreditOptions) (domain.User, int64, error) {
	if opts.Delta == 0 {
		return domain.User{}, 0, domain.Invalid("credit delta must not be zero")
	}
	action := actionlog.AddCredit
	if opts.Delta < 0 {
		action = actionlog.SubCredit
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, 0, err
	}
	defer tx.Rollback()

	if _, err := e.getUser(ctx, tx, opts.UserID); err != nil {
		return domain.User{}, 0, err
	}
	if err := e.Repo.AddCredits(ctx, tx, opts.UserID, opts.Delta, formatTS(e.now())); err != nil {
		return domain.User{}, 0, notFound(err, "user", opts.UserID)
	}
	details := actionlog.Details{"user_id": opts.UserID, "delta": opts.Delta}
	if opts.Reason != "" {
		details["reason"] = opts.Reason
	}
	logID, err := e.record(ctx, tx, actionlog.Entry{
		Action:  action,
		ActorID: opts.ActorID,
		TaskID:  opts.TaskID,
		Details: details,
		Undo:    creditUndo{UserID: opts.UserID, Delta: opts.Delta},
	})
	if err != nil {
		return domain.User{}, 0, err
	}
	u, err := e.getUser(ctx, tx, opts.UserID)
	if err != nil {
		return u, 0, err
	}
	if err := commit(tx); err != nil {
		return domain.User{}, 0, err
	}
	e.Metrics.Action(action)
	e.logger().Info("credit adjusted", slog.Int64("user_id", u.ID), slog.Int64("delta", opts.Delta), slog.Int64("log_id", logID))
	return u, logID, nil
}

// AddCredit grants amount (> 0) to a user.
func (e Engine) AddCredit(ctx context.Context, userID, amount int64, reason string, actorID *int64) (domain.User, int64, error) {
	if amount <= 0 {
		return domain.User{}, 0, domain.Invalid("amount must be positive")
	}
	return e.AdjustCredit(ctx, CreditOptions{UserID: userID, Delta: amount, Reason: reason, ActorID: actorID})
}

// SubtractCredit takes amount (> 0) from a user.
func (e Engine) SubtractCredit(ctx context.Context, userID, amount int64, reason string, actorID *int64) (domain.User, int64, error) {
	if amount <= 0 {
		return domain.User{}, 0, domain.Invalid("amount must be positive")
	}
	return e.AdjustCredit(ctx, CreditOptions{UserID: userID, Delta: -amount, Reason: reason, ActorID: actorID})
}
