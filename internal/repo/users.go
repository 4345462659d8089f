package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"choreline/internal/domain"
)

const userColumns = `id,name,active,credits,profile_image_url,created_at,updated_at`

// NameKey is the uniqueness key for display names: trimmed, NFC-normalized and
// case-folded, so "Anna" and "ANNA" collide.
func NameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u      domain.User
		active int
		img    sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &active, &u.Credits, &img, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Active = active == 1
	u.ProfileImageURL = strPtr(img)
	return u, nil
}

// InsertUser stores u and returns its id. A duplicate name yields a conflict.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO users(name,name_key,active,credits,profile_image_url,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.Name, NameKey(u.Name), boolToInt(u.Active), u.Credits, nullableStrPtr(u.ProfileImageURL), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.Conflict("user name %q already taken", u.Name)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

func getUser(ctx context.Context, q queryer, id int64) (domain.User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return getUser(ctx, r.DB, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id int64) (domain.User, error) {
	return getUser(ctx, tx, id)
}

// UserFilters narrows ListUsers.
type UserFilters struct {
	Active *bool
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if f.Active != nil {
		query += ` WHERE active=?`
		args = append(args, boolToInt(*f.Active))
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUser writes the mutable profile fields of u.
func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET name=?, name_key=?, active=?, profile_image_url=?, updated_at=? WHERE id=?`,
		u.Name, NameKey(u.Name), boolToInt(u.Active), nullableStrPtr(u.ProfileImageURL), u.UpdatedAt, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("user name %q already taken", u.Name)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return affectedOrNotFound(res)
}

// AddCredits applies delta to the user's credit total.
func (r Repo) AddCredits(ctx context.Context, tx *sql.Tx, userID, delta int64, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits + ?, updated_at=? WHERE id=?`, delta, updatedAt, userID)
	if err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	return affectedOrNotFound(res)
}

// InactiveUserIDsTx returns the ids among ids whose user is inactive or missing.
func (r Repo) InactiveUserIDsTx(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
		out[id] = true
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM users WHERE active=1 AND id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		delete(out, id)
	}
	return out, rows.Err()
}
