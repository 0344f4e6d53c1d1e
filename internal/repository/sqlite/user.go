package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB reads and writes the users table.
type UserDB struct {
	q querier
}

// Create inserts a new user. Accounts are normally created by the external
// signup flow; the engine only needs this for seeding and tests.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.q.ExecContext(ctx,
		`INSERT INTO users (id, username, role, balance, avatar, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Role,
		user.Balance,
		user.Avatar,
		user.Title,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User

	err := u.q.QueryRowContext(ctx,
		`SELECT id, username, role, balance, avatar, title, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&user.ID,
		&user.Username,
		&user.Role,
		&user.Balance,
		&user.Avatar,
		&user.Title,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &user, nil
}

// UpdateProfile writes avatar and title. Balance only moves through
// AdjustBalance.
func (u *UserDB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := u.q.ExecContext(ctx,
		`UPDATE users SET avatar = ?, title = ?, updated_at = ? WHERE id = ?`,
		user.Avatar,
		user.Title,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile of user %s: %w", user.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// AdjustBalance applies delta in a single guarded statement:
//
//	UPDATE users SET balance = balance + ? WHERE id = ? AND balance + ? >= 0
//
// so the check and the write can never be separated by another writer.
// When no row matches, a follow-up read tells a missing user apart from an
// insufficient balance.
func (u *UserDB) AdjustBalance(ctx context.Context, id string, delta int64) (int64, error) {
	var balance int64
	err := u.q.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + ?, updated_at = ?
		 WHERE id = ? AND balance + ? >= 0
		 RETURNING balance`,
		delta, time.Now().UTC(), id, delta,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: adjusting balance of user %s: %w", id, err)
	}

	var current int64
	err = u.q.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("user", id)
		}
		return 0, fmt.Errorf("sqlite: reading balance of user %s: %w", id, err)
	}
	return 0, &apperror.InsufficientCreditError{UserID: id, Available: current, Requested: -delta}
}
