package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

var _ repository.TokenRepository = (*TokenDB)(nil)

// TokenDB reads and writes the account_tokens table.
type TokenDB struct {
	q querier
}

// CreateToken stores a minted token. The caller assigns the ID, since it is
// part of the plaintext handed to the minter.
func (t *TokenDB) CreateToken(ctx context.Context, token *model.AccountToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO account_tokens (id, created_by, secret_hash, created_at)
		 VALUES (?, ?, ?, ?)`,
		token.ID,
		token.CreatedBy,
		token.SecretHash,
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperror.Conflict("account token", token.ID)
		}
		return fmt.Errorf("sqlite: inserting account token: %w", err)
	}
	return nil
}

func (t *TokenDB) GetToken(ctx context.Context, id string) (*model.AccountToken, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT id, created_by, secret_hash, created_at, used_by, used_at
		 FROM account_tokens WHERE id = ?`, id)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account token", id)
		}
		return nil, fmt.Errorf("sqlite: getting account token %s: %w", id, err)
	}
	return token, nil
}

// MarkTokenUsed only matches rows whose used_at is still NULL, so a token
// can be consumed once even when two consumers race.
func (t *TokenDB) MarkTokenUsed(ctx context.Context, id, usedBy string, at time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE account_tokens SET used_by = ?, used_at = ?
		 WHERE id = ? AND used_at IS NULL`,
		usedBy, at, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking account token %s used: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM account_tokens WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking account token %s: %w", id, err)
	}
	if exists == 0 {
		return apperror.NotFound("account token", id)
	}
	return apperror.Conflict("account token", id)
}

func (t *TokenDB) ListTokensByCreator(ctx context.Context, userID string) ([]model.AccountToken, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, created_by, secret_hash, created_at, used_by, used_at
		 FROM account_tokens WHERE created_by = ?
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing account tokens of %s: %w", userID, err)
	}
	defer rows.Close()

	tokens := []model.AccountToken{}
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning account token: %w", err)
		}
		tokens = append(tokens, *token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating account tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(s rowScanner) (*model.AccountToken, error) {
	var (
		token  model.AccountToken
		usedAt sql.NullTime
	)
	if err := s.Scan(
		&token.ID,
		&token.CreatedBy,
		&token.SecretHash,
		&token.CreatedAt,
		&token.UsedBy,
		&usedAt,
	); err != nil {
		return nil, err
	}
	if usedAt.Valid {
		at := usedAt.Time
		token.UsedAt = &at
	}
	return &token, nil
}
