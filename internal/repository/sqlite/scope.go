package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/recshare/internal/repository"
)

var errScopeClosed = errors.New("sqlite: scope already committed or aborted")

// Scope is a repository.Scope backed by a single *sql.Tx.
type Scope struct {
	tx   *sql.Tx
	done bool
}

var _ repository.Scope = (*Scope)(nil)

// Begin opens a transaction. The caller must defer End on the returned scope.
func (db *DB) Begin(ctx context.Context) (repository.Scope, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	return &Scope{tx: tx}, nil
}

func (s *Scope) Users() repository.UserRepository { return &UserDB{q: s.tx} }

func (s *Scope) Market() repository.MarketRepository { return &MarketDB{q: s.tx} }

func (s *Scope) Purchases() repository.PurchaseRepository { return &PurchaseDB{q: s.tx} }

func (s *Scope) Tokens() repository.TokenRepository { return &TokenDB{q: s.tx} }

func (s *Scope) Notifications() repository.NotificationRepository {
	return &NotificationDB{q: s.tx}
}

// Commit makes every write of the scope durable. A failed commit leaves the
// scope closed; database/sql has already rolled the transaction back.
func (s *Scope) Commit() error {
	if s.done {
		return errScopeClosed
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// Abort discards every write of the scope.
func (s *Scope) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlite: rolling back transaction: %w", err)
	}
	return nil
}

// End aborts the scope unless it was already finished.
func (s *Scope) End() {
	_ = s.Abort()
}
