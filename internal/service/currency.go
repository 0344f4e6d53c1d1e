package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// CurrencyLedger is the only code that moves a user's balance. Every method
// runs inside the caller's scope and refreshes user.Balance from the stored
// value on success.
type CurrencyLedger struct {
	logger *slog.Logger
}

func NewCurrencyLedger(logger *slog.Logger) *CurrencyLedger {
	return &CurrencyLedger{logger: logger}
}

// Credit adds amount to the user's balance and returns the new balance.
func (c *CurrencyLedger) Credit(ctx context.Context, repos repository.Repositories, user *model.User, amount int64) (int64, error) {
	if user == nil {
		return 0, apperror.InvalidAmount("a user is required to receive credit")
	}
	if amount <= 0 {
		return 0, apperror.InvalidAmount(fmt.Sprintf("credit amount must be positive, got %d", amount))
	}

	balance, err := repos.Users().AdjustBalance(ctx, user.ID, amount)
	if err != nil {
		return 0, fmt.Errorf("crediting user %s: %w", user.ID, err)
	}
	user.Balance = balance

	c.logger.Debug("balance credited",
		slog.String("userID", user.ID),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// Debit subtracts exactly amount. It fails with *apperror.InsufficientCreditError
// when the stored balance is lower than amount; the check and the write are
// one statement, so concurrent debits cannot overdraw.
func (c *CurrencyLedger) Debit(ctx context.Context, repos repository.Repositories, user *model.User, amount int64) (int64, error) {
	if user == nil {
		return 0, apperror.UserRequired()
	}
	if amount <= 0 {
		return 0, apperror.InvalidAmount(fmt.Sprintf("debit amount must be positive, got %d", amount))
	}

	balance, err := repos.Users().AdjustBalance(ctx, user.ID, -amount)
	if err != nil {
		return 0, fmt.Errorf("debiting user %s: %w", user.ID, err)
	}
	user.Balance = balance

	c.logger.Debug("balance debited",
		slog.String("userID", user.ID),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// DebitClamped removes min(amount, balance) and never fails for lack of
// funds. It returns how much was removed and the new balance. Non-positive
// amounts change nothing.
func (c *CurrencyLedger) DebitClamped(ctx context.Context, repos repository.Repositories, user *model.User, amount int64) (int64, int64, error) {
	if user == nil {
		return 0, 0, apperror.UserRequired()
	}

	current, err := repos.Users().GetUserByID(ctx, user.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("reading balance of user %s: %w", user.ID, err)
	}
	user.Balance = current.Balance

	removed := min(amount, current.Balance)
	if removed <= 0 {
		return 0, current.Balance, nil
	}

	balance, err := repos.Users().AdjustBalance(ctx, user.ID, -removed)
	if err != nil {
		return 0, 0, fmt.Errorf("debiting user %s: %w", user.ID, err)
	}
	user.Balance = balance

	if removed < amount {
		c.logger.Info("clamped debit",
			slog.String("userID", user.ID),
			slog.Int64("requested", amount),
			slog.Int64("removed", removed),
		)
	}
	return removed, balance, nil
}
