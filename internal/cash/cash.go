// Package cash validates and performs deposits and withdrawals.
package cash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Esemudje/portfolio-manager-team02/internal/format"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
)

var (
	ErrInvalidAmount       = errors.New("cash: amount must be greater than zero")
	ErrInsufficientBalance = errors.New("cash: insufficient funds for withdrawal")
)

// ValidateDeposit accepts any positive amount.
func ValidateDeposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

// ValidateWithdrawal accepts 0 < amount <= balance.
func ValidateWithdrawal(amount, balance decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientBalance, format.Currency(amount), format.Currency(balance))
	}
	return nil
}

// Backend is the subset of the backend client cash operations need.
type Backend interface {
	GetCashBalance(ctx context.Context) (decimal.Decimal, error)
	Deposit(ctx context.Context, amount decimal.Decimal) (*model.CashResult, error)
	Withdraw(ctx context.Context, amount decimal.Decimal) (*model.CashResult, error)
}

// Service moves cash in and out of the account. After every successful
// movement the balance is refetched rather than computed locally.
type Service struct {
	backend Backend
}

func NewService(b Backend) *Service {
	return &Service{backend: b}
}

// Balance returns the authoritative cash balance.
func (s *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := s.backend.GetCashBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cash balance: %w", err)
	}
	return bal, nil
}

// Deposit validates and deposits amount.
func (s *Service) Deposit(ctx context.Context, amount decimal.Decimal) (*model.CashResult, error) {
	if err := ValidateDeposit(amount); err != nil {
		return nil, err
	}
	res, err := s.backend.Deposit(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	slog.Info("cash deposited", "amount", amount.String())
	return s.settle(ctx, res), nil
}

// Withdraw checks amount against the current balance, then withdraws it.
func (s *Service) Withdraw(ctx context.Context, amount decimal.Decimal) (*model.CashResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	bal, err := s.Balance(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateWithdrawal(amount, bal); err != nil {
		return nil, err
	}
	res, err := s.backend.Withdraw(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	slog.Info("cash withdrawn", "amount", amount.String())
	return s.settle(ctx, res), nil
}

// settle replaces the balance in res with a fresh read. If the read fails
// the balance the backend echoed, if any, is kept.
func (s *Service) settle(ctx context.Context, res *model.CashResult) *model.CashResult {
	out := *res
	out.Success = true
	if bal, err := s.backend.GetCashBalance(ctx); err == nil {
		out.Balance = decimal.NewNullDecimal(bal)
	} else {
		slog.Warn("cash balance refresh failed", "err", err)
	}
	return &out
}
