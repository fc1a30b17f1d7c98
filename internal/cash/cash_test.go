package cash_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Esemudje/portfolio-manager-team02/internal/cash"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeBank struct {
	balance   decimal.Decimal
	withdrawn int
	deposited int
}

func (f *fakeBank) GetCashBalance(context.Context) (decimal.Decimal, error) { return f.balance, nil }

func (f *fakeBank) Deposit(_ context.Context, amt decimal.Decimal) (*model.CashResult, error) {
	f.deposited++
	f.balance = f.balance.Add(amt)
	return &model.CashResult{Success: true, Message: "Deposit successful"}, nil
}

func (f *fakeBank) Withdraw(_ context.Context, amt decimal.Decimal) (*model.CashResult, error) {
	f.withdrawn++
	f.balance = f.balance.Sub(amt)
	return &model.CashResult{Success: true, Message: "Withdrawal successful"}, nil
}

func TestValidateWithdrawal(t *testing.T) {
	bal := d("100")
	assert.NoError(t, cash.ValidateWithdrawal(d("100"), bal))
	assert.NoError(t, cash.ValidateWithdrawal(d("0.01"), bal))
	assert.ErrorIs(t, cash.ValidateWithdrawal(d("100.01"), bal), cash.ErrInsufficientBalance)
	assert.ErrorIs(t, cash.ValidateWithdrawal(d("0"), bal), cash.ErrInvalidAmount)
	assert.ErrorIs(t, cash.ValidateWithdrawal(d("-5"), bal), cash.ErrInvalidAmount)
}

func TestValidateDeposit(t *testing.T) {
	assert.NoError(t, cash.ValidateDeposit(d("0.01")))
	assert.ErrorIs(t, cash.ValidateDeposit(decimal.Zero), cash.ErrInvalidAmount)
}

func TestDepositRefreshesBalance(t *testing.T) {
	bank := &fakeBank{balance: d("10000")}
	res, err := cash.NewService(bank).Deposit(context.Background(), d("250.50"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Balance.Valid)
	assert.True(t, res.Balance.Decimal.Equal(d("10250.50")))
}

func TestWithdrawOverBalanceNeverCallsBackend(t *testing.T) {
	bank := &fakeBank{balance: d("50")}
	_, err := cash.NewService(bank).Withdraw(context.Background(), d("60"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cash.ErrInsufficientBalance))
	assert.Zero(t, bank.withdrawn)
	assert.True(t, bank.balance.Equal(d("50")))
}

func TestWithdraw(t *testing.T) {
	bank := &fakeBank{balance: d("50")}
	res, err := cash.NewService(bank).Withdraw(context.Background(), d("50"))
	require.NoError(t, err)
	assert.True(t, res.Balance.Decimal.IsZero())
	assert.Equal(t, 1, bank.withdrawn)
}
