package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *Memory {
	m := NewMemory()
	m.PutAccount(model.Account{ID: "acc-1", Class: types.AccountClassLive, Leverage: 100, WalletBalance: decimal.NewFromInt(1000)})
	return m
}

func TestWithAccountLockDiscardsOnError(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithAccountLock(ctx, "acc-1", func(tx Tx) error {
		a := tx.Account()
		a.WalletBalance = decimal.Zero
		require.NoError(t, tx.UpdateAccount(ctx, a))
		require.NoError(t, tx.InsertOrder(ctx, model.Order{ID: "o-1", AccountID: "acc-1", Status: types.OrderStatusOpen}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, a.WalletBalance.Equal(decimal.NewFromInt(1000)))
	_, err = m.GetOrder(ctx, "o-1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpdateOrderChecksExpectedStatus(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	o := model.Order{ID: "o-1", AccountID: "acc-1", Status: types.OrderStatusPending, CreatedAt: time.Now()}
	require.NoError(t, m.WithAccountLock(ctx, "acc-1", func(tx Tx) error { return tx.InsertOrder(ctx, o) }))

	err := m.WithAccountLock(ctx, "acc-1", func(tx Tx) error {
		next := o
		next.Status = types.OrderStatusOpen
		ok, err := tx.UpdateOrder(ctx, next, types.OrderStatusPending)
		require.NoError(t, err)
		assert.True(t, ok)

		next.Status = types.OrderStatusCancelled
		ok, err = tx.UpdateOrder(ctx, next, types.OrderStatusPending)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	got, err := m.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusOpen, got.Status)
}

func TestWithAccountLockSerializes(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithAccountLock(ctx, "acc-1", func(tx Tx) error {
				a := tx.Account()
				a.WalletBalance = a.WalletBalance.Add(decimal.NewFromInt(1))
				return tx.UpdateAccount(ctx, a)
			})
		}()
	}
	wg.Wait()

	a, err := m.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, a.WalletBalance.Equal(decimal.NewFromInt(1050)), a.WalletBalance.String())
}

func TestFindOrderByAnyCorrelationID(t *testing.T) {
	m := seeded()
	ctx := context.Background()
	o := model.Order{ID: "o-1", AccountID: "acc-1", Status: types.OrderStatusOpen, CorrelationID: "c-open", CloseID: "c-close"}
	require.NoError(t, m.WithAccountLock(ctx, "acc-1", func(tx Tx) error { return tx.InsertOrder(ctx, o) }))

	got, err := m.FindOrderByCorrelationID(ctx, "c-close")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)

	_, err = m.FindOrderByCorrelationID(ctx, "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAccountsWithExposure(t *testing.T) {
	m := seeded()
	m.PutAccount(model.Account{ID: "acc-2"})
	ctx := context.Background()
	require.NoError(t, m.WithAccountLock(ctx, "acc-1", func(tx Tx) error {
		return tx.InsertOrder(ctx, model.Order{ID: "o-1", AccountID: "acc-1", Status: types.OrderStatusOpen})
	}))
	require.NoError(t, m.WithAccountLock(ctx, "acc-2", func(tx Tx) error {
		return tx.InsertOrder(ctx, model.Order{ID: "o-2", AccountID: "acc-2", Status: types.OrderStatusPending})
	}))

	ids, err := m.ListAccountsWithExposure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-1"}, ids)
}
