package swap_test

import (
	"context"
	"testing"
	"time"

	"lv-tradecore/internal/bridge"
	"lv-tradecore/internal/swap"
	tf "lv-tradecore/internal/testfixture"
	"lv-tradecore/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharge(t *testing.T) {
	inst := tf.EURUSD()
	assert.Equal(t, "0.022", swap.Charge(types.OrderSideBuy, tf.D("1"), tf.D("1.1"), inst).String())
	assert.Equal(t, "-0.022", swap.Charge(types.OrderSideSell, tf.D("2"), tf.D("1.1"), inst).String())
	// rounded to 8 places
	assert.Equal(t, "0.00000002", swap.Charge(types.OrderSideBuy, tf.D("0.000001"), tf.D("1"), inst).String())
}

func TestNextRun(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 3, 10, h, m, 0, 0, time.UTC) }
	assert.Equal(t, at(21, 0), swap.NextRun(at(9, 30), 21))
	assert.Equal(t, at(21, 0).AddDate(0, 0, 1), swap.NextRun(at(21, 0), 21))
	assert.Equal(t, at(21, 0).AddDate(0, 0, 1), swap.NextRun(at(22, 15), 21))
}

func TestAccrueChargesOpenOrders(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	buy := f.Market(t, types.OrderSideBuy, "1")
	pending := f.Pending(t, types.OrderSideBuy, types.OrderKindLimit, "1", "1.0500")
	job := swap.NewJob(f.Store, f.Config, f.Quotes, f.Engine, 21)

	res := job.Accrue(ctx)
	require.Equal(t, 1, res.Charged)
	job.Accrue(ctx)

	assert.Equal(t, "0.044", f.Order(t, buy.ID).Swap.String())
	assert.True(t, f.Order(t, pending.ID).Swap.IsZero())
	acts, err := f.Store.ListActions(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionSwap, acts[len(acts)-1].Action)

	closed, err := f.Orders.CloseAt(ctx, tf.AccountID, buy.ID, types.ActionClose)
	require.NoError(t, err)
	// net -27 at the 1.0998 bid, minus 0.044 swap
	assert.Equal(t, "-27", closed.NetProfit.String())
	assert.Equal(t, "9972.956", f.Account(t, tf.AccountID).WalletBalance.String())
}

func TestAccrueSkipsBridgeAccounts(t *testing.T) {
	f := tf.New(t, types.RoutingBridge)
	ctx := context.Background()
	o := f.Market(t, types.OrderSideBuy, "1")
	_, err := f.Orders.ApplyConfirmation(ctx, bridge.Confirmation{CorrelationID: o.CorrelationID, Status: bridge.ConfirmOpen, Price: tf.P("1.1")})
	require.NoError(t, err)
	job := swap.NewJob(f.Store, f.Config, f.Quotes, nil, 21)

	res := job.Accrue(ctx)

	assert.Equal(t, 0, res.Charged)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, f.Order(t, o.ID).Swap.IsZero())
}
