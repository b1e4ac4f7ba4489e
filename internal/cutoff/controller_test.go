package cutoff_test

import (
	"context"
	"testing"
	"time"

	"lv-tradecore/internal/cutoff"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/telemetry"
	tf "lv-tradecore/internal/testfixture"
	"lv-tradecore/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(f *tf.Fixture) *cutoff.Controller {
	return cutoff.NewController(f.Store, f.Engine, f.Config, f.Orders, telemetry.Nop(), tf.D("50"), time.Second)
}

func TestCutoffClosesEveryOpenOrder(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	c := newController(f)
	ctx := context.Background()
	a := f.Market(t, types.OrderSideBuy, "4")
	b := f.Market(t, types.OrderSideBuy, "4")
	assert.False(t, c.Check(ctx, tf.AccountID))
	f.Engine.Invalidate(tf.AccountID)

	f.Tick(tf.Symbol, "1.0900", "1.0902")
	hit := c.Sweep(ctx)

	assert.Equal(t, []string{tf.AccountID}, hit)
	for _, id := range []string{a.ID, b.ID} {
		o := f.Order(t, id)
		assert.Equal(t, types.OrderStatusClosed, o.Status)
	}
	acc := f.Account(t, tf.AccountID)
	assert.True(t, acc.MarginInUse.IsZero())
	// 10000 - 8000 loss - 8 lots * 7 commission
	assert.Equal(t, "1944", acc.WalletBalance.String())
}

func TestNoCutoffWithoutPricedPositions(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	c := newController(f)
	ctx := context.Background()
	acc := f.Account(t, tf.AccountID)
	acc.WalletBalance = tf.D("100")
	acc.MarginInUse = tf.D("150")
	f.Store.PutAccount(acc)
	err := f.Store.WithAccountLock(ctx, tf.AccountID, func(tx store.Tx) error {
		return tx.InsertOrder(ctx, model.Order{
			ID:            "unpriced",
			AccountID:     tf.AccountID,
			Symbol:        "GBPUSD",
			Side:          types.OrderSideBuy,
			Kind:          types.OrderKindMarket,
			Status:        types.OrderStatusOpen,
			Quantity:      tf.D("1"),
			ExecutedPrice: tf.P("1.25"),
			Margin:        tf.D("150"),
		})
	})
	require.NoError(t, err)

	assert.False(t, c.Check(ctx, tf.AccountID))
	assert.Equal(t, types.OrderStatusOpen, f.Order(t, "unpriced").Status)
}

func TestGroupCutoffLevelOverrides(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	g, err := f.Source.LoadGroup(context.Background(), tf.Group)
	require.NoError(t, err)
	g.CutoffLevel = tf.P("20")
	f.Source.PutGroup(g)
	f.Config.Invalidate(tf.Group)
	c := newController(f)
	o := f.Market(t, types.OrderSideBuy, "8")

	// margin level about 22%: below the default 50, above the group's 20
	f.Tick(tf.Symbol, "1.0900", "1.0902")
	assert.False(t, c.Check(context.Background(), tf.AccountID))
	assert.Equal(t, types.OrderStatusOpen, f.Order(t, o.ID).Status)
}
