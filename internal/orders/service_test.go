package orders_test

import (
	"context"
	"testing"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/ledger"
	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/orders"
	"lv-tradecore/internal/store"
	tf "lv-tradecore/internal/testfixture"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addSwap(t *testing.T, f *tf.Fixture, orderID, amount string) {
	t.Helper()
	ctx := context.Background()
	err := f.Store.WithAccountLock(ctx, tf.AccountID, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		o.Swap = o.Swap.Add(tf.D(amount))
		_, err = tx.UpdateOrder(ctx, o, types.OrderStatusOpen)
		return err
	})
	require.NoError(t, err)
}

func TestMarketBuyReservesMargin(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)

	o := f.Market(t, types.OrderSideBuy, "1")

	assert.Equal(t, types.OrderStatusOpen, o.Status)
	assert.Equal(t, "1.1", o.ExecutedPrice.String())
	assert.Equal(t, "1100", o.Margin.String())
	assert.Equal(t, "100000", o.ContractValue.String())
	assert.Equal(t, "3.5", o.Commission.String())
	assert.Equal(t, "1100", f.Account(t, tf.AccountID).MarginInUse.String())
}

func TestOpposingOrderAddsNoMargin(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	f.Market(t, types.OrderSideBuy, "1")

	sell := f.Market(t, types.OrderSideSell, "1")

	assert.Equal(t, types.OrderStatusOpen, sell.Status)
	assert.Equal(t, "1099.8", sell.Margin.String())
	assert.Equal(t, "1100", f.Account(t, tf.AccountID).MarginInUse.String())
}

func TestHedgedMarginMatchesFormula(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	f.Market(t, types.OrderSideBuy, "2")
	f.Tick(tf.Symbol, "1.1198", "1.1200")
	f.Market(t, types.OrderSideSell, "0.5")
	f.Market(t, types.OrderSideBuy, "0.5")

	open, err := f.Orders.ListActive(context.Background(), tf.AccountID)
	require.NoError(t, err)
	want := margin.AccountMargin(open)
	// per lot max(1100, 1119.8, 1120) over net qty max(2.5, 0.5)
	assert.Equal(t, "2800", want.String())
	assert.True(t, want.Equal(f.Account(t, tf.AccountID).MarginInUse))
}

func TestMarketOrderRejectedWithoutFreeMargin(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)

	_, err := f.Orders.Place(context.Background(), orders.PlaceRequest{
		AccountID: tf.AccountID,
		Symbol:    tf.Symbol,
		Side:      types.OrderSideBuy,
		Kind:      types.OrderKindMarket,
		Quantity:  tf.D("10"),
	})

	require.ErrorIs(t, err, apperr.ErrInsufficientMargin)
	active, err := f.Orders.ListActive(context.Background(), tf.AccountID)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.True(t, f.Account(t, tf.AccountID).MarginInUse.IsZero())
}

func TestEmptyWalletRejected(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	acc := f.Account(t, tf.AccountID)
	acc.WalletBalance = decimal.Zero
	f.Store.PutAccount(acc)

	_, err := f.Orders.Place(context.Background(), orders.PlaceRequest{
		AccountID: tf.AccountID,
		Symbol:    tf.Symbol,
		Side:      types.OrderSideBuy,
		Kind:      types.OrderKindMarket,
		Quantity:  tf.D("0.01"),
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
}

func TestLotBoundaries(t *testing.T) {
	cases := []struct {
		qty string
		ok  bool
	}{
		{"0.01", true},
		{"0.009", false},
		{"100", true},
		{"100.01", false},
	}
	for _, tc := range cases {
		t.Run(tc.qty, func(t *testing.T) {
			f := tf.New(t, types.RoutingLocal)
			_, err := f.Orders.Place(context.Background(), orders.PlaceRequest{
				AccountID: tf.AccountID,
				Symbol:    tf.Symbol,
				Side:      types.OrderSideBuy,
				Kind:      types.OrderKindLimit,
				Quantity:  tf.D(tc.qty),
				Price:     tf.P("1.0950"),
			})
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestPlaceValidation(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	base := orders.PlaceRequest{AccountID: tf.AccountID, Symbol: tf.Symbol, Side: types.OrderSideBuy, Kind: types.OrderKindMarket, Quantity: tf.D("1")}

	noPrice := base
	noPrice.Kind = types.OrderKindLimit
	_, err := f.Orders.Place(ctx, noPrice)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	badSide := base
	badSide.Side = "HOLD"
	_, err = f.Orders.Place(ctx, badSide)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	badSL := base
	badSL.StopLoss = tf.P("1.2000")
	_, err = f.Orders.Place(ctx, badSL)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	unknown := base
	unknown.Symbol = "XAUUSD"
	_, err = f.Orders.Place(ctx, unknown)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPendingTriggersAtExactPrice(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	p := f.Pending(t, types.OrderSideBuy, types.OrderKindLimit, "1", "1.0950")
	require.Equal(t, types.OrderStatusPending, p.Status)
	assert.True(t, f.Account(t, tf.AccountID).MarginInUse.IsZero())

	f.Tick(tf.Symbol, "1.0948", "1.0950")
	o, fired, err := f.Orders.TriggerPending(ctx, tf.AccountID, p.ID)
	require.NoError(t, err)
	require.True(t, fired)
	assert.Equal(t, types.OrderStatusOpen, o.Status)
	assert.Equal(t, "1.095", o.ExecutedPrice.String())
	assert.Equal(t, "1095", f.Account(t, tf.AccountID).MarginInUse.String())

	// A second evaluation of the same order is a no-op.
	_, fired, err = f.Orders.TriggerPending(ctx, tf.AccountID, p.ID)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, "1095", f.Account(t, tf.AccountID).MarginInUse.String())
}

func TestPendingCancelledWhenMarginShort(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	p := f.Pending(t, types.OrderSideBuy, types.OrderKindLimit, "10", "1.0950")

	f.Tick(tf.Symbol, "1.0948", "1.0950")
	o, fired, err := f.Orders.TriggerPending(context.Background(), tf.AccountID, p.ID)

	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, types.OrderStatusCancelled, o.Status)
	assert.Equal(t, orders.InsufficientFreeMargin, o.Message)
	assert.True(t, f.Account(t, tf.AccountID).MarginInUse.IsZero())
}

func TestCloseConservesWallet(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	o := f.Market(t, types.OrderSideBuy, "1")

	f.Tick(tf.Symbol, "1.1050", "1.1052")
	closed, err := f.Orders.CloseAt(ctx, tf.AccountID, o.ID, types.ActionTakeProfit)
	require.NoError(t, err)

	assert.Equal(t, types.OrderStatusClosed, closed.Status)
	assert.Equal(t, "1.105", closed.ClosePrice.String())
	assert.Equal(t, "493", closed.NetProfit.String())
	assert.Equal(t, "7", closed.Commission.String())

	acc := f.Account(t, tf.AccountID)
	assert.Equal(t, "10493", acc.WalletBalance.String())
	assert.True(t, acc.MarginInUse.IsZero())

	txs, err := f.Store.ListTransactions(ctx, tf.AccountID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.NoError(t, ledger.Verify(txs))
	sum := ledger.SumByOrder(txs)[o.ID]
	assert.True(t, sum.Equal(acc.WalletBalance.Sub(tf.D("10000"))))
}

func TestCloseDebitsAccruedSwap(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	o := f.Market(t, types.OrderSideBuy, "1")
	addSwap(t, f, o.ID, "2.5")

	closed, err := f.Orders.Close(ctx, orders.OrderRef{AccountID: tf.AccountID, OrderID: o.ID})
	require.NoError(t, err)

	// exit 1.0998: (1.0998 - 1.1000) * 100000 = -20, commission 7
	assert.Equal(t, "-27", closed.NetProfit.String())
	acc := f.Account(t, tf.AccountID)
	assert.Equal(t, "9970.5", acc.WalletBalance.String())
	txs, err := f.Store.ListTransactions(ctx, tf.AccountID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.Equal(t, "-29.5", ledger.SumByOrder(txs)[o.ID].String())
}

func TestOperationsRejectIllegalState(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	o := f.Market(t, types.OrderSideBuy, "1")
	ref := orders.OrderRef{AccountID: tf.AccountID, OrderID: o.ID}

	_, err := f.Orders.CancelPending(ctx, ref)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.Orders.ModifyPending(ctx, orders.ModifyRequest{AccountID: tf.AccountID, OrderID: o.ID, Price: tf.P("1.09")})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.Orders.Close(ctx, ref)
	require.NoError(t, err)
	_, err = f.Orders.Close(ctx, ref)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.Orders.AddStopLoss(ctx, orders.LevelRequest{AccountID: tf.AccountID, OrderID: o.ID, Price: tf.D("1.05")})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestOrderOfAnotherAccountIsHidden(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	o := f.Market(t, types.OrderSideBuy, "1")

	_, err := f.Orders.Get(context.Background(), "someone-else", o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestModifyAndCancelPending(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	p := f.Pending(t, types.OrderSideSell, types.OrderKindLimit, "1", "1.1100")

	m, err := f.Orders.ModifyPending(ctx, orders.ModifyRequest{AccountID: tf.AccountID, OrderID: p.ID, Price: tf.P("1.1150"), Quantity: tf.P("2")})
	require.NoError(t, err)
	assert.Equal(t, "1.115", m.RequestedPrice.String())
	assert.Equal(t, "2", m.Quantity.String())

	c, err := f.Orders.CancelPending(ctx, orders.OrderRef{AccountID: tf.AccountID, OrderID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, c.Status)

	history, err := f.Orders.History(ctx, tf.AccountID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	acts, err := f.Orders.Actions(ctx, tf.AccountID, p.ID)
	require.NoError(t, err)
	tags := make([]types.ActionTag, 0, len(acts))
	for _, a := range acts {
		tags = append(tags, a.Action)
	}
	assert.Equal(t, []types.ActionTag{types.ActionPlace, types.ActionModify, types.ActionCancel}, tags)
}

func TestStopLossAndTakeProfitLevels(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	ctx := context.Background()
	o := f.Market(t, types.OrderSideBuy, "1")

	_, err := f.Orders.AddStopLoss(ctx, orders.LevelRequest{AccountID: tf.AccountID, OrderID: o.ID, Price: tf.D("1.1010")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := f.Orders.AddStopLoss(ctx, orders.LevelRequest{AccountID: tf.AccountID, OrderID: o.ID, Price: tf.D("1.0900")})
	require.NoError(t, err)
	assert.Equal(t, "1.09", got.StopLoss.String())

	got, err = f.Orders.AddTakeProfit(ctx, orders.LevelRequest{AccountID: tf.AccountID, OrderID: o.ID, Price: tf.D("1.1100")})
	require.NoError(t, err)
	assert.Equal(t, "1.11", got.TakeProfit.String())

	got, err = f.Orders.CancelStopLoss(ctx, orders.OrderRef{AccountID: tf.AccountID, OrderID: o.ID})
	require.NoError(t, err)
	assert.Nil(t, got.StopLoss)

	_, err = f.Orders.CancelStopLoss(ctx, orders.OrderRef{AccountID: tf.AccountID, OrderID: o.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStoredFieldsRecompute(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	o := f.Market(t, types.OrderSideSell, "0.37")

	inst := margin.Resolve(tf.EURUSD(), model.ExternalInstrumentInfo{ContractSize: tf.D("100000"), ProfitCurrency: "USD"})
	m, err := f.Calc.OrderMargin(o.Quantity, *o.ExecutedPrice, 100, inst)
	require.NoError(t, err)
	assert.True(t, m.Equal(o.Margin))
	assert.True(t, margin.ContractValue(o.Quantity, inst).Equal(o.ContractValue))
	assert.True(t, margin.EntryCommission(o.Quantity, *o.ExecutedPrice, inst).Equal(o.Commission))
}

func TestCloseRollsBackWhenMarginInUseWouldGoNegative(t *testing.T) {
	f := tf.New(t, types.RoutingLocal)
	o := f.Market(t, types.OrderSideBuy, "1")
	acc := f.Account(t, tf.AccountID)
	acc.MarginInUse = tf.D("500")
	f.Store.PutAccount(acc)

	_, err := f.Orders.Close(context.Background(), orders.OrderRef{AccountID: tf.AccountID, OrderID: o.ID, Actor: types.ActorUser})

	assert.ErrorIs(t, err, apperr.ErrConsistency)
	assert.Equal(t, types.OrderStatusOpen, f.Order(t, o.ID).Status)
	after := f.Account(t, tf.AccountID)
	assert.Equal(t, "10000", after.WalletBalance.String())
	assert.Equal(t, "500", after.MarginInUse.String())
	txs, err := f.Store.ListTransactions(context.Background(), tf.AccountID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
