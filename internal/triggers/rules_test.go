package triggers

import (
	"testing"

	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var eps = decimal.RequireFromString("0.00001")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pd(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestShouldTrigger(t *testing.T) {
	cases := []struct {
		name  string
		kind  types.OrderKind
		side  types.OrderSide
		price string
		buy   string
		want  bool
	}{
		{"buy limit at price", types.OrderKindLimit, types.OrderSideBuy, "1.0950", "1.0950", true},
		{"buy limit below", types.OrderKindLimit, types.OrderSideBuy, "1.0950", "1.0940", true},
		{"buy limit above", types.OrderKindLimit, types.OrderSideBuy, "1.0950", "1.0960", false},
		{"sell stop below", types.OrderKindStop, types.OrderSideSell, "1.0950", "1.0949", true},
		{"sell stop above", types.OrderKindStop, types.OrderSideSell, "1.0950", "1.0951", false},
		{"sell limit above", types.OrderKindLimit, types.OrderSideSell, "1.1050", "1.1051", true},
		{"sell limit below", types.OrderKindLimit, types.OrderSideSell, "1.1050", "1.1049", false},
		{"buy stop above", types.OrderKindStop, types.OrderSideBuy, "1.1050", "1.1050", true},
		{"buy stop below", types.OrderKindStop, types.OrderSideBuy, "1.1050", "1.1000", false},
		{"within epsilon", types.OrderKindLimit, types.OrderSideBuy, "1.0950", "1.095005", true},
		{"market never", types.OrderKindMarket, types.OrderSideBuy, "1.0950", "1.0900", false},
		{"no price", types.OrderKindLimit, types.OrderSideBuy, "1.0950", "0", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldTrigger(tc.kind, tc.side, d(tc.price), d(tc.buy), eps))
		})
	}
}

func TestShouldClose(t *testing.T) {
	quote := func(buy, sell string) model.AdjustedQuote { return model.AdjustedQuote{Buy: d(buy), Sell: d(sell)} }
	buy := model.Order{Side: types.OrderSideBuy, Status: types.OrderStatusOpen, StopLoss: pd("1.0900"), TakeProfit: pd("1.1050")}
	sell := model.Order{Side: types.OrderSideSell, Status: types.OrderStatusOpen, StopLoss: pd("1.1100"), TakeProfit: pd("1.0950")}

	cases := []struct {
		name string
		o    model.Order
		q    model.AdjustedQuote
		tag  types.ActionTag
		hit  bool
	}{
		{"buy take profit exact", buy, quote("1.1052", "1.1050"), types.ActionTakeProfit, true},
		{"buy stop loss", buy, quote("1.0901", "1.0899"), types.ActionStopLoss, true},
		{"buy inside", buy, quote("1.1002", "1.1000"), "", false},
		{"buy watches sell side", buy, quote("1.1060", "1.1040"), "", false},
		{"sell stop loss", sell, quote("1.1100", "1.1098"), types.ActionStopLoss, true},
		{"sell take profit", sell, quote("1.0949", "1.0947"), types.ActionTakeProfit, true},
		{"sell inside", sell, quote("1.1000", "1.0998"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tag, hit := ShouldClose(tc.o, tc.q, eps)
			assert.Equal(t, tc.hit, hit)
			assert.Equal(t, tc.tag, tag)
		})
	}

	closed := buy
	closed.Status = types.OrderStatusClosed
	_, hit := ShouldClose(closed, quote("1.2", "1.2"), eps)
	assert.False(t, hit)
}
