// Package triggers activates pending orders and executes stop-loss and
// take-profit levels as debounced price updates arrive.
package triggers

import (
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

// ShouldTrigger reports whether a pending order at price fires against the
// adjusted buy price. Buy limits and sell stops fire at or below the order
// price, sell limits and buy stops at or above it.
func ShouldTrigger(kind types.OrderKind, side types.OrderSide, price, buy, eps decimal.Decimal) bool {
	if !kind.Pending() || !price.IsPositive() || !buy.IsPositive() {
		return false
	}
	if buy.Sub(price).Abs().LessThan(eps) {
		return true
	}
	below := (kind == types.OrderKindLimit && side == types.OrderSideBuy) ||
		(kind == types.OrderKindStop && side == types.OrderSideSell)
	if below {
		return buy.LessThanOrEqual(price)
	}
	return buy.GreaterThanOrEqual(price)
}

// ShouldClose checks an OPEN order's stop-loss and take-profit against the
// adjusted quote and returns the action tag of the level that was hit.
// Buys are watched on the sell price and sells on the buy price.
func ShouldClose(o model.Order, q model.AdjustedQuote, eps decimal.Decimal) (types.ActionTag, bool) {
	if o.Status != types.OrderStatusOpen {
		return "", false
	}
	var px decimal.Decimal
	if o.Side == types.OrderSideBuy {
		px = q.Sell
	} else {
		px = q.Buy
	}
	if !px.IsPositive() {
		return "", false
	}
	near := func(level decimal.Decimal) bool { return px.Sub(level).Abs().LessThan(eps) }

	if sl := o.StopLoss; sl != nil {
		hit := near(*sl)
		if o.Side == types.OrderSideBuy {
			hit = hit || px.LessThanOrEqual(*sl)
		} else {
			hit = hit || px.GreaterThanOrEqual(*sl)
		}
		if hit {
			return types.ActionStopLoss, true
		}
	}
	if tp := o.TakeProfit; tp != nil {
		hit := near(*tp)
		if o.Side == types.OrderSideBuy {
			hit = hit || px.GreaterThanOrEqual(*tp)
		} else {
			hit = hit || px.LessThanOrEqual(*tp)
		}
		if hit {
			return types.ActionTakeProfit, true
		}
	}
	return "", false
}
