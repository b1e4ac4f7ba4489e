package margin

import (
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

// Position is the part of an open order hedging cares about.
type Position struct {
	Side     types.OrderSide
	Quantity decimal.Decimal
	Margin   decimal.Decimal
}

func PositionOf(o model.Order) Position {
	return Position{Side: o.Side, Quantity: o.Quantity, Margin: o.Margin}
}

// InstrumentMargin nets buys against sells for one instrument:
// max(buyQty, sellQty) lots charged at the highest per-lot margin seen.
func InstrumentMargin(positions []Position) decimal.Decimal {
	buyQty := decimal.Zero
	sellQty := decimal.Zero
	perLot := decimal.Zero
	for _, p := range positions {
		if !p.Quantity.IsPositive() {
			continue
		}
		if p.Side == types.OrderSideSell {
			sellQty = sellQty.Add(p.Quantity)
		} else {
			buyQty = buyQty.Add(p.Quantity)
		}
		if lot := p.Margin.Div(p.Quantity).Round(RatePlaces); lot.GreaterThan(perLot) {
			perLot = lot
		}
	}
	net := decimal.Max(buyQty, sellQty)
	return perLot.Mul(net).Round(MoneyPlaces)
}

// AccountMargin sums InstrumentMargin across symbols.
func AccountMargin(open []model.Order) decimal.Decimal {
	bySymbol := map[string][]Position{}
	for _, o := range open {
		if o.Status != types.OrderStatusOpen {
			continue
		}
		bySymbol[o.Symbol] = append(bySymbol[o.Symbol], PositionOf(o))
	}
	total := decimal.Zero
	for _, ps := range bySymbol {
		total = total.Add(InstrumentMargin(ps))
	}
	return total
}

// Delta is the change in the instrument total when positions go from before
// to after.
func Delta(before, after []Position) decimal.Decimal {
	return InstrumentMargin(after).Sub(InstrumentMargin(before))
}

func Positions(orders []model.Order) []Position {
	out := make([]Position, 0, len(orders))
	for _, o := range orders {
		out = append(out, PositionOf(o))
	}
	return out
}
