package orders

import (
	"strings"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

func validatePlace(req PlaceRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return apperr.Validation("symbol is required")
	}
	if !req.Side.Valid() {
		return apperr.Validation("invalid side %q", req.Side)
	}
	if !req.Kind.Valid() {
		return apperr.Validation("invalid order kind %q", req.Kind)
	}
	if !req.Quantity.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}
	if req.Kind.Pending() {
		if req.Price == nil || !req.Price.IsPositive() {
			return apperr.Validation("%s orders need a positive price", req.Kind)
		}
	} else if req.Price != nil {
		return apperr.Validation("market orders must not carry a price")
	}
	if req.StopLoss != nil && !req.StopLoss.IsPositive() {
		return apperr.Validation("stop loss must be positive")
	}
	if req.TakeProfit != nil && !req.TakeProfit.IsPositive() {
		return apperr.Validation("take profit must be positive")
	}
	return nil
}

// validateLot checks min_lot <= qty <= max_lot. A zero bound is unset.
func validateLot(qty decimal.Decimal, inst model.InstrumentConfig) error {
	if !qty.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}
	if inst.MinLot.IsPositive() && qty.LessThan(inst.MinLot) {
		return apperr.Validation("quantity %s below min lot %s", qty, inst.MinLot)
	}
	if inst.MaxLot.IsPositive() && qty.GreaterThan(inst.MaxLot) {
		return apperr.Validation("quantity %s above max lot %s", qty, inst.MaxLot)
	}
	return nil
}

// validateLevels: buys need SL < price < TP, sells need TP < price < SL.
func validateLevels(side types.OrderSide, price decimal.Decimal, sl, tp *decimal.Decimal) error {
	if sl != nil {
		if !sl.IsPositive() {
			return apperr.Validation("stop loss must be positive")
		}
		if side == types.OrderSideBuy && !sl.LessThan(price) {
			return apperr.Validation("stop loss %s must be below %s for a buy", sl, price)
		}
		if side == types.OrderSideSell && !sl.GreaterThan(price) {
			return apperr.Validation("stop loss %s must be above %s for a sell", sl, price)
		}
	}
	if tp != nil {
		if !tp.IsPositive() {
			return apperr.Validation("take profit must be positive")
		}
		if side == types.OrderSideBuy && !tp.GreaterThan(price) {
			return apperr.Validation("take profit %s must be above %s for a buy", tp, price)
		}
		if side == types.OrderSideSell && !tp.LessThan(price) {
			return apperr.Validation("take profit %s must be below %s for a sell", tp, price)
		}
	}
	return nil
}
