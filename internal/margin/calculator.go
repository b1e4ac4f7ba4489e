// Package margin sizes the collateral an order consumes, nets hedged
// positions per instrument, and computes commissions and realized profit.
package margin

import (
	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

const (
	MoneyPlaces  int32 = 2
	RatePlaces   int32 = 8
	WalletPlaces int32 = 8
)

var hundred = decimal.NewFromInt(100)

// RateSource supplies raw quotes used for currency conversion.
type RateSource interface {
	Quote(symbol string) (model.PriceQuote, bool)
}

// Instrument is the merged view of group config and provider info that the
// calculator works from.
type Instrument struct {
	Symbol         string
	Class          types.InstrumentClass
	ContractSize   decimal.Decimal
	ProfitCurrency string
	MarginRate     decimal.Decimal
	Commission     model.CommissionSchedule
}

// Resolve prefers the provider contract size and falls back to the group's.
func Resolve(inst model.InstrumentConfig, ext model.ExternalInstrumentInfo) Instrument {
	cs := ext.ContractSize
	if !cs.IsPositive() {
		cs = inst.ContractSize
	}
	return Instrument{
		Symbol:         inst.Symbol,
		Class:          inst.Class,
		ContractSize:   cs,
		ProfitCurrency: ext.ProfitCurrency,
		MarginRate:     inst.MarginRate,
		Commission:     inst.Commission,
	}
}

type Calculator struct {
	currency string
	rates    RateSource
}

func NewCalculator(accountCurrency string, rates RateSource) *Calculator {
	return &Calculator{currency: accountCurrency, rates: rates}
}

func (c *Calculator) Currency() string {
	return c.currency
}

// For returns a calculator that converts into currency instead of the
// default. An empty currency keeps the default.
func (c *Calculator) For(currency string) *Calculator {
	if currency == "" || currency == c.currency {
		return c
	}
	return &Calculator{currency: currency, rates: c.rates}
}

// ToAccount converts an amount in ccy into the account currency using the
// {CCY}{ACC} bid (multiply) or the {ACC}{CCY} bid (divide).
func (c *Calculator) ToAccount(amount decimal.Decimal, ccy string) (decimal.Decimal, error) {
	if ccy == "" || ccy == c.currency || amount.IsZero() {
		return amount, nil
	}
	if q, ok := c.rates.Quote(ccy + c.currency); ok && q.Bid.IsPositive() {
		return amount.Mul(q.Bid), nil
	}
	if q, ok := c.rates.Quote(c.currency + ccy); ok && q.Bid.IsPositive() {
		return amount.Div(q.Bid), nil
	}
	return decimal.Zero, apperr.PricingUnavailable("no conversion rate %s->%s", ccy, c.currency)
}

// ReferencePrice is the price an order on side executes at.
func ReferencePrice(side types.OrderSide, q model.AdjustedQuote) decimal.Decimal {
	if side == types.OrderSideSell {
		return q.Sell
	}
	return q.Buy
}

// ExitPrice is the price an open position on side would close at.
func ExitPrice(side types.OrderSide, q model.AdjustedQuote) decimal.Decimal {
	if side == types.OrderSideSell {
		return q.Buy
	}
	return q.Sell
}

func ContractValue(qty decimal.Decimal, inst Instrument) decimal.Decimal {
	return qty.Mul(inst.ContractSize).Round(MoneyPlaces)
}

// OrderMargin = qty * contract_size * price / leverage, scaled by the group
// margin rate for margin-rate instruments, in the account currency.
func (c *Calculator) OrderMargin(qty, price decimal.Decimal, leverage int64, inst Instrument) (decimal.Decimal, error) {
	if leverage <= 0 {
		return decimal.Zero, apperr.Validation("invalid leverage %d", leverage)
	}
	if !price.IsPositive() {
		return decimal.Zero, apperr.PricingUnavailable("no reference price for %s", inst.Symbol)
	}
	raw := qty.Mul(inst.ContractSize).Mul(price)
	if inst.Class.UsesMarginRate() {
		raw = raw.Mul(inst.MarginRate)
	}
	raw = raw.Div(decimal.NewFromInt(leverage))
	converted, err := c.ToAccount(raw, inst.ProfitCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return converted.Round(MoneyPlaces), nil
}

// Commission for one leg of a trade, before charge-side filtering.
func Commission(sched model.CommissionSchedule, qty, price decimal.Decimal, inst Instrument) decimal.Decimal {
	switch sched.Mode {
	case types.CommissionPerLot:
		return qty.Mul(sched.Rate).Round(MoneyPlaces)
	case types.CommissionPercent:
		notional := qty.Mul(inst.ContractSize).Mul(price)
		return sched.Rate.Div(hundred).Mul(notional).Round(MoneyPlaces)
	}
	return decimal.Zero
}

func EntryCommission(qty, price decimal.Decimal, inst Instrument) decimal.Decimal {
	if !inst.Commission.Charge.OnEntry() {
		return decimal.Zero
	}
	return Commission(inst.Commission, qty, price, inst)
}

func ExitCommission(qty, price decimal.Decimal, inst Instrument) decimal.Decimal {
	if !inst.Commission.Charge.OnExit() {
		return decimal.Zero
	}
	return Commission(inst.Commission, qty, price, inst)
}

// Profit in the account currency for closing qty at exit.
func (c *Calculator) Profit(side types.OrderSide, entry, exit, qty decimal.Decimal, inst Instrument) (decimal.Decimal, error) {
	raw := exit.Sub(entry).Mul(qty).Mul(inst.ContractSize).Mul(decimal.NewFromInt(side.Sign()))
	return c.ToAccount(raw, inst.ProfitCurrency)
}
