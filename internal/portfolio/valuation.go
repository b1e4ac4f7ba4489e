// Package portfolio values accounts against live prices and keeps a short
// lived cache of the results for the risk loops and the websocket feed.
package portfolio

import (
	"context"
	"encoding/json"
	"time"

	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type ConfigSource interface {
	Instrument(ctx context.Context, group, symbol string) (model.InstrumentConfig, error)
	External(ctx context.Context, symbol string) (model.ExternalInstrumentInfo, error)
}

type PriceSource interface {
	Adjusted(symbol, group string, inst model.InstrumentConfig) (model.AdjustedQuote, error)
}

type PositionValue struct {
	OrderID    string           `json:"order_id"`
	Symbol     string           `json:"symbol"`
	Side       types.OrderSide  `json:"side"`
	Quantity   decimal.Decimal  `json:"quantity"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Current    *decimal.Decimal `json:"current_price,omitempty"`
	PnL        decimal.Decimal  `json:"pnl"`
	Commission decimal.Decimal  `json:"commission"`
	Priced     bool             `json:"priced"`
}

// Valuation keeps Equity, FreeMargin and MarginLevel at full precision so
// threshold checks are exact. They are rounded to 2 dp only when encoded.
type Valuation struct {
	AccountID   string          `json:"account_id"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"free_margin"`
	MarginLevel decimal.Decimal `json:"margin_level"`
	PnL         decimal.Decimal `json:"pnl"`
	Complete    bool            `json:"complete"`
	Positions   []PositionValue `json:"positions"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// Below reports 0 < margin level < threshold on a complete valuation.
// Incomplete valuations never qualify.
func (v Valuation) Below(threshold decimal.Decimal) bool {
	if !v.Complete || !v.MarginLevel.IsPositive() {
		return false
	}
	return v.MarginLevel.LessThan(threshold)
}

func (v Valuation) MarshalJSON() ([]byte, error) {
	type plain Valuation
	out := plain(v)
	out.Equity = v.Equity.Round(margin.MoneyPlaces)
	out.FreeMargin = v.FreeMargin.Round(margin.MoneyPlaces)
	out.MarginLevel = v.MarginLevel.Round(margin.MoneyPlaces)
	return json.Marshal(out)
}

// Pricer marks open positions to market.
type Pricer struct {
	config ConfigSource
	prices PriceSource
	calc   *margin.Calculator
	now    func() time.Time
}

func NewPricer(config ConfigSource, prices PriceSource, calc *margin.Calculator) *Pricer {
	return &Pricer{config: config, prices: prices, calc: calc, now: time.Now}
}

// ExitPrice is the live price o would close at for an account in group.
func (p *Pricer) ExitPrice(ctx context.Context, group string, o model.Order) (decimal.Decimal, margin.Instrument, error) {
	inst, err := p.config.Instrument(ctx, group, o.Symbol)
	if err != nil {
		return decimal.Zero, margin.Instrument{}, err
	}
	ext, err := p.config.External(ctx, o.Symbol)
	if err != nil {
		return decimal.Zero, margin.Instrument{}, err
	}
	q, err := p.prices.Adjusted(o.Symbol, group, inst)
	if err != nil {
		return decimal.Zero, margin.Instrument{}, err
	}
	return margin.ExitPrice(o.Side, q), margin.Resolve(inst, ext), nil
}

// PnL is the unrealized profit of o in the account's currency, with the exit
// price it was marked at.
func (p *Pricer) PnL(ctx context.Context, acc model.Account, o model.Order) (decimal.Decimal, decimal.Decimal, error) {
	exit, mi, err := p.ExitPrice(ctx, acc.Group, o)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	pnl, err := p.calc.For(acc.Currency).Profit(o.Side, o.EntryPrice(), exit, o.Quantity, mi)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return pnl, exit, nil
}

// Value computes equity = balance + sum(pnl - commission) over the priced
// open positions. A position that cannot be priced contributes nothing and
// marks the result incomplete, which reports the margin level as zero.
func (p *Pricer) Value(ctx context.Context, acc model.Account, open []model.Order) Valuation {
	v := Valuation{
		AccountID:  acc.ID,
		Balance:    acc.WalletBalance,
		Margin:     acc.MarginInUse,
		Complete:   true,
		ComputedAt: p.now(),
	}
	pnlSum := decimal.Zero
	commSum := decimal.Zero
	for _, o := range open {
		if o.Status != types.OrderStatusOpen {
			continue
		}
		pv := PositionValue{
			OrderID:    o.ID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Quantity:   o.Quantity,
			EntryPrice: o.EntryPrice(),
			Commission: o.Commission,
		}
		pnl, current, err := p.PnL(ctx, acc, o)
		if err != nil {
			v.Complete = false
		} else {
			commSum = commSum.Add(o.Commission)
			pv.Priced = true
			pv.PnL = pnl.Round(margin.MoneyPlaces)
			pv.Current = &current
			pnlSum = pnlSum.Add(pnl)
		}
		v.Positions = append(v.Positions, pv)
	}
	v.PnL = pnlSum.Round(margin.MoneyPlaces)
	v.Equity = acc.WalletBalance.Add(pnlSum).Sub(commSum)
	v.FreeMargin = v.Equity.Sub(acc.MarginInUse)
	v.MarginLevel = decimal.Zero
	if v.Complete && acc.MarginInUse.IsPositive() {
		v.MarginLevel = v.Equity.Mul(hundred).Div(acc.MarginInUse)
	}
	return v
}
