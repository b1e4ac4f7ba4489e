package model

import (
	"time"

	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Group struct {
	Name            string                      `json:"name"`
	Routing         types.RoutingMode           `json:"routing"`
	MarginCallLevel *decimal.Decimal            `json:"margin_call_level,omitempty"`
	CutoffLevel     *decimal.Decimal            `json:"cutoff_level,omitempty"`
	Instruments     map[string]InstrumentConfig `json:"instruments"`
}

type CommissionSchedule struct {
	Mode   types.CommissionMode   `json:"mode"`
	Charge types.CommissionCharge `json:"charge"`
	Rate   decimal.Decimal        `json:"rate"`
}

type InstrumentConfig struct {
	Symbol       string                `json:"symbol"`
	Class        types.InstrumentClass `json:"class"`
	ContractSize decimal.Decimal       `json:"contract_size"`
	Spread       decimal.Decimal       `json:"spread"`
	SpreadUnit   decimal.Decimal       `json:"spread_unit"`
	MarginRate   decimal.Decimal       `json:"margin_rate"`
	Commission   CommissionSchedule    `json:"commission"`
	MinLot       decimal.Decimal       `json:"min_lot"`
	MaxLot       decimal.Decimal       `json:"max_lot"`
	SwapBuy      decimal.Decimal       `json:"swap_buy"`
	SwapSell     decimal.Decimal       `json:"swap_sell"`
}

// ExternalInstrumentInfo describes what the provider says about a symbol.
type ExternalInstrumentInfo struct {
	Symbol         string          `json:"symbol"`
	ContractSize   decimal.Decimal `json:"contract_size"`
	ProfitCurrency string          `json:"profit_currency"`
	Digits         int32           `json:"digits"`
}

type PriceQuote struct {
	Symbol     string          `json:"symbol"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	ReceivedAt time.Time       `json:"received_at"`
}

// AdjustedQuote is a quote after the group spread has been applied.
// Buy is the price a buyer pays, Sell is what a seller receives.
type AdjustedQuote struct {
	Symbol string          `json:"symbol"`
	Group  string          `json:"group"`
	Buy    decimal.Decimal `json:"buy"`
	Sell   decimal.Decimal `json:"sell"`
}
