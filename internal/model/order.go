package model

import (
	"time"

	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID                 string             `json:"id"`
	AccountID          string             `json:"account_id"`
	AccountClass       types.AccountClass `json:"account_class"`
	Symbol             string             `json:"symbol"`
	Side               types.OrderSide    `json:"side"`
	Kind               types.OrderKind    `json:"kind"`
	Status             types.OrderStatus  `json:"status"`
	Quantity           decimal.Decimal    `json:"quantity"`
	RequestedPrice     *decimal.Decimal   `json:"requested_price,omitempty"`
	ExecutedPrice      *decimal.Decimal   `json:"executed_price,omitempty"`
	Margin             decimal.Decimal    `json:"margin"`
	ContractValue      decimal.Decimal    `json:"contract_value"`
	Commission         decimal.Decimal    `json:"commission"`
	StopLoss           *decimal.Decimal   `json:"stop_loss,omitempty"`
	TakeProfit         *decimal.Decimal   `json:"take_profit,omitempty"`
	ClosePrice         *decimal.Decimal   `json:"close_price,omitempty"`
	NetProfit          *decimal.Decimal   `json:"net_profit,omitempty"`
	Swap               decimal.Decimal    `json:"swap"`
	Message            string             `json:"message,omitempty"`
	CorrelationID      string             `json:"correlation_id,omitempty"`
	CancelID           string             `json:"cancel_id,omitempty"`
	CloseID            string             `json:"close_id,omitempty"`
	ModifyID           string             `json:"modify_id,omitempty"`
	StopLossID         string             `json:"stoploss_id,omitempty"`
	TakeProfitID       string             `json:"takeprofit_id,omitempty"`
	StopLossCancelID   string             `json:"stoploss_cancel_id,omitempty"`
	TakeProfitCancelID string             `json:"takeprofit_cancel_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// CorrelationIDs lists every bridge correlation id ever issued for the order.
func (o Order) CorrelationIDs() []string {
	all := []string{o.CorrelationID, o.CancelID, o.CloseID, o.ModifyID, o.StopLossID, o.TakeProfitID, o.StopLossCancelID, o.TakeProfitCancelID}
	out := make([]string, 0, len(all))
	for _, id := range all {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// EntryPrice is the executed price, falling back to the requested one.
func (o Order) EntryPrice() decimal.Decimal {
	if o.ExecutedPrice != nil {
		return *o.ExecutedPrice
	}
	if o.RequestedPrice != nil {
		return *o.RequestedPrice
	}
	return decimal.Zero
}

type OrderAction struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"order_id"`
	AccountID     string            `json:"account_id"`
	Actor         types.Actor       `json:"actor"`
	Action        types.ActionTag   `json:"action"`
	FromStatus    types.OrderStatus `json:"from_status,omitempty"`
	ToStatus      types.OrderStatus `json:"to_status"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
