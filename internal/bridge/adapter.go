// Package bridge forwards order intents for bridge-routed accounts to the
// external execution provider. Sends are one-way; outcomes come back later
// as Confirmations keyed by correlation id.
package bridge

import (
	"context"

	"github.com/shopspring/decimal"
)

type IntentType string

const (
	IntentPlace            IntentType = "place"
	IntentModify           IntentType = "modify"
	IntentCancel           IntentType = "cancel"
	IntentClose            IntentType = "close"
	IntentStopLossAdd      IntentType = "stoploss_add"
	IntentStopLossCancel   IntentType = "stoploss_cancel"
	IntentTakeProfitAdd    IntentType = "takeprofit_add"
	IntentTakeProfitCancel IntentType = "takeprofit_cancel"
)

type Intent struct {
	Type          IntentType       `json:"type"`
	CorrelationID string           `json:"correlation_id"`
	OrderID       string           `json:"order_id"`
	AccountID     string           `json:"account_id"`
	Group         string           `json:"group"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side,omitempty"`
	Kind          string           `json:"kind,omitempty"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// Confirmation statuses reported by the provider.
const (
	ConfirmOpen      = "OPEN"
	ConfirmPending   = "PENDING"
	ConfirmClosed    = "CLOSED"
	ConfirmCancelled = "CANCELLED"
	ConfirmRejected  = "REJECTED"
	ConfirmAccepted  = "ACCEPTED"
)

type Confirmation struct {
	CorrelationID string           `json:"correlation_id" validate:"required"`
	Status        string           `json:"status" validate:"required,oneof=OPEN PENDING CLOSED CANCELLED REJECTED ACCEPTED"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Message       string           `json:"message,omitempty"`
}

type Adapter interface {
	Send(ctx context.Context, intent Intent) error
}
