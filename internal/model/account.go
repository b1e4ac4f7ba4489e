package model

import (
	"time"

	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID            string              `json:"id"`
	Class         types.AccountClass  `json:"class"`
	Group         string              `json:"group"`
	Leverage      int64               `json:"leverage"`
	Currency      string              `json:"currency"`
	WalletBalance decimal.Decimal     `json:"wallet_balance"`
	MarginInUse   decimal.Decimal     `json:"margin_in_use"`
	Status        types.AccountStatus `json:"status"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type WalletTransaction struct {
	ID        string                `json:"id"`
	AccountID string                `json:"account_id"`
	OrderID   string                `json:"order_id"`
	Type      types.TransactionType `json:"type"`
	Amount    decimal.Decimal       `json:"amount"`
	Symbol    string                `json:"symbol"`
	Quantity  decimal.Decimal       `json:"quantity"`
	PrevHash  string                `json:"prev_hash,omitempty"`
	Hash      string                `json:"hash"`
	CreatedAt time.Time             `json:"created_at"`
}
