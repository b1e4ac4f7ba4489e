// Package store persists accounts, orders, wallet transactions and order
// history. Every mutation of an account or its orders happens inside
// WithAccountLock, which serializes writers per account.
package store

import (
	"context"

	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"
)

type Store interface {
	// WithAccountLock runs fn with the account row locked. fn's writes commit
	// together when it returns nil and are discarded otherwise.
	WithAccountLock(ctx context.Context, accountID string, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, id string) (model.Account, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	FindOrderByCorrelationID(ctx context.Context, correlationID string) (model.Order, error)
	ListOrders(ctx context.Context, accountID string, statuses ...types.OrderStatus) ([]model.Order, error)
	ListOrdersBySymbol(ctx context.Context, symbol string, statuses ...types.OrderStatus) ([]model.Order, error)
	ListOrdersByStatus(ctx context.Context, statuses ...types.OrderStatus) ([]model.Order, error)
	ListAccountsWithExposure(ctx context.Context) ([]string, error)
	ListTransactions(ctx context.Context, accountID string) ([]model.WalletTransaction, error)
	ListActions(ctx context.Context, orderID string) ([]model.OrderAction, error)
}

type Tx interface {
	Account() model.Account
	UpdateAccount(ctx context.Context, a model.Account) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, statuses ...types.OrderStatus) ([]model.Order, error)
	InsertOrder(ctx context.Context, o model.Order) error
	// UpdateOrder writes o only if the stored status is still expect.
	UpdateOrder(ctx context.Context, o model.Order, expect types.OrderStatus) (bool, error)
	LastTransactionHash(ctx context.Context) (string, error)
	AppendTransaction(ctx context.Context, t model.WalletTransaction) error
	AppendAction(ctx context.Context, a model.OrderAction) error
}

func statusStrings(statuses []types.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func hasStatus(s types.OrderStatus, statuses []types.OrderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
