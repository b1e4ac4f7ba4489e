// Package ledger writes the wallet transactions that realize a closed order
// and checks that each account's chain is intact.
package ledger

import (
	"context"
	"encoding/hex"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

type Entry struct {
	Type   types.TransactionType
	Amount decimal.Decimal
}

// CloseEntries splits a close into gross P/L, commission and swap. The
// amounts always sum to profit - commission - swap.
func CloseEntries(profit, commission, swap decimal.Decimal) []Entry {
	out := []Entry{{Type: types.TransactionProfitLoss, Amount: profit}}
	if !commission.IsZero() {
		out = append(out, Entry{Type: types.TransactionCommission, Amount: commission.Neg()})
	}
	if !swap.IsZero() {
		out = append(out, Entry{Type: types.TransactionSwap, Amount: swap.Neg()})
	}
	return out
}

type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: time.Now}
}

// Append chains entries onto the account's transaction log inside tx.
func (s *Service) Append(ctx context.Context, tx store.Tx, o model.Order, entries []Entry) ([]model.WalletTransaction, error) {
	prev, err := tx.LastTransactionHash(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := make([]model.WalletTransaction, 0, len(entries))
	for _, e := range entries {
		t := model.WalletTransaction{
			ID:        uuid.NewString(),
			AccountID: o.AccountID,
			OrderID:   o.ID,
			Type:      e.Type,
			Amount:    e.Amount,
			Symbol:    o.Symbol,
			Quantity:  o.Quantity,
			PrevHash:  prev,
			CreatedAt: now,
		}
		t.Hash = computeHash(t)
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return nil, err
		}
		prev = t.Hash
		out = append(out, t)
	}
	return out, nil
}

func computeHash(t model.WalletTransaction) string {
	buf := t.ID + "|" + t.AccountID + "|" + t.OrderID + "|" + string(t.Type) + "|" + t.Amount.String() + "|" + t.Symbol + "|" + t.Quantity.String() + "|" + t.PrevHash
	sum := blake2b.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the chain and returns a consistency error at the first
// broken link.
func Verify(txs []model.WalletTransaction) error {
	prev := ""
	for i, t := range txs {
		if t.PrevHash != prev {
			return apperr.Consistency("transaction %d (%s) does not link to its predecessor", i, t.ID)
		}
		if computeHash(t) != t.Hash {
			return apperr.Consistency("transaction %d (%s) hash mismatch", i, t.ID)
		}
		prev = t.Hash
	}
	return nil
}

// SumByOrder totals the wallet effect recorded for each order.
func SumByOrder(txs []model.WalletTransaction) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, t := range txs {
		out[t.OrderID] = out[t.OrderID].Add(t.Amount)
	}
	return out
}
