package store

import (
	"context"
	"sort"
	"sync"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"
)

// Memory is a process-local Store. Writes inside WithAccountLock are staged
// and applied only when the callback succeeds.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	orders   map[string]model.Order
	txs      map[string][]model.WalletTransaction
	actions  map[string][]model.OrderAction
	locksMu  sync.Mutex
	locks    map[string]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		accounts: map[string]model.Account{},
		orders:   map[string]model.Order{},
		txs:      map[string][]model.WalletTransaction{},
		actions:  map[string][]model.OrderAction{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (m *Memory) PutAccount(a model.Account) {
	m.mu.Lock()
	m.accounts[a.ID] = a
	m.mu.Unlock()
}

func (m *Memory) accountLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Memory) WithAccountLock(ctx context.Context, accountID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := m.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	m.mu.RLock()
	a, ok := m.accounts[accountID]
	m.mu.RUnlock()
	if !ok {
		return apperr.NotFound("account %s not found", accountID)
	}
	tx := &memTx{m: m, account: a, orders: map[string]model.Order{}}
	if err := fn(tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.accountDirty {
		m.accounts[accountID] = tx.account
	}
	for id, o := range tx.orders {
		m.orders[id] = o
	}
	m.txs[accountID] = append(m.txs[accountID], tx.txs...)
	for _, act := range tx.actions {
		m.actions[act.OrderID] = append(m.actions[act.OrderID], act)
	}
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return a, apperr.NotFound("account %s not found", id)
	}
	return a, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return o, apperr.NotFound("order %s not found", id)
	}
	return o, nil
}

func (m *Memory) FindOrderByCorrelationID(ctx context.Context, cid string) (model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cid != "" {
		for _, o := range m.orders {
			for _, id := range o.CorrelationIDs() {
				if id == cid {
					return o, nil
				}
			}
		}
	}
	return model.Order{}, apperr.NotFound("correlation id %s not found", cid)
}

func (m *Memory) filter(keep func(model.Order) bool) []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) ListOrders(ctx context.Context, accountID string, statuses ...types.OrderStatus) ([]model.Order, error) {
	return m.filter(func(o model.Order) bool {
		return o.AccountID == accountID && hasStatus(o.Status, statuses)
	}), nil
}

func (m *Memory) ListOrdersBySymbol(ctx context.Context, symbol string, statuses ...types.OrderStatus) ([]model.Order, error) {
	return m.filter(func(o model.Order) bool {
		return o.Symbol == symbol && hasStatus(o.Status, statuses)
	}), nil
}

func (m *Memory) ListOrdersByStatus(ctx context.Context, statuses ...types.OrderStatus) ([]model.Order, error) {
	return m.filter(func(o model.Order) bool {
		return hasStatus(o.Status, statuses)
	}), nil
}

func (m *Memory) ListAccountsWithExposure(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, o := range m.filter(func(o model.Order) bool { return o.Status == types.OrderStatusOpen }) {
		seen[o.AccountID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ListTransactions(ctx context.Context, accountID string) ([]model.WalletTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.WalletTransaction(nil), m.txs[accountID]...), nil
}

func (m *Memory) ListActions(ctx context.Context, orderID string) ([]model.OrderAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.OrderAction(nil), m.actions[orderID]...), nil
}

type memTx struct {
	m            *Memory
	account      model.Account
	accountDirty bool
	orders       map[string]model.Order
	txs          []model.WalletTransaction
	actions      []model.OrderAction
}

func (t *memTx) Account() model.Account {
	return t.account
}

func (t *memTx) UpdateAccount(ctx context.Context, a model.Account) error {
	t.account.WalletBalance = a.WalletBalance
	t.account.MarginInUse = a.MarginInUse
	t.account.UpdatedAt = a.UpdatedAt
	t.accountDirty = true
	return nil
}

func (t *memTx) lookup(id string) (model.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o, true
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	o, ok := t.m.orders[id]
	return o, ok
}

func (t *memTx) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, ok := t.lookup(id)
	if !ok || o.AccountID != t.account.ID {
		return model.Order{}, apperr.NotFound("order %s not found", id)
	}
	return o, nil
}

func (t *memTx) ListOrders(ctx context.Context, statuses ...types.OrderStatus) ([]model.Order, error) {
	committed := t.m.filter(func(o model.Order) bool { return o.AccountID == t.account.ID })
	merged := map[string]model.Order{}
	for _, o := range committed {
		merged[o.ID] = o
	}
	for id, o := range t.orders {
		merged[id] = o
	}
	var out []model.Order
	for _, o := range merged {
		if hasStatus(o.Status, statuses) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o model.Order) error {
	if _, exists := t.lookup(o.ID); exists {
		return apperr.Consistency("order %s already exists", o.ID)
	}
	t.orders[o.ID] = o
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o model.Order, expect types.OrderStatus) (bool, error) {
	cur, ok := t.lookup(o.ID)
	if !ok || cur.AccountID != t.account.ID || cur.Status != expect {
		return false, nil
	}
	t.orders[o.ID] = o
	return true, nil
}

func (t *memTx) LastTransactionHash(ctx context.Context) (string, error) {
	if n := len(t.txs); n > 0 {
		return t.txs[n-1].Hash, nil
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	committed := t.m.txs[t.account.ID]
	if n := len(committed); n > 0 {
		return committed[n-1].Hash, nil
	}
	return "", nil
}

func (t *memTx) AppendTransaction(ctx context.Context, w model.WalletTransaction) error {
	t.txs = append(t.txs, w)
	return nil
}

func (t *memTx) AppendAction(ctx context.Context, a model.OrderAction) error {
	t.actions = append(t.actions, a)
	return nil
}
