package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, account_id, account_class, symbol, side, kind, status, quantity, requested_price, executed_price,
	margin, contract_value, commission, stop_loss, take_profit, close_price, net_profit, swap, message,
	correlation_id, cancel_id, close_id, modify_id, stoploss_id, takeprofit_id, stoploss_cancel_id, takeprofit_cancel_id,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (model.Order, error) {
	var o model.Order
	var class, side, kind, status string
	err := row.Scan(&o.ID, &o.AccountID, &class, &o.Symbol, &side, &kind, &status, &o.Quantity, &o.RequestedPrice, &o.ExecutedPrice,
		&o.Margin, &o.ContractValue, &o.Commission, &o.StopLoss, &o.TakeProfit, &o.ClosePrice, &o.NetProfit, &o.Swap, &o.Message,
		&o.CorrelationID, &o.CancelID, &o.CloseID, &o.ModifyID, &o.StopLossID, &o.TakeProfitID, &o.StopLossCancelID, &o.TakeProfitCancelID,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.AccountClass = types.AccountClass(class)
	o.Side = types.OrderSide(side)
	o.Kind = types.OrderKind(kind)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanAccount(row scanner) (model.Account, error) {
	var a model.Account
	var class, status string
	err := row.Scan(&a.ID, &class, &a.Group, &a.Leverage, &a.Currency, &a.WalletBalance, &a.MarginInUse, &status, &a.UpdatedAt)
	a.Class = types.AccountClass(class)
	a.Status = types.AccountStatus(status)
	return a, err
}

const accountColumns = "id, class, group_name, leverage, currency, wallet_balance, margin_in_use, status, updated_at"

type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return err
}

func (s *PG) WithAccountLock(ctx context.Context, accountID string, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	a, err := scanAccount(tx.QueryRow(ctx, "select "+accountColumns+" from accounts where id = $1 for update", accountID))
	if err != nil {
		return notFound(err, "account", accountID)
	}
	if err := fn(&pgTx{tx: tx, account: a}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PG) GetAccount(ctx context.Context, id string) (model.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, "select "+accountColumns+" from accounts where id = $1", id))
	return a, notFound(err, "account", id)
}

func (s *PG) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
	return o, notFound(err, "order", id)
}

func (s *PG) FindOrderByCorrelationID(ctx context.Context, cid string) (model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `select `+orderColumns+` from orders
		where $1 in (correlation_id, cancel_id, close_id, modify_id, stoploss_id, takeprofit_id, stoploss_cancel_id, takeprofit_cancel_id)
		limit 1`, cid))
	return o, notFound(err, "correlation id", cid)
}

func (s *PG) ListOrders(ctx context.Context, accountID string, statuses ...types.OrderStatus) ([]model.Order, error) {
	if len(statuses) == 0 {
		rows, err := s.pool.Query(ctx, "select "+orderColumns+" from orders where account_id = $1 order by created_at desc", accountID)
		if err != nil {
			return nil, err
		}
		return collectOrders(rows)
	}
	rows, err := s.pool.Query(ctx, "select "+orderColumns+" from orders where account_id = $1 and status = any($2) order by created_at desc", accountID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PG) ListOrdersBySymbol(ctx context.Context, symbol string, statuses ...types.OrderStatus) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, "select "+orderColumns+" from orders where symbol = $1 and status = any($2) order by created_at asc", symbol, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PG) ListOrdersByStatus(ctx context.Context, statuses ...types.OrderStatus) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, "select "+orderColumns+" from orders where status = any($1) order by account_id, created_at asc", statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PG) ListAccountsWithExposure(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "select distinct account_id from orders where status = $1", string(types.OrderStatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PG) ListTransactions(ctx context.Context, accountID string) ([]model.WalletTransaction, error) {
	rows, err := s.pool.Query(ctx, `select id, account_id, order_id, type, amount, symbol, quantity, prev_hash, hash, created_at
		from wallet_transactions where account_id = $1 order by seq asc`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WalletTransaction
	for rows.Next() {
		var t model.WalletTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.OrderID, &typ, &t.Amount, &t.Symbol, &t.Quantity, &t.PrevHash, &t.Hash, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = types.TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PG) ListActions(ctx context.Context, orderID string) ([]model.OrderAction, error) {
	rows, err := s.pool.Query(ctx, `select id, order_id, account_id, actor, action, from_status, to_status, correlation_id, note, created_at
		from order_actions where order_id = $1 order by seq asc`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OrderAction
	for rows.Next() {
		var a model.OrderAction
		var actor, action, from, to string
		if err := rows.Scan(&a.ID, &a.OrderID, &a.AccountID, &actor, &action, &from, &to, &a.CorrelationID, &a.Note, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Actor = types.Actor(actor)
		a.Action = types.ActionTag(action)
		a.FromStatus = types.OrderStatus(from)
		a.ToStatus = types.OrderStatus(to)
		out = append(out, a)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx      pgx.Tx
	account model.Account
}

func (t *pgTx) Account() model.Account {
	return t.account
}

func (t *pgTx) UpdateAccount(ctx context.Context, a model.Account) error {
	_, err := t.tx.Exec(ctx, "update accounts set wallet_balance = $1, margin_in_use = $2, updated_at = $3 where id = $4",
		a.WalletBalance, a.MarginInUse, time.Now().UTC(), t.account.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	t.account.WalletBalance = a.WalletBalance
	t.account.MarginInUse = a.MarginInUse
	return nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 and account_id = $2", id, t.account.ID))
	return o, notFound(err, "order", id)
}

func (t *pgTx) ListOrders(ctx context.Context, statuses ...types.OrderStatus) ([]model.Order, error) {
	rows, err := t.tx.Query(ctx, "select "+orderColumns+" from orders where account_id = $1 and status = any($2) order by created_at asc", t.account.ID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (t *pgTx) InsertOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, `insert into orders (`+orderColumns+`) values
		($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`,
		o.ID, o.AccountID, string(o.AccountClass), o.Symbol, string(o.Side), string(o.Kind), string(o.Status), o.Quantity, o.RequestedPrice, o.ExecutedPrice,
		o.Margin, o.ContractValue, o.Commission, o.StopLoss, o.TakeProfit, o.ClosePrice, o.NetProfit, o.Swap, o.Message,
		o.CorrelationID, o.CancelID, o.CloseID, o.ModifyID, o.StopLossID, o.TakeProfitID, o.StopLossCancelID, o.TakeProfitCancelID,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o model.Order, expect types.OrderStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx, `update orders set status = $1, quantity = $2, requested_price = $3, executed_price = $4, margin = $5,
		contract_value = $6, commission = $7, stop_loss = $8, take_profit = $9, close_price = $10, net_profit = $11, swap = $12,
		message = $13, correlation_id = $14, cancel_id = $15, close_id = $16, modify_id = $17, stoploss_id = $18, takeprofit_id = $19,
		stoploss_cancel_id = $20, takeprofit_cancel_id = $21, updated_at = $22
		where id = $23 and account_id = $24 and status = $25`,
		string(o.Status), o.Quantity, o.RequestedPrice, o.ExecutedPrice, o.Margin,
		o.ContractValue, o.Commission, o.StopLoss, o.TakeProfit, o.ClosePrice, o.NetProfit, o.Swap,
		o.Message, o.CorrelationID, o.CancelID, o.CloseID, o.ModifyID, o.StopLossID, o.TakeProfitID,
		o.StopLossCancelID, o.TakeProfitCancelID, o.UpdatedAt,
		o.ID, t.account.ID, string(expect))
	if err != nil {
		return false, fmt.Errorf("update order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) LastTransactionHash(ctx context.Context) (string, error) {
	var hash string
	err := t.tx.QueryRow(ctx, "select hash from wallet_transactions where account_id = $1 order by seq desc limit 1", t.account.ID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

func (t *pgTx) AppendTransaction(ctx context.Context, w model.WalletTransaction) error {
	_, err := t.tx.Exec(ctx, `insert into wallet_transactions (id, account_id, order_id, type, amount, symbol, quantity, prev_hash, hash, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		w.ID, w.AccountID, w.OrderID, string(w.Type), w.Amount, w.Symbol, w.Quantity, w.PrevHash, w.Hash, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (t *pgTx) AppendAction(ctx context.Context, a model.OrderAction) error {
	_, err := t.tx.Exec(ctx, `insert into order_actions (id, order_id, account_id, actor, action, from_status, to_status, correlation_id, note, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.OrderID, a.AccountID, string(a.Actor), string(a.Action), string(a.FromStatus), string(a.ToStatus), a.CorrelationID, a.Note, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order action: %w", err)
	}
	return nil
}
