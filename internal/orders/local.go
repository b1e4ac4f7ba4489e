package orders

import (
	"context"
	"errors"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/ledger"
	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type localRoute struct {
	s *Service
}

func (r localRoute) place(ctx context.Context, ac accountContext, o model.Order, actor types.Actor) (model.Order, error) {
	s := r.s
	err := s.store.WithAccountLock(ctx, o.AccountID, func(tx store.Tx) error {
		if !tx.Account().WalletBalance.IsPositive() {
			return apperr.InsufficientFunds("account %s has no funds", o.AccountID)
		}
		if o.Kind.Pending() {
			o.Status = types.OrderStatusPending
		} else {
			opened, err := s.openLocked(ctx, tx, o, nil, true)
			if err != nil {
				return err
			}
			o = opened
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.AppendAction(ctx, s.action(o, "", types.ActionPlace, actor, "", ""))
	})
	if err != nil {
		return model.Order{}, wrapf(err, "place %s %s", o.Side, o.Symbol)
	}
	s.changed(ctx, o, types.ActionPlace)
	return o, nil
}

func (r localRoute) modify(ctx context.Context, ac accountContext, o model.Order, req ModifyRequest) (model.Order, error) {
	s := r.s
	var out model.Order
	err := s.store.WithAccountLock(ctx, o.AccountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if req.Price != nil {
			cur.RequestedPrice = req.Price
		}
		if req.Quantity != nil {
			cur.Quantity = *req.Quantity
		}
		cur.UpdatedAt = s.now().UTC()
		ok, err := tx.UpdateOrder(ctx, cur, types.OrderStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(cur, types.OrderStatusPending)
		}
		out = cur
		return tx.AppendAction(ctx, s.action(cur, types.OrderStatusPending, types.ActionModify, actorOr(req.Actor, types.ActorUser), "", ""))
	})
	if err != nil {
		return model.Order{}, err
	}
	s.changed(ctx, out, types.ActionModify)
	return out, nil
}

func (r localRoute) cancel(ctx context.Context, ac accountContext, o model.Order, actor types.Actor) (model.Order, error) {
	return r.s.cancelPendingLocal(ctx, o, actor, types.ActionCancel, "")
}

func (s *Service) cancelPendingLocal(ctx context.Context, o model.Order, actor types.Actor, tag types.ActionTag, reason string) (model.Order, error) {
	var out model.Order
	err := s.store.WithAccountLock(ctx, o.AccountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		cur.Status = types.OrderStatusCancelled
		cur.Message = reason
		cur.UpdatedAt = s.now().UTC()
		ok, err := tx.UpdateOrder(ctx, cur, types.OrderStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(cur, types.OrderStatusPending)
		}
		out = cur
		return tx.AppendAction(ctx, s.action(cur, types.OrderStatusPending, tag, actor, "", reason))
	})
	if err != nil {
		return model.Order{}, err
	}
	s.changed(ctx, out, tag)
	return out, nil
}

func (r localRoute) close(ctx context.Context, ac accountContext, o model.Order, actor types.Actor, tag types.ActionTag) (model.Order, error) {
	return r.s.closeLocal(ctx, o.AccountID, o.ID, nil, tag, actor)
}

func (s *Service) closeLocal(ctx context.Context, accountID, orderID string, price *decimal.Decimal, tag types.ActionTag, actor types.Actor) (model.Order, error) {
	var out model.Order
	err := s.store.WithAccountLock(ctx, accountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		closed, err := s.closeLocked(ctx, tx, cur, price, tag, actor, "")
		out = closed
		return err
	})
	if err != nil {
		return model.Order{}, wrapf(err, "close order %s", orderID)
	}
	s.changed(ctx, out, tag)
	return out, nil
}

func (r localRoute) setLevel(ctx context.Context, ac accountContext, o model.Order, lc levelChange) (model.Order, error) {
	s := r.s
	var out model.Order
	err := s.store.WithAccountLock(ctx, o.AccountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if cur.Status != types.OrderStatusOpen && cur.Status != types.OrderStatusPending {
			return lostRace(cur, o.Status)
		}
		expect := cur.Status
		lc.apply(&cur)
		cur.UpdatedAt = s.now().UTC()
		ok, err := tx.UpdateOrder(ctx, cur, expect)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(cur, expect)
		}
		out = cur
		return tx.AppendAction(ctx, s.action(cur, expect, lc.tag(), lc.ref.Actor, "", ""))
	})
	if err != nil {
		return model.Order{}, err
	}
	s.changed(ctx, out, lc.tag())
	return out, nil
}

// openLocked prices o, applies the hedged margin delta to the locked account
// and returns o as OPEN. It does not write the order. With checkFree set, an
// increase in margin beyond the account's free margin is refused.
func (s *Service) openLocked(ctx context.Context, tx store.Tx, o model.Order, execPrice *decimal.Decimal, checkFree bool) (model.Order, error) {
	acc := tx.Account()
	inst, mi, err := s.instrument(ctx, acc.Group, o.Symbol)
	if err != nil {
		return o, err
	}
	var price decimal.Decimal
	if execPrice != nil && execPrice.IsPositive() {
		price = *execPrice
	} else {
		q, err := s.prices.Adjusted(o.Symbol, acc.Group, inst)
		if err != nil {
			return o, err
		}
		price = margin.ReferencePrice(o.Side, q)
	}
	m, err := s.calc.For(acc.Currency).OrderMargin(o.Quantity, price, acc.Leverage, mi)
	if err != nil {
		return o, err
	}
	open, err := tx.ListOrders(ctx, types.OrderStatusOpen)
	if err != nil {
		return o, err
	}
	var same []model.Order
	for _, p := range open {
		if p.Symbol == o.Symbol && p.ID != o.ID {
			same = append(same, p)
		}
	}
	before := margin.Positions(same)
	after := append(margin.Positions(same), margin.Position{Side: o.Side, Quantity: o.Quantity, Margin: m})
	delta := margin.Delta(before, after)
	if checkFree && delta.IsPositive() {
		v := s.pricer.Value(ctx, acc, open)
		if delta.GreaterThan(v.FreeMargin) {
			return o, apperr.InsufficientMargin("order needs %s margin, free margin is %s", delta, v.FreeMargin)
		}
	}
	o.Status = types.OrderStatusOpen
	o.ExecutedPrice = &price
	o.Margin = m
	o.ContractValue = margin.ContractValue(o.Quantity, mi)
	o.Commission = margin.EntryCommission(o.Quantity, price, mi)
	o.UpdatedAt = s.now().UTC()
	acc.MarginInUse = acc.MarginInUse.Add(delta)
	acc.UpdatedAt = o.UpdatedAt
	if err := tx.UpdateAccount(ctx, acc); err != nil {
		return o, err
	}
	return o, nil
}

// closeLocked realizes an OPEN order at price (or the live exit price),
// releases its share of hedged margin, settles the wallet and writes the
// ledger entries. Wallet delta == net profit - swap == sum of the entries.
func (s *Service) closeLocked(ctx context.Context, tx store.Tx, cur model.Order, price *decimal.Decimal, tag types.ActionTag, actor types.Actor, correlationID string) (model.Order, error) {
	if cur.Status != types.OrderStatusOpen {
		return cur, lostRace(cur, types.OrderStatusOpen)
	}
	acc := tx.Account()
	inst, mi, err := s.instrument(ctx, acc.Group, cur.Symbol)
	if err != nil {
		return cur, err
	}
	var exit decimal.Decimal
	if price != nil && price.IsPositive() {
		exit = *price
	} else {
		q, err := s.prices.Adjusted(cur.Symbol, acc.Group, inst)
		if err != nil {
			return cur, err
		}
		exit = margin.ExitPrice(cur.Side, q)
	}
	profit, err := s.calc.For(acc.Currency).Profit(cur.Side, cur.EntryPrice(), exit, cur.Quantity, mi)
	if err != nil {
		return cur, err
	}
	profit = profit.Round(margin.MoneyPlaces)
	commission := cur.Commission.Add(margin.ExitCommission(cur.Quantity, exit, mi))
	net := profit.Sub(commission).Round(margin.MoneyPlaces)

	open, err := tx.ListOrders(ctx, types.OrderStatusOpen)
	if err != nil {
		return cur, err
	}
	var before, after []margin.Position
	for _, p := range open {
		if p.Symbol != cur.Symbol {
			continue
		}
		before = append(before, margin.PositionOf(p))
		if p.ID != cur.ID {
			after = append(after, margin.PositionOf(p))
		}
	}
	delta := margin.Delta(before, after)

	from := cur.Status
	cur.Status = types.OrderStatusClosed
	cur.ClosePrice = &exit
	cur.NetProfit = &net
	cur.Commission = commission
	cur.UpdatedAt = s.now().UTC()
	ok, err := tx.UpdateOrder(ctx, cur, from)
	if err != nil {
		return cur, err
	}
	if !ok {
		return cur, lostRace(cur, from)
	}

	acc.WalletBalance = acc.WalletBalance.Add(net).Sub(cur.Swap).Round(margin.WalletPlaces)
	acc.MarginInUse = acc.MarginInUse.Add(delta)
	if acc.MarginInUse.IsNegative() {
		return cur, apperr.Consistency("closing %s would leave account %s with margin in use %s", cur.ID, acc.ID, acc.MarginInUse)
	}
	acc.UpdatedAt = cur.UpdatedAt
	if err := tx.UpdateAccount(ctx, acc); err != nil {
		return cur, err
	}
	if _, err := s.ledger.Append(ctx, tx, cur, ledger.CloseEntries(profit, commission, cur.Swap)); err != nil {
		return cur, err
	}
	return cur, tx.AppendAction(ctx, s.action(cur, from, tag, actor, correlationID, ""))
}

// TriggerPending activates a PENDING order at the live reference price. It
// reports false without error if the order is no longer PENDING. If the
// account cannot fund the extra margin the order is cancelled with
// InsufficientFreeMargin.
func (s *Service) TriggerPending(ctx context.Context, accountID, orderID string) (model.Order, bool, error) {
	var out model.Order
	var tag types.ActionTag
	err := s.store.WithAccountLock(ctx, accountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if cur.Status != types.OrderStatusPending {
			out = cur
			return nil
		}
		opened, err := s.openLocked(ctx, tx, cur, nil, true)
		switch {
		case errors.Is(err, apperr.ErrInsufficientMargin):
			cur.Status = types.OrderStatusCancelled
			cur.Message = InsufficientFreeMargin
			cur.UpdatedAt = s.now().UTC()
			tag = types.ActionInsufficientFunds
			opened = cur
		case err != nil:
			return err
		default:
			tag = types.ActionTrigger
		}
		ok, err := tx.UpdateOrder(ctx, opened, types.OrderStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(opened, types.OrderStatusPending)
		}
		out = opened
		return tx.AppendAction(ctx, s.action(opened, types.OrderStatusPending, tag, types.ActorSystem, "", opened.Message))
	})
	if err != nil {
		return model.Order{}, false, wrapf(err, "trigger order %s", orderID)
	}
	if tag == "" {
		return out, false, nil
	}
	s.metrics.Trigger(ctx, string(tag))
	s.changed(ctx, out, tag)
	return out, true, nil
}

// CloseAt closes an OPEN order of a locally routed account at the live exit
// price on behalf of the system.
func (s *Service) CloseAt(ctx context.Context, accountID, orderID string, tag types.ActionTag) (model.Order, error) {
	o, err := s.closeLocal(ctx, accountID, orderID, nil, tag, types.ActorSystem)
	if err == nil {
		s.metrics.Trigger(ctx, string(tag))
	}
	return o, err
}
