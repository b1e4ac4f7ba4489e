// Package swap accrues the daily overnight financing charge on open orders.
// The accrued amount is stored on the order and debited from the wallet
// when the order closes.
package swap

import (
	"context"
	"time"

	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var swapLog = logging.Component("swap")

var daysPerYear = decimal.NewFromInt(365)

type GroupSource interface {
	Group(ctx context.Context, name string) (model.Group, error)
}

type QuoteSource interface {
	Quote(symbol string) (model.PriceQuote, bool)
}

type Invalidator interface {
	Invalidate(accountID string)
}

type Job struct {
	store   store.Store
	groups  GroupSource
	quotes  QuoteSource
	invalid Invalidator
	hour    int
	now     func() time.Time
	newID   func() string
}

func NewJob(st store.Store, groups GroupSource, quotes QuoteSource, invalid Invalidator, hourUTC int) *Job {
	return &Job{
		store:   st,
		groups:  groups,
		quotes:  quotes,
		invalid: invalid,
		hour:    hourUTC,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Charge is the daily swap for qty lots at the raw ask.
func Charge(side types.OrderSide, qty, ask decimal.Decimal, inst model.InstrumentConfig) decimal.Decimal {
	rate := inst.SwapBuy
	if side == types.OrderSideSell {
		rate = inst.SwapSell
	}
	return qty.Mul(rate).Mul(ask).Div(daysPerYear).Round(margin.WalletPlaces)
}

// NextRun is the first run time strictly after t.
func NextRun(t time.Time, hourUTC int) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (j *Job) Run(ctx context.Context) error {
	for {
		next := NextRun(j.now(), j.hour)
		swapLog.WithField("next_run", next).Info("swap accrual scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			j.Accrue(ctx)
		}
	}
}

// Result counts one accrual pass.
type Result struct {
	Charged int
	Skipped int
	Failed  int
}

// Accrue charges one day of swap to every OPEN order of locally routed
// accounts. Orders without a price or swap rate are skipped.
func (j *Job) Accrue(ctx context.Context) Result {
	var res Result
	open, err := j.store.ListOrdersByStatus(ctx, types.OrderStatusOpen)
	if err != nil {
		swapLog.WithError(err).Error("list open orders")
		return res
	}
	byAccount := map[string][]model.Order{}
	var order []string
	for _, o := range open {
		if _, ok := byAccount[o.AccountID]; !ok {
			order = append(order, o.AccountID)
		}
		byAccount[o.AccountID] = append(byAccount[o.AccountID], o)
	}
	for _, accountID := range order {
		if ctx.Err() != nil {
			break
		}
		r := j.accrueAccount(ctx, accountID, byAccount[accountID])
		res.Charged += r.Charged
		res.Skipped += r.Skipped
		res.Failed += r.Failed
	}
	swapLog.WithFields(logrus.Fields{
		"charged": res.Charged,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}).Info("swap accrual finished")
	return res
}

func (j *Job) accrueAccount(ctx context.Context, accountID string, orders []model.Order) Result {
	var res Result
	acc, err := j.store.GetAccount(ctx, accountID)
	if err != nil {
		swapLog.WithError(err).WithField("account_id", accountID).Warn("load account")
		res.Failed += len(orders)
		return res
	}
	g, err := j.groups.Group(ctx, acc.Group)
	if err != nil {
		swapLog.WithError(err).WithField("group", acc.Group).Warn("load group")
		res.Failed += len(orders)
		return res
	}
	if g.Routing == types.RoutingBridge {
		res.Skipped += len(orders)
		return res
	}
	err = j.store.WithAccountLock(ctx, accountID, func(tx store.Tx) error {
		for _, o := range orders {
			inst, ok := g.Instruments[o.Symbol]
			if !ok {
				res.Skipped++
				continue
			}
			q, ok := j.quotes.Quote(o.Symbol)
			if !ok || !q.Ask.IsPositive() {
				swapLog.WithField("order_id", o.ID).WithField("symbol", o.Symbol).Warn("no ask price, skipping swap")
				res.Skipped++
				continue
			}
			charge := Charge(o.Side, o.Quantity, q.Ask, inst)
			if charge.IsZero() {
				res.Skipped++
				continue
			}
			cur, err := tx.GetOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			cur.Swap = cur.Swap.Add(charge)
			cur.UpdatedAt = j.now().UTC()
			ok, err = tx.UpdateOrder(ctx, cur, types.OrderStatusOpen)
			if err != nil {
				return err
			}
			if !ok {
				res.Skipped++
				continue
			}
			if err := tx.AppendAction(ctx, model.OrderAction{
				ID:         j.newID(),
				OrderID:    cur.ID,
				AccountID:  cur.AccountID,
				Actor:      types.ActorSystem,
				Action:     types.ActionSwap,
				FromStatus: types.OrderStatusOpen,
				ToStatus:   types.OrderStatusOpen,
				Note:       charge.String(),
				CreatedAt:  cur.UpdatedAt,
			}); err != nil {
				return err
			}
			res.Charged++
		}
		return nil
	})
	if err != nil {
		swapLog.WithError(err).WithField("account_id", accountID).Error("swap accrual failed")
		return Result{Failed: len(orders)}
	}
	if res.Charged > 0 && j.invalid != nil {
		j.invalid.Invalidate(accountID)
	}
	return res
}
