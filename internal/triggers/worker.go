package triggers

import (
	"context"
	"errors"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/marketdata"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
)

var triggersLog = logging.Component("triggers")

type ConfigSource interface {
	Group(ctx context.Context, name string) (model.Group, error)
	Instrument(ctx context.Context, group, symbol string) (model.InstrumentConfig, error)
}

type PriceSource interface {
	Adjusted(symbol, group string, inst model.InstrumentConfig) (model.AdjustedQuote, error)
}

// Executor performs the state transitions. *orders.Service satisfies it.
type Executor interface {
	TriggerPending(ctx context.Context, accountID, orderID string) (model.Order, bool, error)
	CloseAt(ctx context.Context, accountID, orderID string, tag types.ActionTag) (model.Order, error)
}

type Worker struct {
	store  store.Store
	config ConfigSource
	prices PriceSource
	exec   Executor
	eps    decimal.Decimal
}

func NewWorker(st store.Store, config ConfigSource, prices PriceSource, exec Executor, eps decimal.Decimal) *Worker {
	return &Worker{store: st, config: config, prices: prices, exec: exec, eps: eps}
}

// RunPending evaluates PENDING orders for every batch of changed symbols.
func (w *Worker) RunPending(ctx context.Context, sub *marketdata.Subscription) error {
	return w.run(ctx, sub, "pending", w.CheckPending)
}

// RunStops evaluates stop-loss and take-profit levels of OPEN orders.
func (w *Worker) RunStops(ctx context.Context, sub *marketdata.Subscription) error {
	return w.run(ctx, sub, "sltp", w.CheckStops)
}

func (w *Worker) run(ctx context.Context, sub *marketdata.Subscription, name string, check func(context.Context, []string)) error {
	triggersLog.WithField("loop", name).Info("trigger loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.C():
			if symbols := sub.Drain(); len(symbols) > 0 {
				check(ctx, symbols)
			}
		}
	}
}

// sweep caches the account and group lookups of one evaluation pass.
type sweep struct {
	w        *Worker
	accounts map[string]*model.Account
	groups   map[string]*model.Group
}

func (w *Worker) newSweep() *sweep {
	return &sweep{w: w, accounts: map[string]*model.Account{}, groups: map[string]*model.Group{}}
}

// quote returns the adjusted quote for o's account group, or false when the
// account is bridge-routed or the symbol cannot be priced.
func (s *sweep) quote(ctx context.Context, o model.Order) (model.AdjustedQuote, bool) {
	acc, ok := s.accounts[o.AccountID]
	if !ok {
		a, err := s.w.store.GetAccount(ctx, o.AccountID)
		if err != nil {
			triggersLog.WithError(err).WithField("account_id", o.AccountID).Warn("load account")
		} else {
			acc = &a
		}
		s.accounts[o.AccountID] = acc
	}
	if acc == nil {
		return model.AdjustedQuote{}, false
	}
	g, ok := s.groups[acc.Group]
	if !ok {
		gr, err := s.w.config.Group(ctx, acc.Group)
		if err != nil {
			triggersLog.WithError(err).WithField("group", acc.Group).Warn("load group")
		} else {
			g = &gr
		}
		s.groups[acc.Group] = g
	}
	// Bridge-routed accounts are triggered by the provider.
	if g == nil || g.Routing == types.RoutingBridge {
		return model.AdjustedQuote{}, false
	}
	inst, ok := g.Instruments[o.Symbol]
	if !ok {
		return model.AdjustedQuote{}, false
	}
	q, err := s.w.prices.Adjusted(o.Symbol, acc.Group, inst)
	if err != nil {
		return model.AdjustedQuote{}, false
	}
	return q, true
}

func (w *Worker) CheckPending(ctx context.Context, symbols []string) {
	sw := w.newSweep()
	for _, sym := range symbols {
		list, err := w.store.ListOrdersBySymbol(ctx, sym, types.OrderStatusPending)
		if err != nil {
			triggersLog.WithError(err).WithField("symbol", sym).Error("list pending orders")
			continue
		}
		for _, o := range list {
			if ctx.Err() != nil {
				return
			}
			w.guard(o, "pending", func() { w.evalPending(ctx, sw, o) })
		}
	}
}

func (w *Worker) evalPending(ctx context.Context, sw *sweep, o model.Order) {
	if o.RequestedPrice == nil {
		return
	}
	q, ok := sw.quote(ctx, o)
	if !ok || !ShouldTrigger(o.Kind, o.Side, *o.RequestedPrice, q.Buy, w.eps) {
		return
	}
	out, fired, err := w.exec.TriggerPending(ctx, o.AccountID, o.ID)
	if err != nil {
		w.logItemError(err, o, "trigger pending order")
		return
	}
	if fired {
		triggersLog.WithFields(logrus.Fields{
			"order_id":   o.ID,
			"account_id": o.AccountID,
			"symbol":     o.Symbol,
			"status":     out.Status,
			"buy":        q.Buy.String(),
		}).Info("pending order triggered")
	}
}

func (w *Worker) CheckStops(ctx context.Context, symbols []string) {
	sw := w.newSweep()
	for _, sym := range symbols {
		list, err := w.store.ListOrdersBySymbol(ctx, sym, types.OrderStatusOpen)
		if err != nil {
			triggersLog.WithError(err).WithField("symbol", sym).Error("list open orders")
			continue
		}
		for _, o := range list {
			if ctx.Err() != nil {
				return
			}
			if o.StopLoss == nil && o.TakeProfit == nil {
				continue
			}
			w.guard(o, "sltp", func() { w.evalStops(ctx, sw, o) })
		}
	}
}

func (w *Worker) evalStops(ctx context.Context, sw *sweep, o model.Order) {
	q, ok := sw.quote(ctx, o)
	if !ok {
		return
	}
	tag, hit := ShouldClose(o, q, w.eps)
	if !hit {
		return
	}
	out, err := w.exec.CloseAt(ctx, o.AccountID, o.ID, tag)
	if err != nil {
		w.logItemError(err, o, "close at level")
		return
	}
	triggersLog.WithFields(logrus.Fields{
		"order_id":   o.ID,
		"account_id": o.AccountID,
		"reason":     tag,
		"net_profit": out.NetProfit,
	}).Info("order closed at level")
}

// guard keeps one failing order from stopping the sweep.
func (w *Worker) guard(o model.Order, loop string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		triggersLog.WithFields(logrus.Fields{
			"loop":     loop,
			"order_id": o.ID,
			"panic":    r.Value,
		}).Error("trigger evaluation panicked")
	}
}

func (w *Worker) logItemError(err error, o model.Order, msg string) {
	entry := triggersLog.WithError(err).WithField("order_id", o.ID).WithField("account_id", o.AccountID)
	// Losing a race with a user action is expected.
	if errors.Is(err, apperr.ErrInvalidState) {
		entry.Debug(msg)
		return
	}
	entry.Warn(msg)
}
