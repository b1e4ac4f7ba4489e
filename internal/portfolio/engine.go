package portfolio

import (
	"context"
	"sync"
	"time"

	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/marketdata"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

var portfolioLog = logging.Component("portfolio")

const refreshParallelism = 8

type cached struct {
	val     Valuation
	expires time.Time
}

type GroupSource interface {
	Group(ctx context.Context, name string) (model.Group, error)
}

// Engine periodically values every account that holds open positions.
type Engine struct {
	store     store.Store
	pricer    *Pricer
	groups    GroupSource
	bus       *marketdata.Bus
	interval  time.Duration
	ttl       time.Duration
	callLevel decimal.Decimal

	mu    sync.RWMutex
	cache map[string]cached
	now   func() time.Time
}

func NewEngine(st store.Store, pricer *Pricer, groups GroupSource, bus *marketdata.Bus, interval, ttl time.Duration, callLevel decimal.Decimal) *Engine {
	return &Engine{
		store:     st,
		pricer:    pricer,
		groups:    groups,
		bus:       bus,
		interval:  interval,
		ttl:       ttl,
		callLevel: callLevel,
		cache:     map[string]cached{},
		now:       time.Now,
	}
}

func (e *Engine) Run(ctx context.Context) error {
	portfolioLog.WithField("interval", e.interval).Info("valuation refresher started")
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.RefreshAll(ctx)
		}
	}
}

// RefreshAll revalues every account with exposure. A panic while valuing
// one account is logged and does not stop the others.
func (e *Engine) RefreshAll(ctx context.Context) {
	ids, err := e.store.ListAccountsWithExposure(ctx)
	if err != nil {
		portfolioLog.WithError(err).Error("list accounts with exposure")
		return
	}
	sem := make(chan struct{}, refreshParallelism)
	var wg conc.WaitGroup
	for _, id := range ids {
		accountID := id
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			if _, err := e.Refresh(ctx, accountID); err != nil {
				portfolioLog.WithError(err).WithField("account_id", accountID).Warn("valuation failed")
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		portfolioLog.WithField("panic", r.Value).Error("valuation worker panicked")
	}
	e.evictIdle(ids)
}

func (e *Engine) evictIdle(active []string) {
	keep := make(map[string]struct{}, len(active))
	for _, id := range active {
		keep[id] = struct{}{}
	}
	e.mu.Lock()
	for id, c := range e.cache {
		if _, ok := keep[id]; !ok && e.now().After(c.expires) {
			delete(e.cache, id)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) Refresh(ctx context.Context, accountID string) (Valuation, error) {
	acc, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return Valuation{}, err
	}
	open, err := e.store.ListOrders(ctx, accountID, types.OrderStatusOpen)
	if err != nil {
		return Valuation{}, err
	}
	v := e.pricer.Value(ctx, acc, open)
	e.mu.Lock()
	e.cache[accountID] = cached{val: v, expires: e.now().Add(e.ttl)}
	e.mu.Unlock()
	e.bus.Publish(marketdata.Event{Type: marketdata.EventValuation, AccountID: accountID, Data: v})
	if level := e.CallLevel(ctx, acc.Group); v.Below(level) {
		portfolioLog.WithFields(logrus.Fields{
			"account_id":   accountID,
			"margin_level": v.MarginLevel.StringFixed(2),
			"threshold":    level.String(),
		}).Warn("margin call")
		e.bus.Publish(marketdata.Event{Type: marketdata.EventMargin, AccountID: accountID, Data: v})
	}
	return v, nil
}

// CallLevel is the group's margin call override, or the engine default when
// the group sets none or cannot be loaded.
func (e *Engine) CallLevel(ctx context.Context, group string) decimal.Decimal {
	if e.groups == nil {
		return e.callLevel
	}
	g, err := e.groups.Group(ctx, group)
	if err != nil {
		portfolioLog.WithError(err).WithField("group", group).Debug("group unavailable, using default call level")
		return e.callLevel
	}
	if g.MarginCallLevel != nil && g.MarginCallLevel.IsPositive() {
		return *g.MarginCallLevel
	}
	return e.callLevel
}

// Get returns a cached valuation younger than the TTL, refreshing otherwise.
func (e *Engine) Get(ctx context.Context, accountID string) (Valuation, error) {
	if v, ok := e.Cached(accountID); ok {
		return v, nil
	}
	return e.Refresh(ctx, accountID)
}

func (e *Engine) Cached(accountID string) (Valuation, bool) {
	e.mu.RLock()
	c, ok := e.cache[accountID]
	e.mu.RUnlock()
	if !ok || e.now().After(c.expires) {
		return Valuation{}, false
	}
	return c.val, true
}

// Invalidate drops the cached valuation after the account changed.
func (e *Engine) Invalidate(accountID string) {
	e.mu.Lock()
	delete(e.cache, accountID)
	e.mu.Unlock()
}
