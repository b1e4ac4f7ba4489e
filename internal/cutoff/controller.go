// Package cutoff force-closes every open order of an account whose margin
// level has fallen below the stop-out threshold.
package cutoff

import (
	"context"
	"time"

	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/portfolio"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/telemetry"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
)

var cutoffLog = logging.Component("cutoff")

type Valuations interface {
	Get(ctx context.Context, accountID string) (portfolio.Valuation, error)
	Invalidate(accountID string)
}

type GroupSource interface {
	Group(ctx context.Context, name string) (model.Group, error)
}

// Closer force-closes a single order. *orders.Service satisfies it.
type Closer interface {
	ForceClose(ctx context.Context, o model.Order, tag types.ActionTag) (model.Order, error)
}

type Controller struct {
	store    store.Store
	vals     Valuations
	groups   GroupSource
	closer   Closer
	metrics  *telemetry.Metrics
	level    decimal.Decimal
	interval time.Duration
}

func NewController(st store.Store, vals Valuations, groups GroupSource, closer Closer, metrics *telemetry.Metrics, level decimal.Decimal, interval time.Duration) *Controller {
	return &Controller{
		store:    st,
		vals:     vals,
		groups:   groups,
		closer:   closer,
		metrics:  metrics,
		level:    level,
		interval: interval,
	}
}

func (c *Controller) Run(ctx context.Context) error {
	cutoffLog.WithField("interval", c.interval).WithField("level", c.level.String()).Info("auto-cutoff started")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep checks every account with open exposure once and returns the ids of
// the accounts that were cut off.
func (c *Controller) Sweep(ctx context.Context) []string {
	ids, err := c.store.ListAccountsWithExposure(ctx)
	if err != nil {
		cutoffLog.WithError(err).Error("list accounts with exposure")
		return nil
	}
	var hit []string
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		accountID := id
		var pc panics.Catcher
		var did bool
		pc.Try(func() { did = c.Check(ctx, accountID) })
		if r := pc.Recovered(); r != nil {
			cutoffLog.WithField("account_id", accountID).WithField("panic", r.Value).Error("cutoff check panicked")
			continue
		}
		if did {
			hit = append(hit, accountID)
		}
	}
	return hit
}

// Check cuts the account off if its valuation is complete and its margin
// level is strictly between zero and the threshold.
func (c *Controller) Check(ctx context.Context, accountID string) bool {
	acc, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		cutoffLog.WithError(err).WithField("account_id", accountID).Warn("load account")
		return false
	}
	level := c.level
	if g, err := c.groups.Group(ctx, acc.Group); err == nil && g.CutoffLevel != nil {
		level = *g.CutoffLevel
	}
	v, err := c.vals.Get(ctx, accountID)
	if err != nil {
		cutoffLog.WithError(err).WithField("account_id", accountID).Warn("valuation unavailable")
		return false
	}
	if !v.Below(level) {
		return false
	}
	open, err := c.store.ListOrders(ctx, accountID, types.OrderStatusOpen)
	if err != nil {
		cutoffLog.WithError(err).WithField("account_id", accountID).Error("list open orders")
		return false
	}
	cutoffLog.WithFields(logrus.Fields{
		"account_id":   accountID,
		"margin_level": v.MarginLevel.StringFixed(2),
		"threshold":    level.String(),
		"orders":       len(open),
	}).Warn("auto-cutoff triggered")
	c.metrics.Cutoff(ctx, string(acc.Class))
	for _, o := range open {
		if _, err := c.closer.ForceClose(ctx, o, types.ActionAutoCutoff); err != nil {
			cutoffLog.WithError(err).WithField("order_id", o.ID).Error("force close failed")
		}
	}
	c.vals.Invalidate(accountID)
	return true
}
