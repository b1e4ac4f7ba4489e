package marketdata

import (
	"sort"
	"sync"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"

	"github.com/shopspring/decimal"
)

// synthSpread is the relative spread used to rebuild a missing bid or ask.
var synthSpread = decimal.RequireFromString("0.0001")

var two = decimal.NewFromInt(2)

// RawTick is one normalized feed entry. A zero side means the feed omitted it.
type RawTick struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// Notifier is told which symbols changed after each ingest.
type Notifier interface {
	Mark(symbols ...string)
}

type Cache struct {
	mu       sync.RWMutex
	quotes   map[string]model.PriceQuote
	maxAge   time.Duration
	notifier Notifier
	now      func() time.Time
}

func NewCache(maxAge time.Duration, notifier Notifier) *Cache {
	return &Cache{
		quotes:   map[string]model.PriceQuote{},
		maxAge:   maxAge,
		notifier: notifier,
		now:      time.Now,
	}
}

// Ingest stores a batch of ticks. A tick missing one side is completed from
// the other; a tick missing both keeps the previous snapshot.
func (c *Cache) Ingest(ticks map[string]RawTick) {
	now := c.now()
	changed := make([]string, 0, len(ticks))
	c.mu.Lock()
	for symbol, t := range ticks {
		bid, ask, ok := completeSides(t.Bid, t.Ask)
		if symbol == "" || !ok {
			continue
		}
		c.quotes[symbol] = model.PriceQuote{Symbol: symbol, Bid: bid, Ask: ask, ReceivedAt: now}
		changed = append(changed, symbol)
	}
	c.mu.Unlock()
	if len(changed) == 0 || c.notifier == nil {
		return
	}
	sort.Strings(changed)
	c.notifier.Mark(changed...)
}

func completeSides(bid, ask decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool) {
	hasBid := bid.IsPositive()
	hasAsk := ask.IsPositive()
	switch {
	case hasBid && hasAsk:
		return bid, ask, true
	case hasAsk:
		return ask.Sub(ask.Mul(synthSpread)), ask, true
	case hasBid:
		return bid, bid.Add(bid.Mul(synthSpread)), true
	}
	return decimal.Zero, decimal.Zero, false
}

// Quote returns the raw quote, rejecting stale entries.
func (c *Cache) Quote(symbol string) (model.PriceQuote, bool) {
	c.mu.RLock()
	q, ok := c.quotes[symbol]
	c.mu.RUnlock()
	if !ok || !q.Bid.IsPositive() || !q.Ask.IsPositive() {
		return model.PriceQuote{}, false
	}
	if c.maxAge > 0 && c.now().Sub(q.ReceivedAt) > c.maxAge {
		return model.PriceQuote{}, false
	}
	return q, true
}

// Adjusted applies the group spread: half of spread*spread_unit is added to
// the ask and taken off the bid.
func (c *Cache) Adjusted(symbol, group string, inst model.InstrumentConfig) (model.AdjustedQuote, error) {
	q, ok := c.Quote(symbol)
	if !ok {
		return model.AdjustedQuote{}, apperr.PricingUnavailable("no live price for %s", symbol)
	}
	return Adjust(q, group, inst), nil
}

func Adjust(q model.PriceQuote, group string, inst model.InstrumentConfig) model.AdjustedQuote {
	half := inst.Spread.Mul(inst.SpreadUnit).Div(two)
	return model.AdjustedQuote{
		Symbol: q.Symbol,
		Group:  group,
		Buy:    q.Ask.Add(half),
		Sell:   q.Bid.Sub(half),
	}
}

// Snapshot returns the current quotes for the given symbols, skipping stale ones.
func (c *Cache) Snapshot(symbols []string) []model.PriceQuote {
	out := make([]model.PriceQuote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := c.Quote(s); ok {
			out = append(out, q)
		}
	}
	return out
}

// Fresh counts symbols whose quote is within the staleness window.
func (c *Cache) Fresh() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, q := range c.quotes {
		if c.maxAge <= 0 || now.Sub(q.ReceivedAt) <= c.maxAge {
			n++
		}
	}
	return n
}
