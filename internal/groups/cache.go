// Package groups caches per-group trading configuration: routing, risk
// level overrides and the instrument table, plus provider instrument info.
package groups

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/model"

	"golang.org/x/sync/singleflight"
)

var groupsLog = logging.Component("groups")

var ErrUnknown = errors.New("unknown group or symbol")

type Source interface {
	LoadGroup(ctx context.Context, name string) (model.Group, error)
	LoadExternal(ctx context.Context, symbol string) (model.ExternalInstrumentInfo, error)
}

type groupEntry struct {
	group   model.Group
	expires time.Time
}

type externalEntry struct {
	info    model.ExternalInstrumentInfo
	expires time.Time
}

type Cache struct {
	src      Source
	ttl      time.Duration
	mu       sync.RWMutex
	groups   map[string]groupEntry
	external map[string]externalEntry
	flight   singleflight.Group
	now      func() time.Time
}

func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{
		src:      src,
		ttl:      ttl,
		groups:   map[string]groupEntry{},
		external: map[string]externalEntry{},
		now:      time.Now,
	}
}

func (c *Cache) Group(ctx context.Context, name string) (model.Group, error) {
	c.mu.RLock()
	e, ok := c.groups[name]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.group, nil
	}
	v, err, _ := c.flight.Do("group:"+name, func() (any, error) {
		g, err := c.src.LoadGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.groups[name] = groupEntry{group: g, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return g, nil
	})
	if err != nil {
		if ok {
			groupsLog.WithError(err).WithField("group", name).Warn("refresh failed, serving expired config")
			return e.group, nil
		}
		if errors.Is(err, ErrUnknown) {
			return model.Group{}, apperr.Validation("unknown group %s", name)
		}
		return model.Group{}, fmt.Errorf("load group %s: %w", name, err)
	}
	return v.(model.Group), nil
}

// Instrument returns the group's config for symbol. A symbol the group does
// not list is not tradable for its accounts.
func (c *Cache) Instrument(ctx context.Context, group, symbol string) (model.InstrumentConfig, error) {
	g, err := c.Group(ctx, group)
	if err != nil {
		return model.InstrumentConfig{}, err
	}
	inst, ok := g.Instruments[symbol]
	if !ok {
		return model.InstrumentConfig{}, apperr.Validation("symbol %s is not tradable in group %s", symbol, group)
	}
	return inst, nil
}

func (c *Cache) External(ctx context.Context, symbol string) (model.ExternalInstrumentInfo, error) {
	c.mu.RLock()
	e, ok := c.external[symbol]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.info, nil
	}
	v, err, _ := c.flight.Do("external:"+symbol, func() (any, error) {
		info, err := c.src.LoadExternal(ctx, symbol)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.external[symbol] = externalEntry{info: info, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		if ok {
			return e.info, nil
		}
		if errors.Is(err, ErrUnknown) {
			return model.ExternalInstrumentInfo{}, apperr.PricingUnavailable("no instrument info for %s", symbol)
		}
		return model.ExternalInstrumentInfo{}, fmt.Errorf("load instrument %s: %w", symbol, err)
	}
	return v.(model.ExternalInstrumentInfo), nil
}

func (c *Cache) Invalidate(group string) {
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
}
