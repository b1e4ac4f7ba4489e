package groups

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	*StaticSource
	loads atomic.Int32
	fail  atomic.Bool
}

func (s *countingSource) LoadGroup(ctx context.Context, name string) (model.Group, error) {
	s.loads.Add(1)
	if s.fail.Load() {
		return model.Group{}, errors.New("db down")
	}
	return s.StaticSource.LoadGroup(ctx, name)
}

func newSource() *countingSource {
	src := &countingSource{StaticSource: NewStaticSource()}
	src.PutGroup(model.Group{
		Name:    "standard",
		Routing: types.RoutingLocal,
		Instruments: map[string]model.InstrumentConfig{
			"EURUSD": {Symbol: "EURUSD", Class: types.InstrumentForex},
		},
	})
	return src
}

func TestCacheServesWithinTTL(t *testing.T) {
	src := newSource()
	c := NewCache(src, time.Minute)
	ctx := context.Background()

	_, err := c.Group(ctx, "standard")
	require.NoError(t, err)
	_, err = c.Instrument(ctx, "standard", "EURUSD")
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.loads.Load())
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	src := newSource()
	c := NewCache(src, time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	_, err := c.Group(ctx, "standard")
	require.NoError(t, err)
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = c.Group(ctx, "standard")
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.loads.Load())
}

func TestCacheServesExpiredOnRefreshFailure(t *testing.T) {
	src := newSource()
	c := NewCache(src, time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	_, err := c.Group(ctx, "standard")
	require.NoError(t, err)
	src.fail.Store(true)
	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	g, err := c.Group(ctx, "standard")
	require.NoError(t, err)
	assert.Equal(t, types.RoutingLocal, g.Routing)
}

func TestUnknownSymbolIsValidationError(t *testing.T) {
	c := NewCache(newSource(), time.Minute)

	_, err := c.Instrument(context.Background(), "standard", "DOGEUSD")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = c.Group(context.Background(), "vip")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestExternalMissingIsPricingUnavailable(t *testing.T) {
	c := NewCache(newSource(), time.Minute)

	_, err := c.External(context.Background(), "EURUSD")
	assert.True(t, errors.Is(err, apperr.ErrPricingUnavailable))
}
