package orders

import (
	"context"

	"lv-tradecore/internal/model"
	"lv-tradecore/internal/types"

	"github.com/shopspring/decimal"
)

// route executes a validated operation. localRoute commits immediately;
// bridgeRoute hands the operation to the external provider.
type route interface {
	place(ctx context.Context, ac accountContext, o model.Order, actor types.Actor) (model.Order, error)
	modify(ctx context.Context, ac accountContext, o model.Order, req ModifyRequest) (model.Order, error)
	cancel(ctx context.Context, ac accountContext, o model.Order, actor types.Actor) (model.Order, error)
	close(ctx context.Context, ac accountContext, o model.Order, actor types.Actor, tag types.ActionTag) (model.Order, error)
	setLevel(ctx context.Context, ac accountContext, o model.Order, lc levelChange) (model.Order, error)
}

func (s *Service) routeFor(g model.Group) route {
	if g.Routing == types.RoutingBridge {
		return bridgeRoute{s: s}
	}
	return localRoute{s: s}
}

type levelKind string

const (
	levelStopLoss   levelKind = "stop loss"
	levelTakeProfit levelKind = "take profit"
)

// levelChange adds (price set) or cancels (price nil) a stop-loss or
// take-profit.
type levelChange struct {
	ref   OrderRef
	kind  levelKind
	price *decimal.Decimal
}

func (lc levelChange) current(o model.Order) *decimal.Decimal {
	if lc.kind == levelStopLoss {
		return o.StopLoss
	}
	return o.TakeProfit
}

func (lc levelChange) apply(o *model.Order) {
	if lc.kind == levelStopLoss {
		o.StopLoss = lc.price
	} else {
		o.TakeProfit = lc.price
	}
}

func (lc levelChange) tag() types.ActionTag {
	switch {
	case lc.kind == levelStopLoss && lc.price != nil:
		return types.ActionStopLossAdd
	case lc.kind == levelStopLoss:
		return types.ActionStopLossCancel
	case lc.price != nil:
		return types.ActionTakeProfitAdd
	}
	return types.ActionTakeProfitCancel
}
