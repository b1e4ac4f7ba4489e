// Package orders owns the order state machine. Every operation either
// commits locally under the account lock or, for bridge-routed groups,
// records a correlation id and forwards a one-way intent.
package orders

import (
	"context"
	"fmt"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/bridge"
	"lv-tradecore/internal/ledger"
	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/marketdata"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/portfolio"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/telemetry"
	"lv-tradecore/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ordersLog = logging.Component("orders")

// InsufficientFreeMargin is the cancel reason for a pending order that could
// not be funded when it triggered.
const InsufficientFreeMargin = "InsufficientFreeMargin"

type ConfigSource interface {
	Group(ctx context.Context, name string) (model.Group, error)
	Instrument(ctx context.Context, group, symbol string) (model.InstrumentConfig, error)
	External(ctx context.Context, symbol string) (model.ExternalInstrumentInfo, error)
}

type PriceSource interface {
	Adjusted(symbol, group string, inst model.InstrumentConfig) (model.AdjustedQuote, error)
}

// Invalidator is told when an account's positions or balances changed.
type Invalidator interface {
	Invalidate(accountID string)
}

type Service struct {
	store   store.Store
	config  ConfigSource
	prices  PriceSource
	calc    *margin.Calculator
	pricer  *portfolio.Pricer
	ledger  *ledger.Service
	bridge  bridge.Adapter
	bus     *marketdata.Bus
	metrics *telemetry.Metrics
	invalid Invalidator
	now     func() time.Time
	newID   func() string
}

type Deps struct {
	Store   store.Store
	Config  ConfigSource
	Prices  PriceSource
	Calc    *margin.Calculator
	Ledger  *ledger.Service
	Bridge  bridge.Adapter
	Bus     *marketdata.Bus
	Metrics *telemetry.Metrics
}

func NewService(d Deps) *Service {
	adapter := d.Bridge
	if adapter == nil {
		adapter = bridge.NewDisabledAdapter()
	}
	lg := d.Ledger
	if lg == nil {
		lg = ledger.NewService()
	}
	return &Service{
		store:   d.Store,
		config:  d.Config,
		prices:  d.Prices,
		calc:    d.Calc,
		pricer:  portfolio.NewPricer(d.Config, d.Prices, d.Calc),
		ledger:  lg,
		bridge:  adapter,
		bus:     d.Bus,
		metrics: d.Metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalid = inv
}

type PlaceRequest struct {
	AccountID  string
	Actor      types.Actor
	Symbol     string
	Side       types.OrderSide
	Kind       types.OrderKind
	Quantity   decimal.Decimal
	Price      *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

type ModifyRequest struct {
	AccountID string
	OrderID   string
	Actor     types.Actor
	Price     *decimal.Decimal
	Quantity  *decimal.Decimal
}

type OrderRef struct {
	AccountID string
	OrderID   string
	Actor     types.Actor
}

type LevelRequest struct {
	AccountID string
	OrderID   string
	Actor     types.Actor
	Price     decimal.Decimal
}

// accountContext is everything resolved about an account before routing.
type accountContext struct {
	account model.Account
	group   model.Group
}

func (s *Service) loadAccount(ctx context.Context, accountID string) (accountContext, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return accountContext{}, err
	}
	g, err := s.config.Group(ctx, acc.Group)
	if err != nil {
		return accountContext{}, err
	}
	return accountContext{account: acc, group: g}, nil
}

func (s *Service) instrument(ctx context.Context, group, symbol string) (model.InstrumentConfig, margin.Instrument, error) {
	inst, err := s.config.Instrument(ctx, group, symbol)
	if err != nil {
		return inst, margin.Instrument{}, err
	}
	ext, err := s.config.External(ctx, symbol)
	if err != nil {
		return inst, margin.Instrument{}, err
	}
	return inst, margin.Resolve(inst, ext), nil
}

func (s *Service) ownedOrder(ctx context.Context, accountID, orderID string) (model.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return o, err
	}
	if o.AccountID != accountID {
		return model.Order{}, apperr.NotFound("order %s not found", orderID)
	}
	return o, nil
}

// Place validates and routes a new order.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (model.Order, error) {
	if err := validatePlace(req); err != nil {
		return model.Order{}, err
	}
	ac, err := s.loadAccount(ctx, req.AccountID)
	if err != nil {
		return model.Order{}, err
	}
	if ac.account.Status != types.AccountStatusActive {
		return model.Order{}, apperr.Validation("account %s is not active", ac.account.ID)
	}
	inst, _, err := s.instrument(ctx, ac.account.Group, req.Symbol)
	if err != nil {
		return model.Order{}, err
	}
	if err := validateLot(req.Quantity, inst); err != nil {
		return model.Order{}, err
	}
	ref := req.Price
	if !req.Kind.Pending() && (req.StopLoss != nil || req.TakeProfit != nil) {
		q, err := s.prices.Adjusted(req.Symbol, ac.account.Group, inst)
		if err != nil {
			return model.Order{}, err
		}
		p := margin.ReferencePrice(req.Side, q)
		ref = &p
	}
	if ref != nil {
		if err := validateLevels(req.Side, *ref, req.StopLoss, req.TakeProfit); err != nil {
			return model.Order{}, err
		}
	}
	now := s.now().UTC()
	o := model.Order{
		ID:             s.newID(),
		AccountID:      ac.account.ID,
		AccountClass:   ac.account.Class,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Kind:           req.Kind,
		Quantity:       req.Quantity,
		RequestedPrice: req.Price,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.routeFor(ac.group).place(ctx, ac, o, actorOr(req.Actor, types.ActorUser))
}

// ModifyPending changes the trigger price or quantity of a PENDING order.
func (s *Service) ModifyPending(ctx context.Context, req ModifyRequest) (model.Order, error) {
	if req.Price == nil && req.Quantity == nil {
		return model.Order{}, apperr.Validation("nothing to modify")
	}
	if req.Price != nil && !req.Price.IsPositive() {
		return model.Order{}, apperr.Validation("price must be positive")
	}
	o, err := s.ownedOrder(ctx, req.AccountID, req.OrderID)
	if err != nil {
		return o, err
	}
	if o.Status != types.OrderStatusPending {
		return o, apperr.InvalidState("order %s is %s, only PENDING orders can be modified", o.ID, o.Status)
	}
	ac, err := s.loadAccount(ctx, req.AccountID)
	if err != nil {
		return o, err
	}
	if req.Quantity != nil {
		inst, _, err := s.instrument(ctx, ac.account.Group, o.Symbol)
		if err != nil {
			return o, err
		}
		if err := validateLot(*req.Quantity, inst); err != nil {
			return o, err
		}
	}
	price := o.EntryPrice()
	if req.Price != nil {
		price = *req.Price
	}
	if err := validateLevels(o.Side, price, o.StopLoss, o.TakeProfit); err != nil {
		return o, err
	}
	return s.routeFor(ac.group).modify(ctx, ac, o, req)
}

func (s *Service) CancelPending(ctx context.Context, ref OrderRef) (model.Order, error) {
	o, err := s.ownedOrder(ctx, ref.AccountID, ref.OrderID)
	if err != nil {
		return o, err
	}
	if o.Status != types.OrderStatusPending {
		return o, apperr.InvalidState("order %s is %s, only PENDING orders can be cancelled", o.ID, o.Status)
	}
	ac, err := s.loadAccount(ctx, ref.AccountID)
	if err != nil {
		return o, err
	}
	return s.routeFor(ac.group).cancel(ctx, ac, o, actorOr(ref.Actor, types.ActorUser))
}

func (s *Service) Close(ctx context.Context, ref OrderRef) (model.Order, error) {
	o, err := s.ownedOrder(ctx, ref.AccountID, ref.OrderID)
	if err != nil {
		return o, err
	}
	if o.Status != types.OrderStatusOpen {
		return o, apperr.InvalidState("order %s is %s, only OPEN orders can be closed", o.ID, o.Status)
	}
	ac, err := s.loadAccount(ctx, ref.AccountID)
	if err != nil {
		return o, err
	}
	return s.routeFor(ac.group).close(ctx, ac, o, actorOr(ref.Actor, types.ActorUser), types.ActionClose)
}

func (s *Service) AddStopLoss(ctx context.Context, req LevelRequest) (model.Order, error) {
	return s.changeLevel(ctx, levelChange{ref: OrderRef{AccountID: req.AccountID, OrderID: req.OrderID, Actor: req.Actor}, kind: levelStopLoss, price: &req.Price})
}

func (s *Service) CancelStopLoss(ctx context.Context, ref OrderRef) (model.Order, error) {
	return s.changeLevel(ctx, levelChange{ref: ref, kind: levelStopLoss})
}

func (s *Service) AddTakeProfit(ctx context.Context, req LevelRequest) (model.Order, error) {
	return s.changeLevel(ctx, levelChange{ref: OrderRef{AccountID: req.AccountID, OrderID: req.OrderID, Actor: req.Actor}, kind: levelTakeProfit, price: &req.Price})
}

func (s *Service) CancelTakeProfit(ctx context.Context, ref OrderRef) (model.Order, error) {
	return s.changeLevel(ctx, levelChange{ref: ref, kind: levelTakeProfit})
}

func (s *Service) changeLevel(ctx context.Context, lc levelChange) (model.Order, error) {
	o, err := s.ownedOrder(ctx, lc.ref.AccountID, lc.ref.OrderID)
	if err != nil {
		return o, err
	}
	if o.Status != types.OrderStatusOpen && o.Status != types.OrderStatusPending {
		return o, apperr.InvalidState("order %s is %s, stop-loss and take-profit need an OPEN or PENDING order", o.ID, o.Status)
	}
	ac, err := s.loadAccount(ctx, lc.ref.AccountID)
	if err != nil {
		return o, err
	}
	if lc.price == nil {
		if lc.current(o) == nil {
			return o, apperr.Validation("order %s has no %s to cancel", o.ID, lc.kind)
		}
	} else {
		ref, err := s.levelReference(ctx, ac, o)
		if err != nil {
			return o, err
		}
		sl, tp := o.StopLoss, o.TakeProfit
		if lc.kind == levelStopLoss {
			sl = lc.price
		} else {
			tp = lc.price
		}
		if err := validateLevels(o.Side, ref, sl, tp); err != nil {
			return o, err
		}
	}
	lc.ref.Actor = actorOr(lc.ref.Actor, types.ActorUser)
	return s.routeFor(ac.group).setLevel(ctx, ac, o, lc)
}

// levelReference is the price new SL/TP levels are checked against: the
// trigger price for pending orders and the live reference price otherwise.
func (s *Service) levelReference(ctx context.Context, ac accountContext, o model.Order) (decimal.Decimal, error) {
	if o.Status == types.OrderStatusPending {
		return o.EntryPrice(), nil
	}
	inst, _, err := s.instrument(ctx, ac.account.Group, o.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	q, err := s.prices.Adjusted(o.Symbol, ac.account.Group, inst)
	if err != nil {
		return decimal.Zero, err
	}
	return margin.ReferencePrice(o.Side, q), nil
}

func (s *Service) Get(ctx context.Context, accountID, orderID string) (model.Order, error) {
	return s.ownedOrder(ctx, accountID, orderID)
}

// ListActive returns OPEN, PENDING and PROCESSING orders.
func (s *Service) ListActive(ctx context.Context, accountID string) ([]model.Order, error) {
	return s.store.ListOrders(ctx, accountID, types.OrderStatusOpen, types.OrderStatusPending, types.OrderStatusProcessing)
}

func (s *Service) History(ctx context.Context, accountID string) ([]model.Order, error) {
	return s.store.ListOrders(ctx, accountID, types.OrderStatusClosed, types.OrderStatusCancelled, types.OrderStatusRejected)
}

func (s *Service) Actions(ctx context.Context, accountID, orderID string) ([]model.OrderAction, error) {
	if _, err := s.ownedOrder(ctx, accountID, orderID); err != nil {
		return nil, err
	}
	return s.store.ListActions(ctx, orderID)
}

func (s *Service) action(o model.Order, from types.OrderStatus, tag types.ActionTag, actor types.Actor, correlationID, note string) model.OrderAction {
	return model.OrderAction{
		ID:            s.newID(),
		OrderID:       o.ID,
		AccountID:     o.AccountID,
		Actor:         actor,
		Action:        tag,
		FromStatus:    from,
		ToStatus:      o.Status,
		CorrelationID: correlationID,
		Note:          note,
		CreatedAt:     s.now().UTC(),
	}
}

// changed runs after a commit touching accountID.
func (s *Service) changed(ctx context.Context, o model.Order, tag types.ActionTag) {
	if s.invalid != nil {
		s.invalid.Invalidate(o.AccountID)
	}
	s.metrics.OrderTransition(ctx, string(tag), string(o.Status))
	s.bus.Publish(marketdata.Event{Type: marketdata.EventOrder, AccountID: o.AccountID, Data: o})
	ordersLog.WithField("order_id", o.ID).WithField("account_id", o.AccountID).
		WithField("action", tag).WithField("status", o.Status).Debug("order updated")
}

func actorOr(a, def types.Actor) types.Actor {
	if a == "" {
		return def
	}
	return a
}

func lostRace(o model.Order, expect types.OrderStatus) error {
	return apperr.InvalidState("order %s is no longer %s", o.ID, expect)
}

func wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
