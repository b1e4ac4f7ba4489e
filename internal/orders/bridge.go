package orders

import (
	"context"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/bridge"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"github.com/sirupsen/logrus"
)

type bridgeRoute struct {
	s *Service
}

func (r bridgeRoute) intent(ac accountContext, o model.Order, typ bridge.IntentType, cid string) bridge.Intent {
	return bridge.Intent{
		Type:          typ,
		CorrelationID: cid,
		OrderID:       o.ID,
		AccountID:     o.AccountID,
		Group:         ac.account.Group,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Kind:          string(o.Kind),
		Quantity:      o.Quantity,
		Price:         o.RequestedPrice,
		StopLoss:      o.StopLoss,
		TakeProfit:    o.TakeProfit,
	}
}

func (r bridgeRoute) place(ctx context.Context, ac accountContext, o model.Order, actor types.Actor) (model.Order, error) {
	s := r.s
	o.Status = types.OrderStatusProcessing
	o.CorrelationID = s.newID()
	err := s.store.WithAccountLock(ctx, o.AccountID, func(tx store.Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.AppendAction(ctx, s.action(o, "", types.ActionPlace, actor, o.CorrelationID, ""))
	})
	if err != nil {
		return model.Order{}, wrapf(err, "place %s %s", o.Side, o.Symbol)
	}
	s.changed(ctx, o, types.ActionPlace)
	return o, s.send(ctx, r.intent(ac, o, bridge.IntentPlace, o.CorrelationID))
}

// record stores a fresh correlation id on the order via set, while the
// order is still in expect, and logs the request in its history.
func (r bridgeRoute) record(ctx context.Context, o model.Order, expect types.OrderStatus, tag types.ActionTag, actor types.Actor, note string, set func(*model.Order, string)) (model.Order, string, error) {
	s := r.s
	cid := s.newID()
	var out model.Order
	err := s.store.WithAccountLock(ctx, o.AccountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		set(&cur, cid)
		cur.UpdatedAt = s.now().UTC()
		ok, err := tx.UpdateOrder(ctx, cur, expect)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(cur, expect)
		}
		out = cur
		return tx.AppendAction(ctx, s.action(cur, expect, tag, actor, cid, note))
	})
	return out, cid, err
}

func (r bridgeRoute) modify(ctx context.Context, ac accountContext, o model.Order, req ModifyRequest) (model.Order, error) {
	out, cid, err := r.record(ctx, o, types.OrderStatusPending, types.ActionModify, actorOr(req.Actor, types.ActorUser), "",
		func(cur *model.Order, cid string) { cur.ModifyID = cid })
	if err != nil {
		return model.Order{}, err
	}
	in := r.intent(ac, out, bridge.IntentModify, cid)
	if req.Price != nil {
		in.Price = req.Price
	}
	if req.Quantity != nil {
		in.Quantity = *req.Quantity
	}
	return out, r.s.send(ctx, in)
}

func (r bridgeRoute) cancel(ctx context.Context, ac accountContext, o model.Order, actor types.Actor) (model.Order, error) {
	out, cid, err := r.record(ctx, o, types.OrderStatusPending, types.ActionCancel, actor, "",
		func(cur *model.Order, cid string) { cur.CancelID = cid })
	if err != nil {
		return model.Order{}, err
	}
	return out, r.s.send(ctx, r.intent(ac, out, bridge.IntentCancel, cid))
}

func (r bridgeRoute) close(ctx context.Context, ac accountContext, o model.Order, actor types.Actor, tag types.ActionTag) (model.Order, error) {
	if o.CloseID != "" {
		return o, apperr.InvalidState("close of order %s already requested", o.ID)
	}
	out, cid, err := r.record(ctx, o, types.OrderStatusOpen, types.ActionCloseRequest, actor, string(tag),
		func(cur *model.Order, cid string) { cur.CloseID = cid })
	if err != nil {
		return model.Order{}, err
	}
	in := r.intent(ac, out, bridge.IntentClose, cid)
	if tag != types.ActionClose {
		in.Reason = string(tag)
	}
	return out, r.s.send(ctx, in)
}

func (r bridgeRoute) setLevel(ctx context.Context, ac accountContext, o model.Order, lc levelChange) (model.Order, error) {
	var typ bridge.IntentType
	var set func(*model.Order, string)
	switch lc.tag() {
	case types.ActionStopLossAdd:
		typ, set = bridge.IntentStopLossAdd, func(cur *model.Order, cid string) { cur.StopLossID = cid }
	case types.ActionStopLossCancel:
		typ, set = bridge.IntentStopLossCancel, func(cur *model.Order, cid string) { cur.StopLossCancelID = cid }
	case types.ActionTakeProfitAdd:
		typ, set = bridge.IntentTakeProfitAdd, func(cur *model.Order, cid string) { cur.TakeProfitID = cid }
	default:
		typ, set = bridge.IntentTakeProfitCancel, func(cur *model.Order, cid string) { cur.TakeProfitCancelID = cid }
	}
	out, cid, err := r.record(ctx, o, o.Status, lc.tag(), lc.ref.Actor, "", set)
	if err != nil {
		return model.Order{}, err
	}
	in := r.intent(ac, out, typ, cid)
	if lc.kind == levelStopLoss {
		in.StopLoss = lc.price
	} else {
		in.TakeProfit = lc.price
	}
	return out, r.s.send(ctx, in)
}

func (s *Service) send(ctx context.Context, in bridge.Intent) error {
	if err := s.bridge.Send(ctx, in); err != nil {
		s.metrics.BridgeFailure(ctx, string(in.Type))
		return err
	}
	ordersLog.WithFields(logrus.Fields{
		"intent":         in.Type,
		"order_id":       in.OrderID,
		"correlation_id": in.CorrelationID,
	}).Info("intent sent to bridge")
	return nil
}

// ForceClose closes o on behalf of the risk engine. Locally routed accounts
// close immediately. Bridge-routed accounts get one close request per
// order; the order stays OPEN until the provider confirms.
func (s *Service) ForceClose(ctx context.Context, o model.Order, tag types.ActionTag) (model.Order, error) {
	ac, err := s.loadAccount(ctx, o.AccountID)
	if err != nil {
		return o, err
	}
	if ac.group.Routing == types.RoutingBridge {
		if o.CloseID != "" {
			return o, nil
		}
		return bridgeRoute{s: s}.close(ctx, ac, o, types.ActorSystem, tag)
	}
	return s.CloseAt(ctx, o.AccountID, o.ID, tag)
}

type matchedField int

const (
	fieldNone matchedField = iota
	fieldPlace
	fieldCancel
	fieldClose
	fieldModify
	fieldStopLoss
	fieldStopLossCancel
	fieldTakeProfit
	fieldTakeProfitCancel
)

func matchCorrelation(o model.Order, cid string) matchedField {
	switch cid {
	case "":
		return fieldNone
	case o.CorrelationID:
		return fieldPlace
	case o.CancelID:
		return fieldCancel
	case o.CloseID:
		return fieldClose
	case o.ModifyID:
		return fieldModify
	case o.StopLossID:
		return fieldStopLoss
	case o.StopLossCancelID:
		return fieldStopLossCancel
	case o.TakeProfitID:
		return fieldTakeProfit
	case o.TakeProfitCancelID:
		return fieldTakeProfitCancel
	}
	return fieldNone
}

// ApplyConfirmation applies a provider outcome to the order that issued its
// correlation id. Outcomes that no longer fit the order's state are ignored,
// so redelivered confirmations are harmless.
func (s *Service) ApplyConfirmation(ctx context.Context, c bridge.Confirmation) (model.Order, error) {
	found, err := s.store.FindOrderByCorrelationID(ctx, c.CorrelationID)
	if err != nil {
		return found, err
	}
	var out model.Order
	var tag types.ActionTag
	err = s.store.WithAccountLock(ctx, found.AccountID, func(tx store.Tx) error {
		cur, err := tx.GetOrder(ctx, found.ID)
		if err != nil {
			return err
		}
		out = cur
		next, applied, err := s.confirmLocked(ctx, tx, cur, c)
		if err != nil || applied == "" {
			return err
		}
		out, tag = next, applied
		return nil
	})
	if err != nil {
		return model.Order{}, wrapf(err, "apply confirmation %s", c.CorrelationID)
	}
	if tag == "" {
		ordersLog.WithFields(logrus.Fields{
			"order_id":       out.ID,
			"correlation_id": c.CorrelationID,
			"status":         c.Status,
			"order_status":   out.Status,
		}).Info("confirmation ignored")
		return out, nil
	}
	s.changed(ctx, out, tag)
	return out, nil
}

// confirmLocked returns the updated order and the action tag it recorded,
// or an empty tag when the confirmation did not apply.
func (s *Service) confirmLocked(ctx context.Context, tx store.Tx, cur model.Order, c bridge.Confirmation) (model.Order, types.ActionTag, error) {
	field := matchCorrelation(cur, c.CorrelationID)
	if field == fieldNone {
		return cur, "", apperr.Consistency("correlation id %s does not belong to order %s", c.CorrelationID, cur.ID)
	}
	from := cur.Status

	// A provider-side close (its own SL/TP or stop-out) may arrive on any id.
	if c.Status == bridge.ConfirmClosed {
		if from != types.OrderStatusOpen {
			return cur, "", nil
		}
		closed, err := s.closeLocked(ctx, tx, cur, c.Price, types.ActionBridgeConfirm, types.ActorBridge, c.CorrelationID)
		return closed, types.ActionBridgeConfirm, err
	}

	switch field {
	case fieldPlace:
		switch {
		case c.Status == bridge.ConfirmOpen && (from == types.OrderStatusProcessing || from == types.OrderStatusPending):
			opened, err := s.openLocked(ctx, tx, cur, c.Price, false)
			if err != nil {
				return cur, "", err
			}
			return s.commitConfirm(ctx, tx, opened, from, types.ActionBridgeConfirm, c)
		case c.Status == bridge.ConfirmPending && from == types.OrderStatusProcessing:
			cur.Status = types.OrderStatusPending
			return s.commitConfirm(ctx, tx, cur, from, types.ActionBridgeConfirm, c)
		case c.Status == bridge.ConfirmRejected && from == types.OrderStatusProcessing:
			cur.Status = types.OrderStatusRejected
			cur.Message = c.Message
			return s.commitConfirm(ctx, tx, cur, from, types.ActionBridgeReject, c)
		case c.Status == bridge.ConfirmCancelled && (from == types.OrderStatusProcessing || from == types.OrderStatusPending):
			cur.Status = types.OrderStatusCancelled
			cur.Message = c.Message
			return s.commitConfirm(ctx, tx, cur, from, types.ActionBridgeReject, c)
		}
	case fieldCancel:
		if c.Status == bridge.ConfirmCancelled && (from == types.OrderStatusPending || from == types.OrderStatusProcessing) {
			cur.Status = types.OrderStatusCancelled
			cur.Message = c.Message
			return s.commitConfirm(ctx, tx, cur, from, types.ActionCancel, c)
		}
	case fieldClose:
		if c.Status == bridge.ConfirmRejected && from == types.OrderStatusOpen {
			cur.CloseID = ""
			cur.Message = c.Message
			return s.commitConfirm(ctx, tx, cur, from, types.ActionBridgeReject, c)
		}
	case fieldModify:
		if c.Status == bridge.ConfirmAccepted && from == types.OrderStatusPending {
			if c.Price != nil {
				cur.RequestedPrice = c.Price
			}
			if c.Quantity != nil {
				cur.Quantity = *c.Quantity
			}
			return s.commitConfirm(ctx, tx, cur, from, types.ActionModify, c)
		}
	case fieldStopLoss, fieldStopLossCancel, fieldTakeProfit, fieldTakeProfitCancel:
		if c.Status != bridge.ConfirmAccepted || (from != types.OrderStatusOpen && from != types.OrderStatusPending) {
			return cur, "", nil
		}
		var tag types.ActionTag
		switch field {
		case fieldStopLoss:
			cur.StopLoss, tag = c.Price, types.ActionStopLossAdd
		case fieldStopLossCancel:
			cur.StopLoss, tag = nil, types.ActionStopLossCancel
		case fieldTakeProfit:
			cur.TakeProfit, tag = c.Price, types.ActionTakeProfitAdd
		default:
			cur.TakeProfit, tag = nil, types.ActionTakeProfitCancel
		}
		return s.commitConfirm(ctx, tx, cur, from, tag, c)
	}
	return cur, "", nil
}

func (s *Service) commitConfirm(ctx context.Context, tx store.Tx, o model.Order, from types.OrderStatus, tag types.ActionTag, c bridge.Confirmation) (model.Order, types.ActionTag, error) {
	o.UpdatedAt = s.now().UTC()
	ok, err := tx.UpdateOrder(ctx, o, from)
	if err != nil {
		return o, "", err
	}
	if !ok {
		return o, "", lostRace(o, from)
	}
	return o, tag, tx.AppendAction(ctx, s.action(o, from, tag, types.ActorBridge, c.CorrelationID, c.Message))
}
