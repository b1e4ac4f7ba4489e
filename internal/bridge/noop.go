package bridge

import (
	"context"
	"errors"

	"lv-tradecore/internal/apperr"
)

var errNotConfigured = errors.New("bridge adapter not configured")

type DisabledAdapter struct{}

func NewDisabledAdapter() *DisabledAdapter {
	return &DisabledAdapter{}
}

func (a *DisabledAdapter) Send(ctx context.Context, intent Intent) error {
	return apperr.ExternalBridge(errNotConfigured, "send %s intent for order %s", intent.Type, intent.OrderID)
}
