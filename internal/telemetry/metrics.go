package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics groups the engine counters. Without an SDK meter provider installed
// the global provider is a no-op.
type Metrics struct {
	orderTransitions metric.Int64Counter
	triggers         metric.Int64Counter
	cutoffs          metric.Int64Counter
	bridgeFailures   metric.Int64Counter
}

func New() (*Metrics, error) {
	meter := otel.Meter("lv-tradecore")
	transitions, err := meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Order status transitions by action"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	triggers, err := meter.Int64Counter("order_triggers_total",
		metric.WithDescription("Pending activations and stop-loss/take-profit closes"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	cutoffs, err := meter.Int64Counter("account_cutoffs_total",
		metric.WithDescription("Forced liquidations by account class"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("bridge_send_failures_total",
		metric.WithDescription("Bridge intents that exhausted retries"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{orderTransitions: transitions, triggers: triggers, cutoffs: cutoffs, bridgeFailures: failures}, nil
}

// Nop returns metrics backed by the global provider, ignoring setup errors.
func Nop() *Metrics {
	m, err := New()
	if err != nil {
		return &Metrics{}
	}
	return m
}

func (m *Metrics) OrderTransition(ctx context.Context, action, status string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action), attribute.String("status", status)))
}

func (m *Metrics) Trigger(ctx context.Context, kind string) {
	if m == nil || m.triggers == nil {
		return
	}
	m.triggers.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) Cutoff(ctx context.Context, class string) {
	if m == nil || m.cutoffs == nil {
		return
	}
	m.cutoffs.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

func (m *Metrics) BridgeFailure(ctx context.Context, intent string) {
	if m == nil || m.bridgeFailures == nil {
		return
	}
	m.bridgeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}
