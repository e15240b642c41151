package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "authsession/session"

// Metrics counts session operations by outcome.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

var instruments = map[string]string{
	"login":   "Login attempts by outcome.",
	"signup":  "Signup attempts by outcome.",
	"refresh": "Token refresh attempts by outcome.",
	"logout":  "Logouts by reason.",
	"restore": "Startup session restorations by outcome.",
}

// NewMetrics registers the counters on provider. A nil provider uses a no-op meter.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &Metrics{counters: make(map[string]metric.Int64Counter, len(instruments))}
	for op, desc := range instruments {
		c, err := meter.Int64Counter("authsession."+op, metric.WithDescription(desc), metric.WithUnit("{operation}"))
		if err != nil {
			return nil, err
		}
		m.counters[op] = c
	}
	return m, nil
}

// RecordOutcome increments the counter for op with the given outcome label. Unknown ops are ignored.
func (m *Metrics) RecordOutcome(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	c, ok := m.counters[op]
	if !ok {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
