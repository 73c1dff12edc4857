// Package metrics holds the OTel instruments counting guard decisions and cache invalidations.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "org-access-core"

// Outcomes recorded for guard decisions.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// Instruments groups the counters. A nil *Instruments records nothing.
type Instruments struct {
	decisions     metric.Int64Counter
	invalidations metric.Int64Counter
	dropped       metric.Int64Counter
}

// New creates the instruments on provider's meter. A nil provider uses the global MeterProvider.
func New(provider metric.MeterProvider) (*Instruments, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	decisions, err := meter.Int64Counter("authz.decisions",
		metric.WithDescription("Authorization guard decisions by outcome and reason."),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, err
	}
	invalidations, err := meter.Int64Counter("cache.invalidations.published",
		metric.WithDescription("Cache invalidation events published by mutation."),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("cache.invalidations.dropped",
		metric.WithDescription("Invalidation events replaced by a reset because a subscriber lagged."),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	return &Instruments{decisions: decisions, invalidations: invalidations, dropped: dropped}, nil
}

// RecordDecision counts one guard decision. reason is empty for allowed decisions.
func (i *Instruments) RecordDecision(ctx context.Context, outcome, reason string) {
	if i == nil {
		return
	}
	i.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}

// RecordInvalidation counts one published invalidation event.
func (i *Instruments) RecordInvalidation(ctx context.Context, mutation string) {
	if i == nil {
		return
	}
	i.invalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("mutation", mutation)))
}

// RecordDropped counts events a lagging subscriber missed.
func (i *Instruments) RecordDropped(ctx context.Context) {
	if i == nil {
		return
	}
	i.dropped.Add(ctx, 1)
}
