package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bjaus/mailroute"
)

// Outcomes recorded on the dispatches counter.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeNoRoute     = "no_route"
	OutcomeAuthFailure = "auth_failure"
)

type instruments struct {
	dispatches metric.Int64Counter
	latency    metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)

	dispatches, err := meter.Int64Counter("mailroute.dispatches",
		metric.WithDescription("Number of dispatched messages by outcome"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("mailroute.handler.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &instruments{dispatches: dispatches, latency: latency}, nil
}

func (in *instruments) count(ctx context.Context, outcome, route string) {
	in.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("route", route),
	))
}

func (in *instruments) handled(ctx context.Context, m *mailroute.Match, outcome string, d time.Duration) {
	in.count(ctx, outcome, m.Route.Name)
	in.latency.Record(ctx, milliseconds(d), metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("route", m.Route.Name),
	))
}

// Metrics returns an option that counts dispatches by outcome and route and
// records handler latency. Unroutable messages are counted with an empty
// route. A nil provider uses the global one.
func Metrics(mp metric.MeterProvider) (mailroute.Option, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	in, err := newInstruments(mp)
	if err != nil {
		return nil, err
	}

	return compose(
		mailroute.WithOnSuccess(func(ctx context.Context, m *mailroute.Match, d time.Duration) {
			in.handled(ctx, m, OutcomeSuccess, d)
		}),
		mailroute.WithOnFailure(func(ctx context.Context, m *mailroute.Match, err error, d time.Duration) {
			in.handled(ctx, m, OutcomeFailure, d)
		}),
		mailroute.WithOnNoRoute(func(ctx context.Context, err *mailroute.NoRouteError) {
			in.count(ctx, OutcomeNoRoute, "")
		}),
		mailroute.WithOnAuthFailure(func(ctx context.Context, m *mailroute.Match, err *mailroute.AuthError) {
			in.count(ctx, OutcomeAuthFailure, m.Route.Name)
		}),
	), nil
}
