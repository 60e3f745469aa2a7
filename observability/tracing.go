package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/mailroute"
)

const instrumentationName = "github.com/bjaus/mailroute"

// Tracing returns an option that opens a span for every matched dispatch.
// The span starts when a route matches and ends after authentication fails
// or the handler returns. Unroutable messages are recorded as an event on
// the caller's span. A nil provider uses the global one.
func Tracing(tp trace.TracerProvider) mailroute.Option {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)

	return compose(
		mailroute.WithOnMatch(func(ctx context.Context, m *mailroute.Match) context.Context {
			ctx, _ = tracer.Start(ctx, "mailroute.dispatch",
				trace.WithAttributes(
					attribute.String("mailroute.match_id", m.ID),
					attribute.String("mailroute.route", m.Route.Name),
					attribute.String("mailroute.recipient", m.Recipient),
				),
				trace.WithSpanKind(trace.SpanKindConsumer),
			)
			return ctx
		}),
		mailroute.WithOnSuccess(func(ctx context.Context, m *mailroute.Match, d time.Duration) {
			endSpan(ctx, nil)
		}),
		mailroute.WithOnFailure(func(ctx context.Context, m *mailroute.Match, err error, d time.Duration) {
			endSpan(ctx, err)
		}),
		mailroute.WithOnAuthFailure(func(ctx context.Context, m *mailroute.Match, err *mailroute.AuthError) {
			trace.SpanFromContext(ctx).AddEvent("mailroute.auth_failure",
				trace.WithAttributes(attribute.String("mailroute.reason", err.Reason)))
			endSpan(ctx, err)
		}),
		mailroute.WithOnNoRoute(func(ctx context.Context, err *mailroute.NoRouteError) {
			span := trace.SpanFromContext(ctx)
			if !span.IsRecording() {
				return
			}
			span.AddEvent("mailroute.no_route",
				trace.WithAttributes(attribute.String("mailroute.recipients", err.Recipients)))
		}),
	)
}

func endSpan(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
