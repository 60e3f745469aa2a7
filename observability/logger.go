// Package observability wires structured logging, tracing and metrics into
// a mailroute.Router through its hooks.
//
//	r, err := mailroute.New(routes,
//		observability.Logging(logger),
//		observability.Tracing(nil),
//		metricsOpt,
//	)
//
// Each option only observes. Dispatch results are never changed.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/bjaus/mailroute"
)

func compose(opts ...mailroute.Option) mailroute.Option {
	return func(r *mailroute.Router) {
		for _, opt := range opts {
			opt(r)
		}
	}
}

// MatchAttrs returns the log attributes identifying a dispatch.
func MatchAttrs(m *mailroute.Match) []any {
	return []any{
		slog.String("match_id", m.ID),
		slog.String("route", m.Route.Name),
		slog.String("recipient", m.Recipient),
	}
}

// Logging returns an option that logs every dispatch outcome to logger.
// Matches are logged at debug level, deliveries at info, rejections at warn
// and handler errors at error. A nil logger uses slog.Default().
func Logging(logger *slog.Logger) mailroute.Option {
	if logger == nil {
		logger = slog.Default()
	}

	return compose(
		mailroute.WithOnMatch(func(ctx context.Context, m *mailroute.Match) context.Context {
			logger.DebugContext(ctx, "route matched", MatchAttrs(m)...)
			return ctx
		}),
		mailroute.WithOnSuccess(func(ctx context.Context, m *mailroute.Match, d time.Duration) {
			logger.InfoContext(ctx, "message dispatched",
				append(MatchAttrs(m), slog.Float64("duration_ms", milliseconds(d)))...)
		}),
		mailroute.WithOnFailure(func(ctx context.Context, m *mailroute.Match, err error, d time.Duration) {
			logger.ErrorContext(ctx, "handler failed",
				append(MatchAttrs(m),
					slog.String("error", err.Error()),
					slog.Float64("duration_ms", milliseconds(d)),
				)...)
		}),
		mailroute.WithOnNoRoute(func(ctx context.Context, err *mailroute.NoRouteError) {
			attrs := []any{slog.String("recipients", err.Recipients)}
			if err.Err != nil {
				attrs = append(attrs, slog.String("error", err.Err.Error()))
			}
			logger.WarnContext(ctx, "no route", attrs...)
		}),
		mailroute.WithOnAuthFailure(func(ctx context.Context, m *mailroute.Match, err *mailroute.AuthError) {
			logger.WarnContext(ctx, "authentication failed",
				append(MatchAttrs(m), slog.String("reason", err.Reason))...)
		}),
	)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
