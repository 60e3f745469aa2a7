package mailroute

import (
	"context"
	"time"
)

// OnMatchFunc is called when a route matched, before authentication.
// Use this to enrich the context with logging fields or trace spans.
// The returned context is used for the rest of the dispatch.
type OnMatchFunc func(ctx context.Context, m *Match) context.Context

// OnDispatchFunc is called after authentication, just before the handler runs.
type OnDispatchFunc func(ctx context.Context, m *Match)

// OnSuccessFunc is called after the handler returned nil.
type OnSuccessFunc func(ctx context.Context, m *Match, duration time.Duration)

// OnFailureFunc is called after the handler returned an error.
type OnFailureFunc func(ctx context.Context, m *Match, err error, duration time.Duration)

// OnNoRouteFunc is called when no recipient matched any route.
type OnNoRouteFunc func(ctx context.Context, err *NoRouteError)

// OnAuthFailureFunc is called when the matched route's authenticator
// rejected the message.
type OnAuthFailureFunc func(ctx context.Context, m *Match, err *AuthError)

// hooks holds all configured hook functions.
type hooks struct {
	onMatch       []OnMatchFunc
	onDispatch    []OnDispatchFunc
	onSuccess     []OnSuccessFunc
	onFailure     []OnFailureFunc
	onNoRoute     []OnNoRouteFunc
	onAuthFailure []OnAuthFailureFunc
}

// Hooks observe dispatch outcomes; they cannot turn a failure into a success.
// Every NoRouteError, AuthError and handler error still reaches the caller.

// WithOnMatch adds a hook called when a route matched. Multiple hooks are
// called in order, with context chaining through each.
//
// Example:
//
//	mailroute.WithOnMatch(func(ctx context.Context, m *mailroute.Match) context.Context {
//	    return logx.WithCtx(ctx, slog.String("route", m.Route.Name))
//	})
func WithOnMatch(fn OnMatchFunc) Option {
	return func(r *Router) {
		r.hooks.onMatch = append(r.hooks.onMatch, fn)
	}
}

// WithOnDispatch adds a hook called just before the handler executes.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(r *Router) {
		r.hooks.onDispatch = append(r.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after the handler completes successfully.
//
// Example:
//
//	mailroute.WithOnSuccess(func(ctx context.Context, m *mailroute.Match, d time.Duration) {
//	    metrics.Timing("mailroute.success", d, "route:"+m.Route.Name)
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(r *Router) {
		r.hooks.onSuccess = append(r.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after the handler fails.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(r *Router) {
		r.hooks.onFailure = append(r.hooks.onFailure, fn)
	}
}

// WithOnNoRoute adds a hook called when no route matched.
//
// Example:
//
//	mailroute.WithOnNoRoute(func(ctx context.Context, err *mailroute.NoRouteError) {
//	    logger.Warn("unroutable message", "to", err.Recipients)
//	})
func WithOnNoRoute(fn OnNoRouteFunc) Option {
	return func(r *Router) {
		r.hooks.onNoRoute = append(r.hooks.onNoRoute, fn)
	}
}

// WithOnAuthFailure adds a hook called when sender authentication failed.
func WithOnAuthFailure(fn OnAuthFailureFunc) Option {
	return func(r *Router) {
		r.hooks.onAuthFailure = append(r.hooks.onAuthFailure, fn)
	}
}

// OnDispatchHook is an optional interface that handlers can implement to add
// handler-specific pre-dispatch behavior. Called after global OnDispatch hooks.
type OnDispatchHook interface {
	OnDispatch(ctx context.Context, m *Match)
}

// OnSuccessHook is an optional interface that handlers can implement to add
// behavior on success. Called after global OnSuccess hooks.
type OnSuccessHook interface {
	OnSuccess(ctx context.Context, m *Match, duration time.Duration)
}

// OnFailureHook is an optional interface that handlers can implement to add
// behavior on failure. Called after global OnFailure hooks.
type OnFailureHook interface {
	OnFailure(ctx context.Context, m *Match, err error, duration time.Duration)
}

// OnAuthFailureHook is an optional interface that handlers can implement to
// learn that a message for their route was rejected. Called after global
// OnAuthFailure hooks. The handler's Handle method is not called.
type OnAuthFailureHook interface {
	OnAuthFailure(ctx context.Context, m *Match, err *AuthError)
}

func (r *Router) callOnMatch(ctx context.Context, m *Match) context.Context {
	for _, fn := range r.hooks.onMatch {
		ctx = fn(ctx, m)
	}
	return ctx
}

func (r *Router) callOnDispatch(ctx context.Context, m *Match) {
	for _, fn := range r.hooks.onDispatch {
		fn(ctx, m)
	}
	if h, ok := m.Route.Handler.(OnDispatchHook); ok {
		h.OnDispatch(ctx, m)
	}
}

func (r *Router) callOnSuccess(ctx context.Context, m *Match, d time.Duration) {
	for _, fn := range r.hooks.onSuccess {
		fn(ctx, m, d)
	}
	if h, ok := m.Route.Handler.(OnSuccessHook); ok {
		h.OnSuccess(ctx, m, d)
	}
}

func (r *Router) callOnFailure(ctx context.Context, m *Match, err error, d time.Duration) {
	for _, fn := range r.hooks.onFailure {
		fn(ctx, m, err, d)
	}
	if h, ok := m.Route.Handler.(OnFailureHook); ok {
		h.OnFailure(ctx, m, err, d)
	}
}

func (r *Router) callOnNoRoute(ctx context.Context, err *NoRouteError) {
	for _, fn := range r.hooks.onNoRoute {
		fn(ctx, err)
	}
}

func (r *Router) callOnAuthFailure(ctx context.Context, m *Match, err *AuthError) {
	for _, fn := range r.hooks.onAuthFailure {
		fn(ctx, m, err)
	}
	if h, ok := m.Route.Handler.(OnAuthFailureHook); ok {
		h.OnAuthFailure(ctx, m, err)
	}
}
