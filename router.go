package mailroute

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultRecipientHeaders are the headers consulted when no
// WithRecipientHeaders option is given.
var DefaultRecipientHeaders = []string{"To"}

// Option configures a Router.
type Option func(*Router)

// Router dispatches raw messages to the handler whose route pattern matches
// a recipient address.
//
// Usage:
//  1. Declare routes on a Group (or a literal Routes table)
//  2. Create a router with New; patterns are compiled once here
//  3. Call Dispatch (raw RFC 5322) or Process (possibly enveloped input)
//
// Router is immutable after New and safe for concurrent use. Every dispatch
// gets its own Match; nothing from one call is visible to the next.
type Router struct {
	registry  *Registry
	extractor HeaderExtractor
	headers   []string
	newID     func() string
	hooks     hooks

	defaultInspector Inspector
	defaultEnvelopes []Envelope
	groups           []envelopeGroup

	// Adaptive ordering: try the last envelope that matched first
	lastEnvelope atomic.Value // stores string
}

// envelopeGroup holds envelopes that share an inspector.
type envelopeGroup struct {
	inspector Inspector
	envelopes []Envelope
}

// New builds the route registry of g and returns a Router for it.
//
// Routes without a pattern are skipped. New fails with an
// *InvalidPatternError if any declared pattern does not compile.
//
// Example:
//
//	r, err := mailroute.New(mailroute.Routes{
//	    {Name: "folders", Pattern: `(?P<user>[^-]*)-(?P<folder>.*)@.*`, Handler: folders},
//	    {Name: "bcoe", Pattern: `bcoe@.*`, Handler: bcoe, Authenticator: dkim.New()},
//	}, mailroute.WithOnNoRoute(bounce))
func New(g Group, opts ...Option) (*Router, error) {
	reg, err := NewRegistry(g.Routes()...)
	if err != nil {
		return nil, err
	}

	r := &Router{
		registry:         reg,
		extractor:        MIMEHeaders(),
		headers:          DefaultRecipientHeaders,
		newID:            newULID,
		defaultInspector: JSONInspector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func newULID() string {
	return ulid.Make().String()
}

// WithRecipientHeaders sets the headers whose addresses are matched, in
// priority order. Addresses of the first header are scanned before those of
// the next.
func WithRecipientHeaders(names ...string) Option {
	return func(r *Router) {
		r.headers = names
	}
}

// WithHeaderExtractor replaces the default MIMEHeaders extractor.
func WithHeaderExtractor(x HeaderExtractor) Option {
	return func(r *Router) {
		r.extractor = x
	}
}

// WithIDGenerator replaces the ULID generator used for Match.ID.
func WithIDGenerator(fn func() string) Option {
	return func(r *Router) {
		r.newID = fn
	}
}

// WithInspector sets the inspector used for envelopes added with WithEnvelope.
func WithInspector(i Inspector) Option {
	return func(r *Router) {
		r.defaultInspector = i
	}
}

// WithEnvelope registers envelopes with the default inspector. They are
// matched in registration order.
func WithEnvelope(envs ...Envelope) Option {
	return func(r *Router) {
		r.defaultEnvelopes = append(r.defaultEnvelopes, envs...)
	}
}

// WithEnvelopeGroup registers envelopes that need their own inspector.
// Groups are checked after the default envelopes, in registration order.
func WithEnvelopeGroup(inspector Inspector, envs ...Envelope) Option {
	return func(r *Router) {
		r.groups = append(r.groups, envelopeGroup{inspector: inspector, envelopes: envs})
	}
}

// Registry returns the router's compiled routes.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Dispatch routes one raw RFC 5322 message.
//
// The flow:
//  1. Read the recipient headers and split them into bare addresses
//  2. Scan addresses in header order; for each, try routes in declaration
//     order; the first match wins
//  3. Run the winning route's Authenticator, if any, on the whole message
//  4. Bind named capture groups into Match.Fields
//  5. Invoke the handler
//
// Dispatch returns nil after the handler succeeded, a *NoRouteError when no
// address matched, an *AuthError when authentication rejected the message
// (the handler is not invoked), or the handler's own error unmodified.
// Nothing is retried.
func (r *Router) Dispatch(ctx context.Context, raw []byte) error {
	values, extractErr := r.recipients(raw)

	entry, addr, loc := r.find(values)
	if entry == nil {
		err := &NoRouteError{Recipients: strings.Join(values, ", "), Err: extractErr}
		r.callOnNoRoute(ctx, err)
		return err
	}

	m := &Match{
		ID:         r.newID(),
		Route:      entry.Route,
		Recipient:  addr,
		Recipients: strings.Join(values, ", "),
		Message:    raw,
	}

	ctx = r.callOnMatch(ctx, m)

	if auth := entry.Authenticator; auth != nil {
		if err := auth.Verify(ctx, raw); err != nil {
			aerr := &AuthError{
				Route:     entry.Name,
				Recipient: addr,
				Reason:    err.Error(),
				Err:       err,
			}
			r.callOnAuthFailure(ctx, m, aerr)
			return aerr
		}
	}

	m.Fields = bindFields(entry.re.SubexpNames(), addr, loc)

	r.callOnDispatch(ctx, m)

	start := time.Now()
	err := entry.Handler.Handle(ctx, m)
	duration := time.Since(start)

	if err != nil {
		r.callOnFailure(ctx, m, err, duration)
	} else {
		r.callOnSuccess(ctx, m, duration)
	}
	return err
}

// Process unwraps raw with the first matching envelope and dispatches the
// message inside. Input that no envelope recognizes is dispatched as-is, so
// routers without envelopes behave exactly like Dispatch.
//
// Example:
//
//	// In an SQS consumer subscribed to an SES receipt topic
//	func (s *Subscriber) ProcessMessage(ctx context.Context, msg sqs.Message) error {
//	    return s.router.Process(ctx, []byte(*msg.Body))
//	}
func (r *Router) Process(ctx context.Context, raw []byte) error {
	msg, err := r.unwrap(raw)
	if err != nil {
		return err
	}
	return r.Dispatch(ctx, msg)
}

// recipients returns the values of the configured recipient headers that are
// present. A non-nil error means a header could not be read at all.
func (r *Router) recipients(raw []byte) ([]string, error) {
	var values []string
	for _, name := range r.headers {
		v, err := r.extractor.Extract(raw, name)
		switch {
		case err == nil:
			values = append(values, v)
		case isNotFound(err):
			continue
		default:
			return values, err
		}
	}
	return values, nil
}

// find scans addresses left to right and routes top to bottom.
func (r *Router) find(values []string) (*Entry, string, []int) {
	for _, v := range values {
		for addr := range Addresses(v) {
			for _, e := range r.registry.entries {
				if loc := e.match(addr); loc != nil {
					return e, addr, loc
				}
			}
		}
	}
	return nil, "", nil
}

// unwrap finds an envelope for raw and returns the message it carries.
func (r *Router) unwrap(raw []byte) ([]byte, error) {
	if len(r.defaultEnvelopes) == 0 && len(r.groups) == 0 {
		return raw, nil
	}

	env := r.matchEnvelope(raw)
	if env == nil {
		return raw, nil
	}

	msg, err := env.Unwrap(raw)
	if err != nil {
		return nil, &EnvelopeError{Envelope: env.Name(), Err: err}
	}
	return msg, nil
}

// viewCache caches inspected views per inspector so that raw input is
// inspected at most once per inspector while envelopes are matched.
type viewCache struct {
	raw   []byte
	views map[Inspector]viewResult
}

type viewResult struct {
	view View
	ok   bool
}

func newViewCache(raw []byte) *viewCache {
	return &viewCache{
		raw:   raw,
		views: make(map[Inspector]viewResult),
	}
}

func (c *viewCache) get(insp Inspector) (View, bool) {
	if result, ok := c.views[insp]; ok {
		return result.view, result.ok
	}

	view, err := insp.Inspect(c.raw)
	if err != nil {
		c.views[insp] = viewResult{ok: false}
		return nil, false
	}

	c.views[insp] = viewResult{view: view, ok: true}
	return view, true
}

// matchEnvelope tries the last successful envelope first, then all of them.
func (r *Router) matchEnvelope(raw []byte) Envelope {
	cache := newViewCache(raw)

	if v := r.lastEnvelope.Load(); v != nil {
		if name, ok := v.(string); ok && name != "" {
			if env := r.scanEnvelopes(cache, name); env != nil {
				return env
			}
		}
	}

	env := r.scanEnvelopes(cache, "")
	if env != nil {
		r.lastEnvelope.Store(env.Name())
	}
	return env
}

// scanEnvelopes returns the first envelope whose discriminator matches. When
// name is set only envelopes with that name are considered.
func (r *Router) scanEnvelopes(cache *viewCache, name string) Envelope {
	if len(r.defaultEnvelopes) > 0 {
		if env := matchIn(cache, r.defaultInspector, r.defaultEnvelopes, name); env != nil {
			return env
		}
	}
	for _, g := range r.groups {
		if env := matchIn(cache, g.inspector, g.envelopes, name); env != nil {
			return env
		}
	}
	return nil
}

func matchIn(cache *viewCache, insp Inspector, envs []Envelope, name string) Envelope {
	view, ok := cache.get(insp)
	if !ok {
		return nil
	}
	for _, env := range envs {
		if name != "" && env.Name() != name {
			continue
		}
		if env.Discriminator().Match(view) {
			return env
		}
	}
	return nil
}
