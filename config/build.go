package config

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/bjaus/mailroute"
	"github.com/bjaus/mailroute/dkim"
	"github.com/bjaus/mailroute/dns"
	"github.com/bjaus/mailroute/spf"
)

// BuildOption configures Build.
type BuildOption func(*builder)

// WithResolver overrides the resolver built from the DNS section.
func WithResolver(r dns.HostResolver) BuildOption {
	return func(b *builder) {
		b.resolver = r
	}
}

// WithRouterOptions passes extra options to mailroute.New, after the ones
// derived from the configuration.
func WithRouterOptions(opts ...mailroute.Option) BuildOption {
	return func(b *builder) {
		b.routerOpts = append(b.routerOpts, opts...)
	}
}

type builder struct {
	cfg        Config
	handlers   map[string]mailroute.Handler
	resolver   dns.HostResolver
	routerOpts []mailroute.Option

	auths    map[string]mailroute.Authenticator
	visiting map[string]bool
}

// Build resolves handler and authenticator names and returns the router.
func (c Config) Build(handlers map[string]mailroute.Handler, opts ...BuildOption) (*mailroute.Router, error) {
	b := &builder{
		cfg:      c,
		handlers: handlers,
		auths:    make(map[string]mailroute.Authenticator),
		visiting: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}

	routes := make(mailroute.Routes, 0, len(c.Routes))
	for i, rc := range c.Routes {
		route, err := b.route(rc)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, rc.Name, err)
		}
		routes = append(routes, route)
	}

	// Unreferenced definitions are still checked.
	for _, name := range slices.Sorted(maps.Keys(c.Authenticators)) {
		if _, err := b.authenticator(name); err != nil {
			return nil, err
		}
	}

	var routerOpts []mailroute.Option
	if len(c.RecipientHeaders) > 0 {
		routerOpts = append(routerOpts, mailroute.WithRecipientHeaders(c.RecipientHeaders...))
	}
	for i, ec := range c.Envelopes {
		env, err := envelope(ec)
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i, err)
		}
		routerOpts = append(routerOpts, mailroute.WithEnvelope(env))
	}

	return mailroute.New(routes, append(routerOpts, b.routerOpts...)...)
}

func (b *builder) route(rc Route) (mailroute.Route, error) {
	h, ok := b.handlers[rc.Handler]
	if !ok {
		return mailroute.Route{}, fmt.Errorf("%w: %q", ErrUnknownHandler, rc.Handler)
	}

	route := mailroute.Route{Name: rc.Name, Pattern: rc.Pattern, Handler: h}
	if rc.Auth != "" {
		auth, err := b.authenticator(rc.Auth)
		if err != nil {
			return mailroute.Route{}, err
		}
		route.Authenticator = auth
	}
	return route, nil
}

func (b *builder) hostResolver() (dns.HostResolver, error) {
	if b.resolver == nil {
		client, err := b.cfg.DNS.Client()
		if err != nil {
			return nil, err
		}
		b.resolver = client
	}
	return b.resolver, nil
}

// authenticator builds the named authenticator once. Composites may share
// members but must not refer back to themselves.
func (b *builder) authenticator(name string) (mailroute.Authenticator, error) {
	if auth, ok := b.auths[name]; ok {
		return auth, nil
	}
	ac, ok := b.cfg.Authenticators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthenticator, name)
	}
	if b.visiting[name] {
		return nil, fmt.Errorf("%w: authenticator %q refers to itself", ErrInvalidConfig, name)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	auth, err := b.build(name, ac)
	if err != nil {
		return nil, err
	}
	b.auths[name] = auth
	return auth, nil
}

func (b *builder) build(name string, ac Authenticator) (mailroute.Authenticator, error) {
	switch ac.Type {
	case AuthDKIM:
		resolver, err := b.hostResolver()
		if err != nil {
			return nil, err
		}
		opts := []dkim.Option{dkim.WithResolver(resolver), dkim.WithMaxSignatures(ac.MaxSignatures)}
		if len(ac.Domains) > 0 {
			opts = append(opts, dkim.WithDomains(ac.Domains...))
		}
		if ac.Aligned {
			opts = append(opts, dkim.WithFromAlignment())
		}
		return dkim.New(opts...), nil

	case AuthSPF:
		resolver, err := b.hostResolver()
		if err != nil {
			return nil, err
		}
		opts := []spf.Option{spf.WithResolver(resolver)}
		if len(ac.Accept) > 0 {
			accept := make([]spf.Result, 0, len(ac.Accept))
			for _, s := range ac.Accept {
				r := spf.Result(s)
				if !slices.Contains(spfResults, r) {
					return nil, fmt.Errorf("%w: authenticator %q: unknown spf result %q", ErrInvalidConfig, name, s)
				}
				accept = append(accept, r)
			}
			opts = append(opts, spf.WithAccept(accept...))
		}
		return spf.New(opts...), nil

	case AuthSecret:
		secret := ac.Secret
		if ac.SecretEnv != "" {
			secret = os.Getenv(ac.SecretEnv)
		}
		if ac.Header == "" || secret == "" {
			return nil, fmt.Errorf("%w: authenticator %q: header and secret are required", ErrInvalidConfig, name)
		}
		return mailroute.SharedSecret(ac.Header, secret), nil

	case AuthAll, AuthAny:
		if len(ac.Of) == 0 {
			return nil, fmt.Errorf("%w: authenticator %q: no members", ErrInvalidConfig, name)
		}
		members := make([]mailroute.Authenticator, 0, len(ac.Of))
		for _, member := range ac.Of {
			auth, err := b.authenticator(member)
			if err != nil {
				return nil, err
			}
			members = append(members, auth)
		}
		if ac.Type == AuthAll {
			return mailroute.RequireAll(members...), nil
		}
		return mailroute.RequireAny(members...), nil

	default:
		return nil, fmt.Errorf("%w: authenticator %q: unknown type %q", ErrInvalidConfig, name, ac.Type)
	}
}

var spfResults = []spf.Result{
	spf.None, spf.Neutral, spf.Pass, spf.Fail, spf.SoftFail, spf.TempError, spf.PermError,
}

func envelope(ec Envelope) (mailroute.Envelope, error) {
	switch ec.Type {
	case EnvelopeSNS:
		return mailroute.SNSEnvelope(), nil
	case EnvelopeJSON:
		if ec.Name == "" || ec.Content == "" {
			return nil, fmt.Errorf("%w: json envelope needs name and content", ErrInvalidConfig)
		}
		fields := ec.Fields
		if len(fields) == 0 {
			fields = []string{ec.Content}
		}
		var opts []mailroute.JSONEnvelopeOption
		if ec.Base64 {
			opts = append(opts, mailroute.Base64Encoded())
		}
		if ec.EncodingPath != "" {
			opts = append(opts, mailroute.EncodingPath(ec.EncodingPath))
		}
		return mailroute.JSONEnvelope(ec.Name, mailroute.HasFields(fields...), ec.Content, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %q", ErrInvalidConfig, ec.Type)
	}
}
