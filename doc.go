// Package mailroute dispatches inbound email to handlers by recipient address.
//
// A router holds an ordered set of routes. Each route pairs a regular
// expression over bare recipient addresses with a handler and, optionally,
// an Authenticator that must accept the message before the handler runs.
// Named capture groups in the winning pattern become fields of the Match
// passed to the handler.
//
// # Quick Start
//
// Declare routes and create a router:
//
//	r, err := mailroute.New(mailroute.Routes{
//	    {
//	        Name:    "folders",
//	        Pattern: `(?P<user>[^-]*)-(?P<folder>.*)@.*`,
//	        Handler: mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
//	            return archive(ctx, m.Fields.Get("user"), m.Fields.Get("folder"), m.Message)
//	        }),
//	    },
//	    {
//	        Name:          "billing",
//	        Pattern:       `billing@example\.com$`,
//	        Handler:       billing,
//	        Authenticator: dkim.New(),
//	    },
//	})
//	if err != nil {
//	    return err // *mailroute.InvalidPatternError
//	}
//
//	err = r.Dispatch(ctx, rawMessage)
//
// # Matching
//
// Dispatch reads the recipient headers (To by default, see
// WithRecipientHeaders) and splits them into bare addresses, dropping display
// names and angle brackets. Addresses are scanned in header order; for each
// address, routes are tried in declaration order. The first route whose
// pattern matches the earliest matching address wins. Addresses that match
// nothing are skipped.
//
// Patterns are anchored at the start of the address but not at the end, and
// no case folding is applied unless the pattern asks for it with (?i).
//
// # Outcomes
//
// Dispatch returns exactly one of:
//
//   - nil: the handler ran and succeeded
//   - *NoRouteError (errors.Is ErrNoRoute): no address matched any route
//   - *AuthError (errors.Is ErrAuthFailed): the route's authenticator rejected
//     the message and the handler did not run
//   - the handler's error, unmodified
//
// Nothing is retried and there is no fallback to another route.
//
// # Authentication
//
// An Authenticator receives the whole raw message, not just the address:
//
//	type Authenticator interface {
//	    Verify(ctx context.Context, raw []byte) error
//	}
//
// The dkim and spf sub-packages provide DKIM and SPF implementations.
// RequireAll, RequireAny and SharedSecret are provided here. Verification can
// block on DNS; the router adds no timeout, so bound ctx if you need one.
//
// # Fields
//
// Match.Fields holds the named groups of the winning match. Bind decodes
// them into a struct for typed handlers:
//
//	type FolderFields struct {
//	    User   string `json:"user"`
//	    Folder string `json:"folder"`
//	}
//
//	mailroute.BindFunc(func(ctx context.Context, f FolderFields, m *mailroute.Match) error {
//	    return nil
//	})
//
// # Envelopes
//
// Mail delivered by a provider webhook or queue arrives wrapped. Process
// unwraps it with the first matching Envelope before dispatching:
//
//	r, _ := mailroute.New(routes, mailroute.WithEnvelope(
//	    mailroute.SNSEnvelope(),
//	    mailroute.JSONEnvelope("mailgun", mailroute.HasFields("body-mime"), "body-mime"),
//	))
//	err := r.Process(ctx, body)
//
// Envelope detection uses the Discriminator/Inspector pair: the input is
// inspected once per inspector (JSON via gjson by default) and cheap field
// checks pick the envelope before any decoding.
//
// # Hooks
//
// Hooks observe the dispatch flow for logging, metrics and tracing:
//
//	r, _ := mailroute.New(routes,
//	    mailroute.WithOnMatch(func(ctx context.Context, m *mailroute.Match) context.Context {
//	        return ctx
//	    }),
//	    mailroute.WithOnNoRoute(func(ctx context.Context, err *mailroute.NoRouteError) {
//	        log.Printf("bounce: %v", err)
//	    }),
//	)
//
// The observability sub-package provides slog and OpenTelemetry hooks.
// Handlers may implement OnDispatchHook, OnSuccessHook, OnFailureHook or
// OnAuthFailureHook for per-route behavior.
//
// # Concurrency
//
// A Router is immutable after New. Dispatch may be called from many
// goroutines at once; each call builds its own Match.
package mailroute
