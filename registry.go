package mailroute

import (
	"fmt"
	"regexp"
)

// Route declares one handler definition of a Group.
//
// A Route with an empty Pattern is an ordinary, non-routable definition and
// is not registered. Pattern uses RE2 syntax; named groups declared with
// (?P<name>...) or (?<name>...) become Match fields. The pattern is matched
// against bare recipient addresses and is anchored at the start of the
// address only; add $ to anchor the end. No case folding is applied unless
// the pattern asks for it, e.g. with (?i).
type Route struct {
	// Name identifies the route in errors, hooks and telemetry.
	// Defaults to the pattern text.
	Name string

	// Pattern is the regular expression recipient addresses are matched against.
	Pattern string

	// Handler is invoked when the pattern matches.
	Handler Handler

	// Authenticator, when set, must accept the whole raw message before
	// Handler is invoked.
	Authenticator Authenticator
}

// Group is a set of handler definitions. It plays the role of the unit that
// owns one or more handlers; New walks its routes exactly once.
//
// Example:
//
//	type Mailboxes struct {
//	    store Store
//	    dkim  mailroute.Authenticator
//	}
//
//	func (m *Mailboxes) Routes() []mailroute.Route {
//	    return []mailroute.Route{
//	        {Name: "support", Pattern: `support@example\.com$`, Handler: mailroute.HandlerFunc(m.support)},
//	        {Name: "billing", Pattern: `billing@.*`, Handler: mailroute.HandlerFunc(m.billing), Authenticator: m.dkim},
//	    }
//	}
type Group interface {
	Routes() []Route
}

// Routes is a literal route table implementing Group.
type Routes []Route

// Routes implements the Group interface.
func (r Routes) Routes() []Route { return r }

// Entry is a compiled, registered Route.
type Entry struct {
	Route

	re *regexp.Regexp
}

// Regexp returns the compiled pattern. It is anchored at the start of input.
func (e *Entry) Regexp() *regexp.Regexp { return e.re }

// FieldNames returns the named capture groups declared by the pattern, in
// the order they appear.
func (e *Entry) FieldNames() []string {
	var names []string
	for _, n := range e.re.SubexpNames() {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// match reports the submatch indexes of addr, or nil.
func (e *Entry) match(addr string) []int {
	return e.re.FindStringSubmatchIndex(addr)
}

// Registry is the ordered set of compiled routes of a Group. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	entries []*Entry
}

// NewRegistry compiles every routable route in declaration order.
//
// It fails with an *InvalidPatternError if a pattern does not compile and
// with ErrNilHandler if a routable route has no handler. Duplicate pattern
// text is allowed; the first declared entry wins at dispatch time.
func NewRegistry(routes ...Route) (*Registry, error) {
	reg := &Registry{entries: make([]*Entry, 0, len(routes))}
	for _, rt := range routes {
		if rt.Pattern == "" {
			continue
		}
		if rt.Name == "" {
			rt.Name = rt.Pattern
		}

		re, err := regexp.Compile("^(?:" + rt.Pattern + ")")
		if err != nil {
			// Report errors against the declared text, not the anchored wrapper.
			if _, perr := regexp.Compile(rt.Pattern); perr != nil {
				err = perr
			}
			return nil, &InvalidPatternError{Route: rt.Name, Pattern: rt.Pattern, Err: err}
		}
		if rt.Handler == nil {
			return nil, fmt.Errorf("route %s: %w", rt.Name, ErrNilHandler)
		}

		reg.entries = append(reg.entries, &Entry{Route: rt, re: re})
	}
	return reg, nil
}

// Len returns the number of registered routes.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns the registered routes in declaration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// Lookup returns the first entry registered with the given pattern text.
func (r *Registry) Lookup(pattern string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Pattern == pattern {
			return *e, true
		}
	}
	return Entry{}, false
}
