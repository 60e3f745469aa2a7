package mailroute

import (
	"maps"
	"slices"
)

// Match is the per-dispatch context handed to a handler. A new Match is
// built for every Dispatch call and is never shared between calls.
type Match struct {
	// ID uniquely identifies this dispatch. Defaults to a ULID.
	ID string

	// Route is the route that won.
	Route Route

	// Recipient is the bare address that matched the route pattern.
	Recipient string

	// Recipients is the raw recipient header value the address came from.
	Recipients string

	// Fields holds the named capture groups of the winning match.
	Fields Fields

	// Message is the raw message as passed to Dispatch.
	Message []byte
}

// Fields maps capture group names to the text they matched. Groups that did
// not participate in the match are absent.
type Fields map[string]string

// Get returns the value of the named field, or "" if it is absent.
func (f Fields) Get(name string) string {
	return f[name]
}

// Lookup returns the value of the named field and whether it was captured.
func (f Fields) Lookup(name string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

// Names returns the captured field names in sorted order.
func (f Fields) Names() []string {
	return slices.Sorted(maps.Keys(f))
}

// bindFields builds Fields from submatch indexes of addr. names is the
// regexp's SubexpNames slice.
func bindFields(names []string, addr string, loc []int) Fields {
	fields := make(Fields)
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		fields[name] = addr[start:end]
	}
	return fields
}
