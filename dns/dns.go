// Package dns provides the TXT lookups needed by sender authenticators.
//
// Client queries nameservers directly with github.com/miekg/dns so that the
// servers, timeout and retry count can be configured per authenticator
// instead of relying on the process-wide resolver. Mock serves canned records
// for tests.
//
// Lookup failures are reported as *net.DNSError values, which is what
// DKIM and SPF libraries inspect to tell temporary failures from permanent
// ones. ErrNotFound, ErrServFail, ErrRefused and ErrTimeout can be matched
// with errors.Is.
package dns

import (
	"context"
	"errors"
	"net"
)

// Resolver looks up TXT records.
type Resolver interface {
	// LookupTXT returns the TXT records of name. Multi-string records are
	// joined into one string per record.
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// HostResolver adds the lookups SPF evaluation needs for a, mx and ptr
// mechanisms.
type HostResolver interface {
	Resolver
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

var (
	// ErrNotFound means the name does not exist or has no TXT records.
	ErrNotFound = errors.New("dns: no such record")

	// ErrServFail means the server failed to answer (SERVFAIL).
	ErrServFail = errors.New("dns: server failure")

	// ErrRefused means the server refused the query.
	ErrRefused = errors.New("dns: query refused")

	// ErrTimeout means no server answered in time.
	ErrTimeout = errors.New("dns: timeout")
)

// lookupError wraps a sentinel in a *net.DNSError carrying the flags that
// match it.
func lookupError(name, server string, cause error) error {
	e := &net.DNSError{
		Err:       cause.Error(),
		Name:      name,
		Server:    server,
		UnwrapErr: cause,
	}
	switch {
	case errors.Is(cause, ErrNotFound):
		e.IsNotFound = true
	case errors.Is(cause, ErrTimeout):
		e.IsTimeout = true
		e.IsTemporary = true
	case errors.Is(cause, ErrServFail), errors.Is(cause, ErrRefused):
		e.IsTemporary = true
	}
	return e
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// IsTemporary reports whether err is a failure that may succeed later.
func IsTemporary(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return errors.Is(err, ErrServFail) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRefused)
}
