// Package dkim provides a mailroute.Authenticator that verifies DKIM
// signatures (RFC 6376).
//
// A message is accepted when at least one of its signatures verifies and
// satisfies the configured policy:
//
//	auth := dkim.New(
//		dkim.WithDomains("example.com"),
//		dkim.WithFromAlignment(),
//	)
//
// Public keys are fetched through a dns.Resolver. Lookups use the context
// passed to Verify, so cancelling it aborts verification.
package dkim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	msgauth "github.com/emersion/go-msgauth/dkim"

	"github.com/bjaus/mailroute"
	"github.com/bjaus/mailroute/dns"
)

var (
	// ErrNoSignature means the message carries no DKIM-Signature header.
	ErrNoSignature = errors.New("dkim: message is not signed")

	// ErrNoValidSignature means no signature passed verification and policy.
	ErrNoValidSignature = errors.New("dkim: no valid signature")

	// ErrDomainNotAllowed means a signature verified for a domain outside
	// the allowed list.
	ErrDomainNotAllowed = errors.New("dkim: signing domain not allowed")

	// ErrNotAligned means a signature verified for a domain that does not
	// align with the From address.
	ErrNotAligned = errors.New("dkim: signing domain not aligned with From")

	// ErrTemporary marks failures caused by unavailable keys. Retrying the
	// message later may succeed.
	ErrTemporary = errors.New("dkim: temporary failure")
)

// DefaultMaxSignatures bounds how many signatures are checked per message.
const DefaultMaxSignatures = 5

// SignatureError describes why one signature was rejected.
type SignatureError struct {
	Domain string
	Err    error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("d=%s: %v", e.Domain, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithResolver sets the resolver used to fetch public keys. The default is a
// dns.Client using the system nameservers.
func WithResolver(r dns.Resolver) Option {
	return func(a *Authenticator) {
		a.resolver = r
	}
}

// WithDomains restricts accepted signatures to the given signing domains.
// Matching is case-insensitive and exact.
func WithDomains(domains ...string) Option {
	return func(a *Authenticator) {
		for _, d := range domains {
			a.domains = append(a.domains, normalize(d))
		}
	}
}

// WithFromAlignment requires the signing domain to equal the From address
// domain or be a parent of it.
func WithFromAlignment() Option {
	return func(a *Authenticator) {
		a.aligned = true
	}
}

// WithMaxSignatures bounds how many signatures are verified. Messages with
// more signatures are rejected.
func WithMaxSignatures(n int) Option {
	return func(a *Authenticator) {
		if n > 0 {
			a.maxSignatures = n
		}
	}
}

// Authenticator verifies DKIM signatures. It is safe for concurrent use.
type Authenticator struct {
	resolver      dns.Resolver
	domains       []string
	aligned       bool
	maxSignatures int
}

var _ mailroute.Authenticator = (*Authenticator)(nil)

// New creates an Authenticator.
func New(opts ...Option) *Authenticator {
	a := &Authenticator{maxSignatures: DefaultMaxSignatures}
	for _, opt := range opts {
		opt(a)
	}
	if a.resolver == nil {
		a.resolver = dns.NewClient(dns.Config{})
	}
	return a
}

// Verify implements mailroute.Authenticator.
func (a *Authenticator) Verify(ctx context.Context, raw []byte) error {
	verifications, err := msgauth.VerifyWithOptions(bytes.NewReader(raw), &msgauth.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			return a.resolver.LookupTXT(ctx, domain)
		},
		MaxVerifications: a.maxSignatures,
	})
	if err != nil {
		return fmt.Errorf("dkim: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(verifications) == 0 {
		return ErrNoSignature
	}

	var from string
	if a.aligned {
		if from, err = fromDomain(raw); err != nil {
			return fmt.Errorf("%w: %w", ErrNotAligned, err)
		}
	}

	errs := make([]error, 0, len(verifications))
	temporary := false
	for _, v := range verifications {
		domain := normalize(v.Domain)
		switch {
		case v.Err != nil:
			temporary = temporary || msgauth.IsTempFail(v.Err)
			errs = append(errs, &SignatureError{Domain: v.Domain, Err: v.Err})
		case len(a.domains) > 0 && !slices.Contains(a.domains, domain):
			errs = append(errs, &SignatureError{Domain: v.Domain, Err: ErrDomainNotAllowed})
		case a.aligned && !alignedWith(domain, from):
			errs = append(errs, &SignatureError{Domain: v.Domain, Err: ErrNotAligned})
		default:
			return nil
		}
	}

	if temporary {
		return fmt.Errorf("%w: %w: %w", ErrNoValidSignature, ErrTemporary, errors.Join(errs...))
	}
	return fmt.Errorf("%w: %w", ErrNoValidSignature, errors.Join(errs...))
}

// IsTemporary reports whether err was caused by a failure that may succeed
// on a later attempt, such as a key lookup timing out.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTemporary)
}

func fromDomain(raw []byte) (string, error) {
	h, err := mailroute.ReadHeader(raw)
	if err != nil {
		return "", err
	}
	for addr := range mailroute.Addresses(h.Get("From")) {
		if i := strings.LastIndexByte(addr, '@'); i >= 0 {
			return normalize(addr[i+1:]), nil
		}
	}
	return "", fmt.Errorf("no From domain")
}

// alignedWith reports whether the signing domain equals the From domain or
// is one of its parents.
func alignedWith(signing, from string) bool {
	return signing == from || strings.HasSuffix(from, "."+signing)
}

func normalize(domain string) string {
	return strings.ToLower(strings.TrimSuffix(domain, "."))
}
