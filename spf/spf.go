// Package spf provides a mailroute.Authenticator that checks the sending
// host against the sender domain's SPF policy (RFC 7208).
//
// The connecting client's IP address and HELO name are read from the topmost
// Received header, which is the one added by the receiving MTA. Deployments
// where that header cannot be trusted should pass them with WithClient.
// The sender is the Return-Path address, or the From address when no
// Return-Path is present.
package spf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"

	spflib "blitiri.com.ar/go/spf"

	"github.com/bjaus/mailroute"
	"github.com/bjaus/mailroute/dns"
)

// Result is the outcome of an SPF check.
type Result = spflib.Result

// Possible results. The library declares them as variables.
var (
	None      = spflib.None
	Neutral   = spflib.Neutral
	Pass      = spflib.Pass
	Fail      = spflib.Fail
	SoftFail  = spflib.SoftFail
	TempError = spflib.TempError
	PermError = spflib.PermError
)

var (
	// ErrRejected matches every *ResultError.
	ErrRejected = errors.New("spf: result not accepted")

	// ErrNoClient means the client IP address could not be determined.
	ErrNoClient = errors.New("spf: no client address")

	// ErrNoSender means the message has neither Return-Path nor From.
	ErrNoSender = errors.New("spf: no sender")
)

// ResultError reports a check whose result is not accepted.
type ResultError struct {
	Result Result
	Sender string
	IP     net.IP
	Err    error
}

func (e *ResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spf: %s for %s from %s: %v", e.Result, e.Sender, e.IP, e.Err)
	}
	return fmt.Sprintf("spf: %s for %s from %s", e.Result, e.Sender, e.IP)
}

func (e *ResultError) Is(target error) bool {
	return target == ErrRejected
}

func (e *ResultError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is a TempError result.
func IsTemporary(err error) bool {
	var re *ResultError
	return errors.As(err, &re) && re.Result == TempError
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithResolver sets the resolver used for policy lookups. The default is a
// dns.Client using the system nameservers.
func WithResolver(r dns.HostResolver) Option {
	return func(a *Authenticator) {
		a.resolver = r
	}
}

// WithClient fixes the client IP address and HELO name instead of reading
// them from the Received header.
func WithClient(ip net.IP, helo string) Option {
	return func(a *Authenticator) {
		a.ip = ip
		a.helo = helo
	}
}

// WithAccept sets the results that accept a message. The default is Pass.
func WithAccept(results ...Result) Option {
	return func(a *Authenticator) {
		a.accept = results
	}
}

// Authenticator checks SPF. It is safe for concurrent use.
type Authenticator struct {
	resolver dns.HostResolver
	accept   []Result
	ip       net.IP
	helo     string
}

var _ mailroute.Authenticator = (*Authenticator)(nil)

// New creates an Authenticator.
func New(opts ...Option) *Authenticator {
	a := &Authenticator{accept: []Result{Pass}}
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
	h, err := mailroute.ReadHeader(raw)
	if err != nil {
		return fmt.Errorf("spf: %w", err)
	}

	ip, helo := a.ip, a.helo
	if ip == nil {
		ip, helo = parseReceived(h.Get("Received"))
		if ip == nil {
			return ErrNoClient
		}
	}

	sender, err := senderOf(h.Get("Return-Path"), h.Get("From"), helo)
	if err != nil {
		return err
	}

	result, reason := spflib.CheckHostWithSender(ip, helo, sender,
		spflib.WithContext(ctx),
		spflib.WithResolver(a.resolver),
	)
	if slices.Contains(a.accept, result) {
		return nil
	}
	return &ResultError{Result: result, Sender: sender, IP: ip, Err: reason}
}

var (
	receivedFrom = regexp.MustCompile(`(?i)^\s*from\s+(\S+)`)
	receivedIP   = regexp.MustCompile(`\[(?:IPv6:)?([0-9A-Fa-f:.]+)\]`)
)

// parseReceived returns the client address and HELO name of a Received
// header such as "from mx.example.com (mx.example.com [192.0.2.1]) by ...".
func parseReceived(v string) (net.IP, string) {
	var helo string
	if m := receivedFrom.FindStringSubmatch(v); m != nil {
		helo = strings.Trim(m[1], "[]")
	}
	m := receivedIP.FindStringSubmatch(v)
	if m == nil {
		return nil, helo
	}
	return net.ParseIP(m[1]), helo
}

// senderOf picks the envelope sender. A null Return-Path ("<>") is checked
// as postmaster@helo.
func senderOf(returnPath, from, helo string) (string, error) {
	if returnPath = strings.TrimSpace(returnPath); returnPath != "" {
		addr := strings.Trim(returnPath, "<> \t")
		if addr != "" {
			return addr, nil
		}
		if helo != "" {
			return "postmaster@" + helo, nil
		}
	}
	for addr := range mailroute.Addresses(from) {
		return addr, nil
	}
	return "", ErrNoSender
}
