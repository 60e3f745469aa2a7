package dns

import (
	"context"
	"net"
	"slices"

	mdns "github.com/miekg/dns"
)

// Mock is a HostResolver serving fixed records. Map keys are names with or
// without the trailing dot.
type Mock struct {
	TXT map[string][]string
	MX  map[string][]*net.MX
	IP  map[string][]net.IP
	PTR map[string][]string

	// Fail lists lookups that return a SERVFAIL error, written as
	// "type name", e.g. "txt example.com.".
	Fail []string
}

var _ HostResolver = Mock{}

func (m Mock) check(ctx context.Context, qtype, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if slices.Contains(m.Fail, qtype+" "+name) {
		return lookupError(name, "mock", ErrServFail)
	}
	return nil
}

func lookup[T any](records map[string][]T, name string) ([]T, bool) {
	if v, ok := records[name]; ok && len(v) > 0 {
		return v, true
	}
	if v, ok := records[name[:len(name)-1]]; ok && len(v) > 0 {
		return v, true
	}
	return nil, false
}

// LookupTXT implements Resolver.
func (m Mock) LookupTXT(ctx context.Context, name string) ([]string, error) {
	name = mdns.Fqdn(name)
	if err := m.check(ctx, "txt", name); err != nil {
		return nil, err
	}
	if v, ok := lookup(m.TXT, name); ok {
		return v, nil
	}
	return nil, lookupError(name, "mock", ErrNotFound)
}

// LookupMX implements HostResolver.
func (m Mock) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	name = mdns.Fqdn(name)
	if err := m.check(ctx, "mx", name); err != nil {
		return nil, err
	}
	if v, ok := lookup(m.MX, name); ok {
		return v, nil
	}
	return nil, lookupError(name, "mock", ErrNotFound)
}

// LookupIPAddr implements HostResolver.
func (m Mock) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	host = mdns.Fqdn(host)
	if err := m.check(ctx, "ip", host); err != nil {
		return nil, err
	}
	ips, ok := lookup(m.IP, host)
	if !ok {
		return nil, lookupError(host, "mock", ErrNotFound)
	}
	addrs := make([]net.IPAddr, len(ips))
	for i, ip := range ips {
		addrs[i] = net.IPAddr{IP: ip}
	}
	return addrs, nil
}

// LookupAddr implements HostResolver.
func (m Mock) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	if err := m.check(ctx, "ptr", addr); err != nil {
		return nil, err
	}
	if v, ok := m.PTR[addr]; ok && len(v) > 0 {
		return v, nil
	}
	return nil, lookupError(addr, "mock", ErrNotFound)
}
