package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// Config configures a Client.
type Config struct {
	// Nameservers to query, as host:port. If empty, the servers from
	// /etc/resolv.conf are used, falling back to 8.8.8.8 and 1.1.1.1.
	Nameservers []string

	// Timeout for a single query. Default is 5 seconds.
	Timeout time.Duration

	// Retries is the number of extra passes over Nameservers after the
	// first one fails. Zero means each server is tried once.
	Retries int
}

// Client is a HostResolver backed by github.com/miekg/dns.
type Client struct {
	config Config
	client *mdns.Client
}

var _ HostResolver = (*Client)(nil)

// NewClient creates a Client from config.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = systemNameservers()
	}

	return &Client{
		config: config,
		client: &mdns.Client{Timeout: config.Timeout},
	}
}

// Config returns the client's effective configuration.
func (c *Client) Config() Config {
	return c.config
}

func systemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		servers = append(servers, net.JoinHostPort(s, config.Port))
	}
	return servers
}

func (c *Client) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	var lastServer string

	for range c.config.Retries + 1 {
		for _, server := range c.config.Nameservers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			lastServer = server
			resp, _, err := c.client.ExchangeContext(ctx, m, server)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					lastErr = ErrTimeout
				} else {
					lastErr = fmt.Errorf("%w: %v", ErrServFail, err)
				}
				continue
			}

			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError:
				return nil, lookupError(name, server, ErrNotFound)
			case mdns.RcodeRefused:
				lastErr = ErrRefused
			default:
				lastErr = fmt.Errorf("%w: rcode %s", ErrServFail, mdns.RcodeToString[resp.Rcode])
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrServFail
	}
	return nil, lookupError(name, lastServer, lastErr)
}

// LookupTXT returns the TXT records of name.
func (c *Client) LookupTXT(ctx context.Context, name string) ([]string, error) {
	resp, err := c.query(ctx, name, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}

	var records []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, lookupError(name, "", ErrNotFound)
	}
	return records, nil
}

// LookupMX returns the MX records of name.
func (c *Client) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	resp, err := c.query(ctx, name, mdns.TypeMX)
	if err != nil {
		return nil, err
	}

	var records []*net.MX
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(records) == 0 {
		return nil, lookupError(name, "", ErrNotFound)
	}
	return records, nil
}

// LookupIPAddr returns the A and AAAA records of host.
func (c *Client) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	var addrs []net.IPAddr
	var lastErr error

	for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		resp, err := c.query(ctx, host, qtype)
		if err != nil {
			if !IsNotFound(err) {
				lastErr = err
			}
			continue
		}
		for _, rr := range resp.Answer {
			switch rr := rr.(type) {
			case *mdns.A:
				addrs = append(addrs, net.IPAddr{IP: rr.A})
			case *mdns.AAAA:
				addrs = append(addrs, net.IPAddr{IP: rr.AAAA})
			}
		}
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, lookupError(host, "", ErrNotFound)
	}
	return addrs, nil
}

// LookupAddr returns the PTR names of addr.
func (c *Client) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	arpa, err := mdns.ReverseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("dns: reverse lookup of %q: %w", addr, err)
	}

	resp, err := c.query(ctx, arpa, mdns.TypePTR)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*mdns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	if len(names) == 0 {
		return nil, lookupError(arpa, "", ErrNotFound)
	}
	return names, nil
}
