package dns

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		isNotFound bool
		isTemp     bool
	}{
		{name: "not found", err: lookupError("a.example.", "", ErrNotFound), isNotFound: true},
		{name: "servfail", err: lookupError("a.example.", "", ErrServFail), isTemp: true},
		{name: "refused", err: lookupError("a.example.", "", ErrRefused), isTemp: true},
		{name: "timeout", err: lookupError("a.example.", "", ErrTimeout), isTemp: true},
		{name: "bare sentinel", err: ErrServFail, isTemp: true},
		{name: "stdlib not found", err: &net.DNSError{IsNotFound: true}, isNotFound: true},
		{name: "unrelated", err: errors.New("boom")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isNotFound, IsNotFound(tt.err))
			assert.Equal(t, tt.isTemp, IsTemporary(tt.err))
		})
	}
}

func TestLookupErrorUnwraps(t *testing.T) {
	err := lookupError("sel._domainkey.example.com.", "10.0.0.1:53", ErrNotFound)

	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	assert.Equal(t, "sel._domainkey.example.com.", dnsErr.Name)
	assert.True(t, dnsErr.IsNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMock(t *testing.T) {
	ctx := context.Background()
	m := Mock{
		TXT:  map[string][]string{"example.com.": {"v=spf1 -all"}, "bare.example.com": {"ok"}},
		MX:   map[string][]*net.MX{"example.com.": {{Host: "mx.example.com.", Pref: 10}}},
		IP:   map[string][]net.IP{"mx.example.com.": {net.ParseIP("192.0.2.1")}},
		PTR:  map[string][]string{"192.0.2.1": {"mx.example.com."}},
		Fail: []string{"txt broken.example.com."},
	}

	txt, err := m.LookupTXT(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"v=spf1 -all"}, txt)

	txt, err = m.LookupTXT(ctx, "bare.example.com.")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, txt)

	_, err = m.LookupTXT(ctx, "missing.example.com")
	assert.True(t, IsNotFound(err))

	_, err = m.LookupTXT(ctx, "broken.example.com")
	assert.True(t, IsTemporary(err))

	mx, err := m.LookupMX(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com.", mx[0].Host)

	addrs, err := m.LookupIPAddr(ctx, "mx.example.com")
	require.NoError(t, err)
	assert.True(t, addrs[0].IP.Equal(net.ParseIP("192.0.2.1")))

	names, err := m.LookupAddr(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"mx.example.com."}, names)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.LookupTXT(cancelled, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

// startServer runs an in-process nameserver on a loopback UDP port and
// returns its address.
func startServer(t *testing.T, handler mdns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func zone(w mdns.ResponseWriter, req *mdns.Msg) {
	m := new(mdns.Msg)
	m.SetReply(req)

	q := req.Question[0]
	hdr := mdns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: mdns.ClassINET, Ttl: 60}

	switch q.Name {
	case "sel._domainkey.example.com.":
		m.Answer = append(m.Answer, &mdns.TXT{Hdr: hdr, Txt: []string{"v=DKIM1; k=ed25519; ", "p=abc"}})
	case "example.com.":
		switch q.Qtype {
		case mdns.TypeMX:
			m.Answer = append(m.Answer, &mdns.MX{Hdr: hdr, Preference: 10, Mx: "mx.example.com."})
		case mdns.TypeTXT:
			m.Answer = append(m.Answer, &mdns.TXT{Hdr: hdr, Txt: []string{"v=spf1 mx -all"}})
		}
	case "mx.example.com.":
		switch q.Qtype {
		case mdns.TypeA:
			m.Answer = append(m.Answer, &mdns.A{Hdr: hdr, A: net.ParseIP("192.0.2.1")})
		case mdns.TypeAAAA:
			m.Answer = append(m.Answer, &mdns.AAAA{Hdr: hdr, AAAA: net.ParseIP("2001:db8::1")})
		}
	case "1.2.0.192.in-addr.arpa.":
		m.Answer = append(m.Answer, &mdns.PTR{Hdr: hdr, Ptr: "mx.example.com."})
	case "empty.example.com.":
	case "broken.example.com.":
		m.SetRcode(req, mdns.RcodeServerFailure)
	case "refused.example.com.":
		m.SetRcode(req, mdns.RcodeRefused)
	default:
		m.SetRcode(req, mdns.RcodeNameError)
	}

	_ = w.WriteMsg(m)
}

func TestClient(t *testing.T) {
	addr := startServer(t, zone)
	c := NewClient(Config{Nameservers: []string{addr}, Timeout: time.Second})
	ctx := context.Background()

	t.Run("joins multi-string TXT records", func(t *testing.T) {
		txt, err := c.LookupTXT(ctx, "sel._domainkey.example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"v=DKIM1; k=ed25519; p=abc"}, txt)
	})

	t.Run("nxdomain is not found", func(t *testing.T) {
		_, err := c.LookupTXT(ctx, "nope.example.com")
		assert.True(t, IsNotFound(err))
		assert.False(t, IsTemporary(err))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty answer is not found", func(t *testing.T) {
		_, err := c.LookupTXT(ctx, "empty.example.com")
		assert.True(t, IsNotFound(err))
	})

	t.Run("servfail is temporary", func(t *testing.T) {
		_, err := c.LookupTXT(ctx, "broken.example.com")
		assert.True(t, IsTemporary(err))
		assert.ErrorIs(t, err, ErrServFail)
	})

	t.Run("refused is temporary", func(t *testing.T) {
		_, err := c.LookupTXT(ctx, "refused.example.com")
		assert.True(t, IsTemporary(err))
		assert.ErrorIs(t, err, ErrRefused)
	})

	t.Run("mx", func(t *testing.T) {
		mx, err := c.LookupMX(ctx, "example.com")
		require.NoError(t, err)
		require.Len(t, mx, 1)
		assert.Equal(t, "mx.example.com.", mx[0].Host)
		assert.Equal(t, uint16(10), mx[0].Pref)
	})

	t.Run("ip addresses from A and AAAA", func(t *testing.T) {
		addrs, err := c.LookupIPAddr(ctx, "mx.example.com")
		require.NoError(t, err)
		require.Len(t, addrs, 2)
		assert.True(t, addrs[0].IP.Equal(net.ParseIP("192.0.2.1")))
		assert.True(t, addrs[1].IP.Equal(net.ParseIP("2001:db8::1")))
	})

	t.Run("reverse lookup", func(t *testing.T) {
		names, err := c.LookupAddr(ctx, "192.0.2.1")
		require.NoError(t, err)
		assert.Equal(t, []string{"mx.example.com."}, names)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.LookupTXT(cancelled, "example.com")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClientRetriesOtherServers(t *testing.T) {
	good := startServer(t, zone)
	bad := startServer(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetRcode(req, mdns.RcodeServerFailure)
		_ = w.WriteMsg(m)
	})

	c := NewClient(Config{Nameservers: []string{bad, good}, Timeout: time.Second})
	txt, err := c.LookupTXT(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"v=spf1 mx -all"}, txt)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{Nameservers: []string{"127.0.0.1:53"}, Retries: -3})

	assert.Equal(t, 5*time.Second, c.Config().Timeout)
	assert.Equal(t, 0, c.Config().Retries)
	assert.NotEmpty(t, NewClient(Config{}).Config().Nameservers)
}
