package spf

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/mailroute"
	"github.com/bjaus/mailroute/dns"
)

func message(clientIP string) []byte {
	return []byte("Return-Path: <bounce@example.com>\r\n" +
		"Received: from mail.example.com (mail.example.com [" + clientIP + "]) by mx.local with ESMTP\r\n" +
		"Received: from internal.example.com ([10.0.0.5]) by mail.example.com\r\n" +
		"From: Alice <alice@example.com>\r\n" +
		"To: support@example.net\r\n" +
		"\r\n" +
		"hello\r\n")
}

func zone() dns.Mock {
	return dns.Mock{
		TXT: map[string][]string{
			"example.com.": {"v=spf1 ip4:192.0.2.0/24 mx -all"},
			"soft.test.":   {"v=spf1 ~all"},
		},
		MX: map[string][]*net.MX{"example.com.": {{Host: "mx2.example.com.", Pref: 10}}},
		IP: map[string][]net.IP{"mx2.example.com.": {net.ParseIP("198.51.100.7")}},
	}
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		opts     []Option
		raw      []byte
		wantErr  error
		wantRes  Result
		wantTemp bool
	}{
		{
			name: "ip4 mechanism passes",
			raw:  message("192.0.2.10"),
		},
		{
			name: "mx mechanism passes",
			raw:  message("198.51.100.7"),
		},
		{
			name:    "unlisted host fails",
			raw:     message("203.0.113.9"),
			wantErr: ErrRejected,
			wantRes: Fail,
		},
		{
			name:    "fail can be accepted",
			opts:    []Option{WithAccept(Pass, Fail)},
			raw:     message("203.0.113.9"),
			wantErr: nil,
		},
		{
			name: "client from option",
			opts: []Option{WithClient(net.ParseIP("192.0.2.44"), "mail.example.com")},
			raw:  []byte("Return-Path: <bounce@example.com>\r\n\r\n"),
		},
		{
			name:    "no received header",
			raw:     []byte("Return-Path: <bounce@example.com>\r\n\r\n"),
			wantErr: ErrNoClient,
		},
		{
			name:    "falls back to From",
			opts:    []Option{WithClient(net.ParseIP("203.0.113.9"), "relay.soft.test")},
			raw:     []byte("From: Bob <bob@soft.test>\r\n\r\n"),
			wantErr: ErrRejected,
			wantRes: SoftFail,
		},
		{
			name:    "no sender",
			opts:    []Option{WithClient(net.ParseIP("192.0.2.1"), "")},
			raw:     []byte("Subject: hi\r\n\r\n"),
			wantErr: ErrNoSender,
		},
		{
			name:    "no policy is none",
			opts:    []Option{WithClient(net.ParseIP("192.0.2.1"), "mail.nopolicy.test")},
			raw:     []byte("Return-Path: <a@nopolicy.test>\r\n\r\n"),
			wantErr: ErrRejected,
			wantRes: None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := New(append([]Option{WithResolver(zone())}, tt.opts...)...)

			err := auth.Verify(ctx, tt.raw)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantRes != "" {
				var re *ResultError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, tt.wantRes, re.Result)
			}
		})
	}
}

func TestLookupFailureIsTemporary(t *testing.T) {
	resolver := zone()
	resolver.Fail = []string{"txt example.com."}

	err := New(WithResolver(resolver)).Verify(context.Background(), message("192.0.2.10"))
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, IsTemporary(err))

	err = New(WithResolver(zone())).Verify(context.Background(), message("203.0.113.9"))
	assert.False(t, IsTemporary(err))
}

func TestParseReceived(t *testing.T) {
	tests := []struct {
		header string
		ip     string
		helo   string
	}{
		{"from mail.example.com (mail.example.com [192.0.2.1]) by mx", "192.0.2.1", "mail.example.com"},
		{"from [192.0.2.1] (unknown [192.0.2.1]) by mx", "192.0.2.1", "192.0.2.1"},
		{"from mx6.example.com (mx6.example.com [IPv6:2001:db8::25]) by mx", "2001:db8::25", "mx6.example.com"},
		{"by mx with local id 1234", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			ip, helo := parseReceived(tt.header)
			if tt.ip == "" {
				assert.Nil(t, ip)
			} else {
				assert.True(t, ip.Equal(net.ParseIP(tt.ip)), "got %v", ip)
			}
			assert.Equal(t, tt.helo, helo)
		})
	}
}

func TestSenderOf(t *testing.T) {
	got, err := senderOf("<bounce@example.com>", "a@example.org", "mx.example.com")
	require.NoError(t, err)
	assert.Equal(t, "bounce@example.com", got)

	got, err = senderOf("<>", "a@example.org", "mx.example.com")
	require.NoError(t, err)
	assert.Equal(t, "postmaster@mx.example.com", got)

	got, err = senderOf("", "Ann <a@example.org>", "")
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", got)

	_, err = senderOf("", "", "")
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestGatesDispatch(t *testing.T) {
	h := mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error { return nil })
	r, err := mailroute.New(mailroute.Routes{{
		Pattern:       `support@`,
		Handler:       h,
		Authenticator: New(WithResolver(zone())),
	}})
	require.NoError(t, err)

	assert.NoError(t, r.Dispatch(context.Background(), message("192.0.2.10")))

	err = r.Dispatch(context.Background(), message("203.0.113.9"))
	assert.ErrorIs(t, err, mailroute.ErrAuthFailed)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestResultNames(t *testing.T) {
	// Configuration files name results by their string form.
	for name, want := range map[string]Result{
		"none":      None,
		"neutral":   Neutral,
		"pass":      Pass,
		"fail":      Fail,
		"softfail":  SoftFail,
		"temperror": TempError,
		"permerror": PermError,
	} {
		assert.Equal(t, want, Result(name))
	}
}
