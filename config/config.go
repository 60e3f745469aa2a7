// Package config loads route tables from YAML or JSON and builds routers
// from them.
//
// Handlers cannot be described in a file, so routes name them and Build
// resolves the names against a map supplied by the caller:
//
//	recipient_headers: [To, Cc]
//	authenticators:
//	  signed:
//	    type: dkim
//	    domains: [example.com]
//	routes:
//	  - name: folders
//	    pattern: '(?P<user>[^-]*)-(?P<folder>.*)@.*'
//	    handler: folders
//	    auth: signed
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/bjaus/mailroute/dns"
)

var (
	// ErrInvalidConfig is returned for configurations that cannot be built.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnknownHandler means a route names a handler that was not supplied.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrUnknownAuthenticator means a route or composite authenticator names
	// an authenticator that is not defined.
	ErrUnknownAuthenticator = errors.New("unknown authenticator")
)

// Config is a declarative router definition.
type Config struct {
	// RecipientHeaders overrides the headers searched for recipients.
	RecipientHeaders []string `yaml:"recipient_headers" json:"recipient_headers"`

	DNS DNS `yaml:"dns" json:"dns"`

	// Authenticators are named so routes and composites can refer to them.
	Authenticators map[string]Authenticator `yaml:"authenticators" json:"authenticators"`

	Envelopes []Envelope `yaml:"envelopes" json:"envelopes"`

	// Routes in priority order.
	Routes []Route `yaml:"routes" json:"routes"`
}

// DNS configures the resolver shared by dkim and spf authenticators.
type DNS struct {
	Nameservers []string `yaml:"nameservers" json:"nameservers"`
	Timeout     string   `yaml:"timeout" json:"timeout"`
	Retries     int      `yaml:"retries" json:"retries"`
}

// Client returns a dns.Client for d.
func (d DNS) Client() (*dns.Client, error) {
	var timeout time.Duration
	if d.Timeout != "" {
		var err error
		if timeout, err = time.ParseDuration(d.Timeout); err != nil {
			return nil, fmt.Errorf("%w: dns timeout: %w", ErrInvalidConfig, err)
		}
	}
	return dns.NewClient(dns.Config{
		Nameservers: d.Nameservers,
		Timeout:     timeout,
		Retries:     d.Retries,
	}), nil
}

// Route declares one route.
type Route struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Handler string `yaml:"handler" json:"handler"`
	Auth    string `yaml:"auth" json:"auth"`
}

// Authenticator types.
const (
	AuthDKIM   = "dkim"
	AuthSPF    = "spf"
	AuthSecret = "secret"
	AuthAll    = "all"
	AuthAny    = "any"
)

// Authenticator declares a named authenticator. Which fields apply depends
// on Type.
type Authenticator struct {
	Type string `yaml:"type" json:"type"`

	// dkim
	Domains       []string `yaml:"domains" json:"domains"`
	Aligned       bool     `yaml:"aligned" json:"aligned"`
	MaxSignatures int      `yaml:"max_signatures" json:"max_signatures"`

	// spf
	Accept []string `yaml:"accept" json:"accept"`

	// secret; SecretEnv names an environment variable holding the secret.
	Header    string `yaml:"header" json:"header"`
	Secret    string `yaml:"secret" json:"secret"`
	SecretEnv string `yaml:"secret_env" json:"secret_env"`

	// all, any
	Of []string `yaml:"of" json:"of"`
}

// Envelope types.
const (
	EnvelopeSNS  = "sns"
	EnvelopeJSON = "json"
)

// Envelope declares an envelope recognized by Router.Process.
type Envelope struct {
	Type string `yaml:"type" json:"type"`

	// json
	Name         string   `yaml:"name" json:"name"`
	Fields       []string `yaml:"fields" json:"fields"`
	Content      string   `yaml:"content" json:"content"`
	Base64       bool     `yaml:"base64" json:"base64"`
	EncodingPath string   `yaml:"encoding_path" json:"encoding_path"`
}
