package mailroute

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when envelope input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector turns raw transport input into a View that discriminators can
// query cheaply, before any envelope is unwrapped.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View gives path-based access to an inspected envelope.
type View interface {
	// HasField reports whether path exists.
	HasField(path string) bool

	// GetString returns the string at path. It reports false when the path
	// is missing or does not hold a string.
	GetString(path string) (string, bool)

	// GetBytes returns the raw encoded value at path (for JSON, strings
	// keep their quotes).
	GetBytes(path string) ([]byte, bool)

	// Embedded returns a View over a document carried as a string at path,
	// such as the Message field of an SNS notification.
	Embedded(path string) (View, bool)
}

// JSONInspector returns an Inspector for JSON envelopes. Paths use gjson
// syntax, e.g. "receipt.action.encoding".
func JSONInspector() Inspector {
	return jsonInspector{}
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{raw: raw}, nil
}

type jsonView struct {
	raw []byte
}

func (v jsonView) HasField(path string) bool {
	return gjson.GetBytes(v.raw, path).Exists()
}

func (v jsonView) GetString(path string) (string, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}

func (v jsonView) Embedded(path string) (View, bool) {
	s, ok := v.GetString(path)
	if !ok || !gjson.Valid(s) {
		return nil, false
	}
	return jsonView{raw: []byte(s)}, true
}

// message returns the raw message stored as a string at path, base64
// decoding it when encoded is set.
func (v jsonView) message(path string, encoded bool) ([]byte, error) {
	s, ok := v.GetString(path)
	if !ok {
		return nil, fmt.Errorf("no string content at %q", path)
	}
	if !encoded {
		return []byte(s), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return b, nil
}

// isBase64 reports whether the encoding named at path is base64. SES
// writes "BASE64", webhooks tend to write "base64".
func (v jsonView) isBase64(path string) bool {
	s, _ := v.GetString(path)
	return strings.EqualFold(s, "base64")
}
