package mailroute

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// HeaderExtractor returns the value of a named header of a raw message.
// It returns ErrHeaderNotFound when the header is absent.
type HeaderExtractor interface {
	Extract(raw []byte, name string) (string, error)
}

// HeaderExtractorFunc is a function adapter for HeaderExtractor.
type HeaderExtractorFunc func(raw []byte, name string) (string, error)

// Extract implements the HeaderExtractor interface.
func (f HeaderExtractorFunc) Extract(raw []byte, name string) (string, error) {
	return f(raw, name)
}

// MIMEHeaders returns a HeaderExtractor for RFC 5322 messages. Only the header
// block is read. LF-only line endings and a header block with no trailing
// blank line are accepted. Folded values are unfolded.
func MIMEHeaders() HeaderExtractor {
	return mimeHeaders{}
}

type mimeHeaders struct{}

// headerTerminator closes header blocks that run to EOF. When the message
// already has a blank line the reader stops before reaching it.
var headerTerminator = []byte("\r\n\r\n")

func (mimeHeaders) Extract(raw []byte, name string) (string, error) {
	h, err := ReadHeader(raw)
	if err != nil {
		return "", err
	}
	if !h.Has(name) {
		return "", ErrHeaderNotFound
	}
	return unfold(h.Get(name)), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrHeaderNotFound)
}

// ReadHeader parses the header block of a raw message.
func ReadHeader(raw []byte) (textproto.Header, error) {
	r := io.MultiReader(bytes.NewReader(raw), bytes.NewReader(headerTerminator))
	return textproto.ReadHeader(bufio.NewReader(r))
}

func unfold(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return strings.TrimSpace(v)
	}
	v = strings.ReplaceAll(v, "\r\n", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}

// Addresses yields the bare addresses of a recipient header value in header
// order. Display names, angle brackets, comments and surrounding whitespace
// are stripped. Values that are not a valid RFC 5322 address list are split
// on commas outside quotes and angle brackets, and each element is trimmed,
// so a single malformed entry does not hide the others.
//
// The sequence is lazy: parsing stops as soon as the consumer stops.
func Addresses(header string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if strings.TrimSpace(header) == "" {
			return
		}
		if list, err := mail.ParseAddressList(header); err == nil {
			for _, a := range list {
				if a.Address == "" {
					continue
				}
				if !yield(a.Address) {
					return
				}
			}
			return
		}
		for _, part := range splitList(header) {
			addr := bareAddress(part)
			if addr == "" {
				continue
			}
			if !yield(addr) {
				return
			}
		}
	}
}

// splitList splits an address list on commas that are not inside a quoted
// display name, a comment or angle brackets.
func splitList(s string) []string {
	var (
		parts        []string
		start, depth int
		quoted, esc  bool
		angle        bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case c == '\\' && (quoted || depth > 0):
			esc = true
		case c == '"' && depth == 0:
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case depth > 0:
		case c == '<':
			angle = true
		case c == '>':
			angle = false
		case c == ',' && !angle:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// bareAddress strips a display name, angle brackets and comments from one
// list element.
func bareAddress(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '<'); i >= 0 {
		rest := s[i+1:]
		if j := strings.IndexByte(rest, '>'); j >= 0 {
			rest = rest[:j]
		}
		s = rest
	} else {
		s = stripComments(s)
	}
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func stripComments(s string) string {
	if !strings.ContainsRune(s, '(') {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, c := range s {
		switch {
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(c)
		}
	}
	return b.String()
}
