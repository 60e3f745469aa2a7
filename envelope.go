package mailroute

import (
	"errors"
	"fmt"
)

// Envelope unwraps a raw RFC 5322 message from a transport-specific wrapper,
// such as a JSON webhook body or an SNS notification.
//
// Envelopes are registered with WithEnvelope and tried by Router.Process.
// Their Discriminator is checked first so that Unwrap only runs on input
// that looks like the envelope's format.
//
// Example:
//
//	type postmarkEnvelope struct{}
//
//	func (postmarkEnvelope) Name() string { return "postmark" }
//
//	func (postmarkEnvelope) Discriminator() mailroute.Discriminator {
//	    return mailroute.HasFields("RawEmail", "MessageID")
//	}
//
//	func (postmarkEnvelope) Unwrap(raw []byte) ([]byte, error) {
//	    return []byte(gjson.GetBytes(raw, "RawEmail").String()), nil
//	}
type Envelope interface {
	// Name identifies the envelope in errors and hooks.
	Name() string

	// Discriminator returns a cheap predicate over the inspected input.
	Discriminator() Discriminator

	// Unwrap returns the raw message carried by the envelope.
	Unwrap(raw []byte) ([]byte, error)
}

// EnvelopeFunc creates an Envelope from a name, discriminator, and unwrap
// function.
func EnvelopeFunc(name string, disc Discriminator, unwrap func([]byte) ([]byte, error)) Envelope {
	return &envelopeFunc{name: name, disc: disc, unwrap: unwrap}
}

type envelopeFunc struct {
	name   string
	disc   Discriminator
	unwrap func([]byte) ([]byte, error)
}

func (e *envelopeFunc) Name() string                      { return e.name }
func (e *envelopeFunc) Discriminator() Discriminator      { return e.disc }
func (e *envelopeFunc) Unwrap(raw []byte) ([]byte, error) { return e.unwrap(raw) }

// JSONEnvelopeOption configures JSONEnvelope.
type JSONEnvelopeOption func(*jsonEnvelope)

// Base64Encoded declares that the content field is standard base64.
func Base64Encoded() JSONEnvelopeOption {
	return func(e *jsonEnvelope) { e.base64 = true }
}

// EncodingPath names a field whose value, compared case-insensitively with
// "base64", decides per message whether the content is base64.
func EncodingPath(path string) JSONEnvelopeOption {
	return func(e *jsonEnvelope) { e.encodingPath = path }
}

// JSONEnvelope returns an Envelope for JSON bodies carrying the raw message
// as a string at contentPath.
//
// Example:
//
//	mailroute.JSONEnvelope("mailgun",
//	    mailroute.HasFields("body-mime", "recipient"),
//	    "body-mime",
//	)
func JSONEnvelope(name string, disc Discriminator, contentPath string, opts ...JSONEnvelopeOption) Envelope {
	e := &jsonEnvelope{name: name, disc: disc, contentPath: contentPath}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type jsonEnvelope struct {
	name         string
	disc         Discriminator
	contentPath  string
	encodingPath string
	base64       bool
}

func (e *jsonEnvelope) Name() string                 { return e.name }
func (e *jsonEnvelope) Discriminator() Discriminator { return e.disc }

func (e *jsonEnvelope) Unwrap(raw []byte) ([]byte, error) {
	v := jsonView{raw: raw}
	encoded := e.base64
	if e.encodingPath != "" {
		encoded = v.isBase64(e.encodingPath)
	}
	return v.message(e.contentPath, encoded)
}

// SNSEnvelope returns an Envelope for Amazon SES receipt notifications
// delivered through an SNS topic. The notification's content is decoded
// according to the receipt action's encoding (UTF-8 or BASE64).
func SNSEnvelope() Envelope {
	return snsEnvelope{}
}

type snsEnvelope struct{}

func (snsEnvelope) Name() string { return "sns" }

func (snsEnvelope) Discriminator() Discriminator {
	return And(
		FieldEquals("Type", "Notification"),
		HasFields("Message", "TopicArn"),
	)
}

var errNotReceipt = errors.New("notification is not an SES receipt")

func (snsEnvelope) Unwrap(raw []byte) ([]byte, error) {
	inner, ok := jsonView{raw: raw}.Embedded("Message")
	if !ok {
		return nil, fmt.Errorf("message: %w", ErrInvalidJSON)
	}
	receipt := inner.(jsonView)

	if typ, _ := receipt.GetString("notificationType"); typ != "Received" {
		return nil, fmt.Errorf("%w: type %q", errNotReceipt, typ)
	}
	if !receipt.HasField("content") {
		return nil, errors.New("receipt has no content; the SNS action must include the message")
	}
	return receipt.message("content", receipt.isBase64("receipt.action.encoding"))
}
