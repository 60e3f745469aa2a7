package mailroute

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
)

// Authenticator verifies the authenticity of a whole raw message before its
// route handler runs. Verify returns nil to accept the message; any error
// rejects it and its message becomes the AuthError reason.
//
// Verification may block on I/O (for example DNS lookups for DKIM keys).
// The router applies no timeout of its own; bound ctx to limit it.
//
// Implementations live in the dkim and spf sub-packages. SharedSecret,
// RequireAll and RequireAny are provided here.
type Authenticator interface {
	Verify(ctx context.Context, raw []byte) error
}

// AuthenticatorFunc is a function adapter for Authenticator.
type AuthenticatorFunc func(ctx context.Context, raw []byte) error

// Verify implements the Authenticator interface.
func (f AuthenticatorFunc) Verify(ctx context.Context, raw []byte) error {
	return f(ctx, raw)
}

// RequireAll returns an Authenticator that accepts a message only if every
// authenticator accepts it. Authenticators run in order and the first
// rejection is returned.
func RequireAll(auths ...Authenticator) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, raw []byte) error {
		for _, a := range auths {
			if err := a.Verify(ctx, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// RequireAny returns an Authenticator that accepts a message if at least one
// authenticator accepts it. Authenticators run in order until one accepts;
// if none do, all rejections are joined.
func RequireAny(auths ...Authenticator) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, raw []byte) error {
		if len(auths) == 0 {
			return errors.New("no authenticators configured")
		}
		errs := make([]error, 0, len(auths))
		for _, a := range auths {
			err := a.Verify(ctx, raw)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

// ErrSecretMismatch is returned by SharedSecret when the header is missing
// or does not carry the expected secret.
var ErrSecretMismatch = errors.New("shared secret mismatch")

// SharedSecret returns an Authenticator that accepts messages whose header
// carries the given secret. Useful behind relays that stamp a private header
// on mail they accepted. The comparison is constant-time.
func SharedSecret(header, secret string) Authenticator {
	extractor := MIMEHeaders()
	want := []byte(secret)
	return AuthenticatorFunc(func(_ context.Context, raw []byte) error {
		got, err := extractor.Extract(raw, header)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSecretMismatch, header, err)
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			return fmt.Errorf("%w: %s", ErrSecretMismatch, header)
		}
		return nil
	})
}
