package mailroute

import (
	"context"
	"encoding/json"
)

// Handler processes a message whose recipient matched its route.
//
// The Match is created for this call only. Handlers may keep it for the
// duration of Handle; the router never reuses or mutates it afterwards.
//
// Example:
//
//	type ArchiveHandler struct {
//	    store Store
//	}
//
//	func (h *ArchiveHandler) Handle(ctx context.Context, m *mailroute.Match) error {
//	    return h.store.Put(ctx, m.Fields.Get("folder"), m.Message)
//	}
type Handler interface {
	Handle(ctx context.Context, m *Match) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, m *Match) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, m *Match) error {
	return f(ctx, m)
}

// TypedHandler receives the captured fields decoded into T.
//
// The type parameter T is usually a struct whose JSON field tags name the
// capture groups of the route pattern:
//
//	type FolderFields struct {
//	    User   string `json:"user"`
//	    Folder string `json:"folder"`
//	}
//
//	func (h *FolderHandler) Handle(ctx context.Context, f FolderFields, m *mailroute.Match) error {
//	    return h.store.Put(ctx, f.User, f.Folder, m.Message)
//	}
type TypedHandler[T any] interface {
	Handle(ctx context.Context, fields T, m *Match) error
}

// TypedHandlerFunc is a function adapter for TypedHandler.
type TypedHandlerFunc[T any] func(ctx context.Context, fields T, m *Match) error

// Handle implements the TypedHandler interface.
func (f TypedHandlerFunc[T]) Handle(ctx context.Context, fields T, m *Match) error {
	return f(ctx, fields, m)
}

// validatable is the interface for field validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// Bind adapts a TypedHandler to a Handler. The match fields are decoded into
// T and validated if T implements Validate() error. Decode and validation
// failures match ErrInvalidFields and the typed handler is not called.
//
// This is a package-level function (not a method) due to Go generics limitations.
func Bind[T any](h TypedHandler[T]) Handler {
	return HandlerFunc(func(ctx context.Context, m *Match) error {
		var fields T
		if err := decodeFields(m.Fields, &fields); err != nil {
			return &fieldsError{op: "decode", err: err}
		}

		if v, ok := any(fields).(validatable); ok {
			if err := v.Validate(); err != nil {
				return &fieldsError{op: "validate", err: err}
			}
		} else if v, ok := any(&fields).(validatable); ok {
			if err := v.Validate(); err != nil {
				return &fieldsError{op: "validate", err: err}
			}
		}

		return h.Handle(ctx, fields, m)
	})
}

// BindFunc is a convenience wrapper around Bind for handler functions.
//
// Example:
//
//	mailroute.Route{
//	    Pattern: `(?P<user>[^-]*)-(?P<folder>.*)@.*`,
//	    Handler: mailroute.BindFunc(func(ctx context.Context, f FolderFields, m *mailroute.Match) error {
//	        return nil
//	    }),
//	}
func BindFunc[T any](fn func(ctx context.Context, fields T, m *Match) error) Handler {
	return Bind[T](TypedHandlerFunc[T](fn))
}

func decodeFields(f Fields, dst any) error {
	if f == nil {
		f = Fields{}
	}
	raw, err := json.Marshal(map[string]string(f))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
