package websocket

import (
	"context"
	"sort"
	"strings"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/wire"
)

// HandlerFunc handles one request. Protocol failures are answered on c and
// return nil; a returned error is an unexpected failure.
type HandlerFunc func(ctx context.Context, c *Connection, args wire.Args) error

// Middleware wraps the handler registered as name.
type Middleware func(name string, next HandlerFunc) HandlerFunc

// Chain wraps h in mws, the first being outermost.
func Chain(name string, h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](name, h)
	}
	return h
}

// Logging records every attempt before anything else can reject it. Only
// argument names are logged; values may hold passwords or file data.
func Logging(name string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, c *Connection, args wire.Args) error {
		logger.Debugf("[ws] %s conn=%s args=[%s]", name, c, strings.Join(argNames(args), ","))
		return next(ctx, c, args)
	}
}

// AuthRequired rejects requests on connections without a bound identity.
func AuthRequired(name string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, c *Connection, args wire.Args) error {
		if !c.Authenticated() {
			return c.Respond(name, wire.StatusAuthRequired(), nil)
		}
		return next(ctx, c, args)
	}
}

// RequiredFields rejects requests missing any of fields, listing all of the
// absent ones.
func RequiredFields(fields ...string) Middleware {
	required := append([]string(nil), fields...)
	sort.Strings(required)

	return func(name string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, c *Connection, args wire.Args) error {
			var absent []string
			for _, f := range required {
				if _, ok := args[f]; !ok {
					absent = append(absent, f)
				}
			}
			if len(absent) > 0 {
				return c.Respond(name, wire.StatusAbsentFields(absent), nil)
			}
			return next(ctx, c, args)
		}
	}
}

// FieldType is the JSON type expected of a request argument.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumber
	FieldBool
	FieldObject
	FieldList
)

func (t FieldType) matches(v any) bool {
	switch t {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		_, ok := v.(float64)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldObject:
		_, ok := v.(map[string]any)
		return ok
	case FieldList:
		_, ok := v.([]any)
		return ok
	}
	return false
}

// CheckTypes rejects requests where a present field has the wrong JSON type.
// Fields are checked in name order and the first mismatch is reported.
func CheckTypes(types map[string]FieldType) Middleware {
	fields := make([]string, 0, len(types))
	for f := range types {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	return func(name string, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, c *Connection, args wire.Args) error {
			for _, f := range fields {
				v, ok := args[f]
				if !ok {
					continue
				}
				if !types[f].matches(v) {
					return c.Respond(name, wire.StatusWrongDataType(f), nil)
				}
			}
			return next(ctx, c, args)
		}
	}
}

func argNames(args wire.Args) []string {
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
