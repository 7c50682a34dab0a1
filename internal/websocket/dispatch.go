package websocket

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/wire"
)

// Dispatcher maps wire types to wrapped handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register wraps h in mws and installs it under the wire form of name.
// Registering a type twice is a programming error and panics.
func (d *Dispatcher) Register(name string, h HandlerFunc, mws ...Middleware) {
	msgType := wire.TypeName(name)
	if _, ok := d.handlers[msgType]; ok {
		panic(fmt.Sprintf("websocket: handler %q registered twice", msgType))
	}
	d.handlers[msgType] = Chain(name, h, mws...)
}

// Types returns the registered wire types, sorted.
func (d *Dispatcher) Types() []string {
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for msgType.
//
// Unregistered types, including the codec's invalid-format and
// unspecified-type markers, get a status 1 reply. Handler errors and panics
// are logged in full and answered with a bare status 20; the connection
// stays usable either way.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Connection, msgType string, args wire.Args) {
	h, ok := d.handlers[msgType]
	if !ok {
		d.unknownType(c, msgType)
		return
	}
	if err := invoke(ctx, h, c, args); err != nil {
		logger.Errorf("[ws] %s on conn %s failed: %v", msgType, c, err)
		d.serverError(c, msgType)
	}
}

func invoke(ctx context.Context, h HandlerFunc, c *Connection, args wire.Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, c, args)
}

func (d *Dispatcher) unknownType(c *Connection, msgType string) {
	var st wire.Status
	switch msgType {
	case wire.TypeInvalidFormat:
		st = wire.StatusInvalidFormat()
	case wire.TypeUnspecified:
		st = wire.StatusUnspecifiedType()
	default:
		st = wire.StatusUnknownType(msgType)
	}
	logger.Debugf("[ws] conn %s: rejected %q", c, msgType)
	d.reply(c, msgType, st)
}

func (d *Dispatcher) serverError(c *Connection, msgType string) {
	d.reply(c, msgType, wire.StatusServerError())
}

func (d *Dispatcher) reply(c *Connection, msgType string, st wire.Status) {
	if err := c.Push(wire.NewResponse(msgType, st, nil)); err != nil {
		logger.Errorf("[ws] conn %s: reply %s: %v", c, msgType, err)
	}
}
