package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/bhandras/smln/internal/wire"
	"github.com/stretchr/testify/require"
)

func okHandler(called *bool) HandlerFunc {
	return func(ctx context.Context, c *Connection, args wire.Args) error {
		*called = true
		return c.Respond("get_user", wire.StatusOK(), nil)
	}
}

func TestChain_OuterToInner(t *testing.T) {
	var order []string
	mark := func(tag string) Middleware {
		return func(name string, next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, c *Connection, args wire.Args) error {
				order = append(order, tag+":"+name)
				return next(ctx, c, args)
			}
		}
	}
	h := Chain("people", func(context.Context, *Connection, wire.Args) error {
		order = append(order, "handler")
		return nil
	}, mark("a"), mark("b"))

	c, _ := newTestConn()
	require.NoError(t, h(context.Background(), c, wire.Args{}))
	require.Equal(t, []string{"a:people", "b:people", "handler"}, order)
}

func TestAuthRequired(t *testing.T) {
	var called bool
	h := Chain("get_user", okHandler(&called), AuthRequired)

	c, sock := newTestConn()
	require.NoError(t, h(context.Background(), c, wire.Args{}))
	require.False(t, called)

	resp := sock.only(t)
	require.Equal(t, "get-user", resp.Type)
	require.Equal(t, wire.StatusAuthRequired(), *resp.Status)

	require.True(t, c.bind("u1"))
	require.NoError(t, h(context.Background(), c, wire.Args{}))
	require.True(t, called)
}

func TestRequiredFields_ListsEveryAbsentField(t *testing.T) {
	var called bool
	h := Chain("get_user", okHandler(&called), RequiredFields("id", "b", "a"))

	c, sock := newTestConn()
	require.NoError(t, h(context.Background(), c, wire.Args{"a": 1.0}))
	require.False(t, called)
	require.Equal(t, wire.StatusAbsentFields([]string{"b", "id"}), *sock.only(t).Status)

	require.NoError(t, h(context.Background(), c, wire.Args{"a": 1.0, "b": nil, "id": "x"}))
	require.True(t, called)
}

func TestCheckTypes_FirstMismatchInNameOrder(t *testing.T) {
	var called bool
	h := Chain("get_user", okHandler(&called), CheckTypes(map[string]FieldType{
		"z": FieldString,
		"m": FieldObject,
		"a": FieldNumber,
		"l": FieldList,
		"b": FieldBool,
	}))

	c, sock := newTestConn()
	require.NoError(t, h(context.Background(), c, wire.Args{"z": 1.0, "m": "x"}))
	require.False(t, called)
	require.Equal(t, wire.StatusWrongDataType("m"), *sock.only(t).Status)

	// Absent fields are not type checked.
	require.NoError(t, h(context.Background(), c, wire.Args{
		"z": "s", "m": map[string]any{}, "a": 2.0, "l": []any{}, "b": true,
	}))
	require.True(t, called)
}

func TestLogging_PassesThrough(t *testing.T) {
	sentinel := errors.New("boom")
	h := Chain("people", func(context.Context, *Connection, wire.Args) error {
		return sentinel
	}, Logging)

	c, _ := newTestConn()
	require.ErrorIs(t, h(context.Background(), c, wire.Args{"pass": "secret"}), sentinel)
}
