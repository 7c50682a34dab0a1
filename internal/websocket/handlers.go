package websocket

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/wire"
	"golang.org/x/sync/errgroup"
)

const listPropertiesField = "list-properties"

func (h *Hub) registerHandlers() {
	d := h.dispatcher

	// guarded prepends the wrappers shared by every post-auth handler.
	guarded := func(mws ...Middleware) []Middleware {
		return append([]Middleware{Logging, AuthRequired}, mws...)
	}
	listOnly := CheckTypes(map[string]FieldType{listPropertiesField: FieldObject})

	d.Register("auth", h.auth,
		Logging,
		RequiredFields("login", "pass"),
		CheckTypes(map[string]FieldType{"login": FieldString, "pass": FieldString}),
	)
	d.Register("people", h.people, guarded(listOnly)...)
	d.Register("people_with_messages", h.peopleWithMessages, guarded(listOnly)...)
	d.Register("messages", h.messages, guarded(
		RequiredFields("user-id"),
		CheckTypes(map[string]FieldType{"user-id": FieldString, listPropertiesField: FieldObject}),
	)...)
	d.Register("get_user", h.getUser, guarded(
		RequiredFields("id"),
		CheckTypes(map[string]FieldType{"id": FieldString}),
	)...)
	d.Register("send", h.send, guarded(
		RequiredFields("receiver-id", "message-for-receiver", "message-for-sender"),
		CheckTypes(map[string]FieldType{
			"receiver-id":          FieldString,
			"message-for-receiver": FieldObject,
			"message-for-sender":   FieldObject,
		}),
	)...)
	d.Register("download", h.download, guarded(
		RequiredFields("token"),
		CheckTypes(map[string]FieldType{"token": FieldString}),
	)...)
	d.Register("read", h.read, guarded(
		RequiredFields("user-id"),
		CheckTypes(map[string]FieldType{"user-id": FieldString}),
	)...)
}

func listProperties(args wire.Args) store.ListProperties {
	props, _ := args[listPropertiesField].(map[string]any)
	return props
}

func (h *Hub) auth(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "auth"
	if c.Authenticated() {
		return c.Respond(name, wire.StatusRepeatedAuth(), nil)
	}
	login := args["login"].(string)
	pass := args["pass"].(string)

	creds, ok, err := h.store.ValidatePassword(ctx, login, pass)
	if err != nil {
		return err
	}
	if !ok {
		logger.Infof("[auth] conn %s: wrong credentials for %q", c.ID(), login)
		return c.Respond(name, wire.StatusWrongCredentials(), nil)
	}

	// Held until the broadcast is done so a teardown of an older
	// connection cannot mark the identity offline in between.
	unlock := h.registry.lockIdentity(creds.UserID)
	defer unlock()

	found, err := h.store.MakeOnline(ctx, creds.UserID)
	if err != nil {
		return err
	}
	if !found {
		return c.Respond(name, wire.StatusUserNotFound(creds.UserID), nil)
	}

	if err := h.registry.Authorize(c, creds.UserID); err != nil {
		if !errors.Is(err, ErrAlreadyAuthorized) {
			return err
		}
		// The client sees the same answer as for a bad password.
		logger.Warnf("[auth] conn %s: %q already has a live connection", c.ID(), login)
		return c.Respond(name, wire.StatusWrongCredentials(), nil)
	}
	logger.Infof("[auth] %s (%s) online on conn %s", creds.UserID, login, c.ID())

	var g errgroup.Group
	g.Go(func() error {
		return c.Respond(name, wire.StatusOK(), wire.Args{
			"id":          creds.UserID,
			"public-key":  creds.PublicKey,
			"private-key": creds.PrivateKey,
		})
	})
	g.Go(func() error {
		if err := h.registry.BroadcastActivityUpdate(ctx, creds.UserID); err != nil {
			logger.Errorf("[auth] broadcast online %s: %v", creds.UserID, err)
		}
		return nil
	})
	return g.Wait()
}

func (h *Hub) people(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "people"
	users, invalid, err := h.store.People(ctx, listProperties(args))
	if err != nil {
		return err
	}
	if len(invalid) > 0 {
		return c.Respond(name, wire.StatusInvalidListProperties(invalid), nil)
	}
	return c.Respond(name, wire.StatusOK(), wire.Args{"users": users})
}

func (h *Hub) peopleWithMessages(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "people_with_messages"
	chats, invalid, err := h.store.PeopleWithMessages(ctx, c.UserID(), listProperties(args))
	if err != nil {
		return err
	}
	if len(invalid) > 0 {
		return c.Respond(name, wire.StatusInvalidListProperties(invalid), nil)
	}
	return c.Respond(name, wire.StatusOK(), wire.Args{"chats": chats})
}

func (h *Hub) messages(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "messages"
	otherID := args["user-id"].(string)

	msgs, found, invalid, err := h.store.Messages(ctx, c.UserID(), otherID, listProperties(args))
	if err != nil {
		return err
	}
	if !found {
		return c.Respond(name, wire.StatusUserNotFound(otherID), nil)
	}
	if len(invalid) > 0 {
		return c.Respond(name, wire.StatusInvalidListProperties(invalid), nil)
	}
	return c.Respond(name, wire.StatusOK(), wire.Args{"messages": msgs})
}

func (h *Hub) getUser(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "get_user"
	id := args["id"].(string)

	u, found, err := h.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return c.Respond(name, wire.StatusUserNotFound(id), nil)
	}
	return c.Respond(name, wire.StatusOK(), wire.Args{"user": u})
}

func (h *Hub) send(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "send"
	receiverID := args["receiver-id"].(string)
	forReceiver := args["message-for-receiver"].(map[string]any)
	forSender := args["message-for-sender"].(map[string]any)

	res, err := h.store.SendMessage(ctx, c.UserID(), receiverID, forReceiver, forSender)
	if err != nil {
		return err
	}
	if !res.ReceiverFound {
		return c.Respond(name, wire.StatusUserNotFound(receiverID), nil)
	}
	if res.Invalid != "" {
		return c.Respond(name, wire.StatusInvalidMessage(res.Invalid), nil)
	}

	// Delivery is best effort: offline receivers read the message from
	// history later.
	var g errgroup.Group
	g.Go(func() error {
		return c.Respond(name, wire.StatusOK(), nil)
	})
	g.Go(func() error {
		if !h.registry.DeliverMessage(receiverID, res.Message) {
			logger.Debugf("[ws] %s offline, message %s not pushed", receiverID, res.Message.ID)
		}
		return nil
	})
	return g.Wait()
}

func (h *Hub) download(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "download"
	token := args["token"].(string)

	data, ok, err := h.store.Download(ctx, c.UserID(), token)
	if err != nil {
		return err
	}
	if !ok {
		return c.Respond(name, wire.StatusFileNotAccessible(token), nil)
	}
	return c.Respond(name, wire.StatusOK(), wire.Args{
		"data": base64.StdEncoding.EncodeToString(data),
	})
}

func (h *Hub) read(ctx context.Context, c *Connection, args wire.Args) error {
	const name = "read"
	otherID := args["user-id"].(string)

	found, err := h.store.MarkRead(ctx, c.UserID(), otherID)
	if err != nil {
		return err
	}
	if !found {
		return c.Respond(name, wire.StatusUserNotFound(otherID), nil)
	}

	var g errgroup.Group
	g.Go(func() error {
		return c.Respond(name, wire.StatusOK(), nil)
	})
	g.Go(func() error {
		h.registry.DeliverReadReceipt(otherID, c.UserID())
		return nil
	})
	return g.Wait()
}
