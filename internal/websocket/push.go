package websocket

import (
	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/wire"
)

func activityUpdate(u store.User) wire.Response {
	return wire.NewPush(wire.TypeActivityUpdate, wire.Args{
		"user-id":   u.ID,
		"is-online": u.IsOnline,
		"last-seen": u.LastSeen,
	})
}

// messageReceived carries the receiver's view of msg.
func messageReceived(msg store.Message) wire.Response {
	return wire.NewPush(wire.TypeMessageReceived, wire.Args{"message": msg})
}

func messagesRead(readerID string) wire.Response {
	return wire.NewPush(wire.TypeMessagesRead, wire.Args{"user-id": readerID})
}
