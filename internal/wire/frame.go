// Package wire defines the JSON frames exchanged with clients over the
// socket, and the closed set of result statuses they carry.
package wire

import (
	"encoding/json"
	"strings"
)

const (
	// TypeInvalidFormat is the pseudo type assigned to frames that are not
	// JSON objects.
	TypeInvalidFormat = "invalid-format"
	// TypeUnspecified is the pseudo type assigned to objects without "type".
	TypeUnspecified = "unspecified-type"
)

// Push frame types.
const (
	TypeActivityUpdate  = "activity-update"
	TypeMessageReceived = "message-received"
	TypeMessagesRead    = "messages-read"
)

// Args is the argument object of a request or response frame.
type Args map[string]any

// Response is an outbound frame. Solicited responses carry a status; pushes
// leave it nil.
type Response struct {
	Type   string  `json:"type"`
	Status *Status `json:"status,omitempty"`
	Args   Args    `json:"args,omitempty"`
}

// NewResponse builds a solicited response frame.
func NewResponse(msgType string, st Status, args Args) Response {
	return Response{Type: msgType, Status: &st, Args: args}
}

// NewPush builds an unsolicited push frame.
func NewPush(msgType string, args Args) Response {
	return Response{Type: msgType, Args: args}
}

// TypeName renders a handler name as its wire type: get_user -> get-user.
func TypeName(handlerName string) string {
	return strings.ReplaceAll(handlerName, "_", "-")
}

// Decode splits a raw frame into its type and arguments.
//
// Decode never fails. Frames that are not JSON objects get TypeInvalidFormat,
// objects without a type get TypeUnspecified, and in both cases args is empty.
func Decode(raw []byte) (string, Args) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return TypeInvalidFormat, Args{}
	}

	rawType, ok := fields["type"]
	if !ok {
		return TypeUnspecified, Args{}
	}
	var msgType string
	if err := json.Unmarshal(rawType, &msgType); err != nil {
		return TypeInvalidFormat, Args{}
	}

	args := Args{}
	if rawArgs, ok := fields["args"]; ok && string(rawArgs) != "null" {
		if err := json.Unmarshal(rawArgs, &args); err != nil || args == nil {
			return TypeInvalidFormat, Args{}
		}
	}
	return msgType, args
}

// Encode renders a frame as JSON text. HTML characters are left unescaped so
// message text round-trips byte for byte.
func Encode(resp Response) ([]byte, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(sb.String(), "\n")), nil
}
