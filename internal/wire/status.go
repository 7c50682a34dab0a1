package wire

import (
	"fmt"
	"strings"
)

// Status is the result block carried by every solicited response frame.
//
// Code 0 means success and carries no message. Codes are part of the wire
// contract; clients branch on them.
type Status struct {
	Code    int    `json:"status"`
	Message string `json:"error-message,omitempty"`
}

const (
	CodeOK          = 0
	CodeBadRequest  = 1
	CodeValidation  = 2
	CodeConflict    = 3
	CodeCredentials = 4
	CodeServerError = 20
)

// OK reports whether the status is the success status.
func (s Status) OK() bool { return s.Code == CodeOK }

func newStatus(code int, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(quoted, ", ")
}

// StatusOK is the success status.
func StatusOK() Status { return Status{Code: CodeOK} }

// StatusServerError is the generic unexpected-failure status. It never carries
// internal detail.
func StatusServerError() Status { return newStatus(CodeServerError, "Server error") }

// StatusInvalidFormat is returned when a frame is not a JSON object.
func StatusInvalidFormat() Status {
	return newStatus(CodeBadRequest, "Message is not a JSON object")
}

// StatusUnspecifiedType is returned when a frame has no "type" field.
func StatusUnspecifiedType() Status {
	return newStatus(CodeBadRequest, `Message does not contain "type" field`)
}

// StatusUnknownType is returned when no handler is registered for a type.
func StatusUnknownType(msgType string) Status {
	return newStatus(CodeBadRequest, "Unknown type: %q", msgType)
}

// StatusAbsentFields lists required fields missing from a request.
func StatusAbsentFields(fields []string) Status {
	return newStatus(CodeValidation, "Following required fields are absent: %s", quoteList(fields))
}

// StatusWrongDataType names the first field with an unexpected JSON type.
func StatusWrongDataType(field string) Status {
	return newStatus(CodeValidation, "Wrong data type of field: %s", field)
}

// StatusInvalidListProperties names the list properties the store rejected.
func StatusInvalidListProperties(properties []string) Status {
	return newStatus(CodeValidation, "Invalid values of list properties: %s", quoteList(properties))
}

// StatusUserNotFound is returned when a referenced user does not exist.
func StatusUserNotFound(userID string) Status {
	return newStatus(CodeValidation, "No user with id: %s", userID)
}

// StatusAuthRequired is returned for guarded requests on anonymous connections.
func StatusAuthRequired() Status {
	return newStatus(CodeConflict, "Authentication required to handle this request")
}

// StatusRepeatedAuth is returned for auth on an already authenticated
// connection.
func StatusRepeatedAuth() Status {
	return newStatus(CodeConflict, "Authentication was already made during the connection")
}

// StatusFileNotAccessible is identical for unknown tokens and tokens owned by
// someone else.
func StatusFileNotAccessible(token string) Status {
	return newStatus(CodeConflict, "Cannot access file: %s", token)
}

// StatusInvalidMessage reports a message payload the store refused.
func StatusInvalidMessage(reason string) Status {
	return Status{Code: CodeConflict, Message: reason}
}

// StatusWrongCredentials is returned for any failed authentication attempt.
func StatusWrongCredentials() Status {
	return newStatus(CodeCredentials, "Authentication failed: wrong credentials")
}
