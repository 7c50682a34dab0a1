package store

import (
	"encoding/base64"
	"fmt"
)

// Credentials is returned by a successful password check.
type Credentials struct {
	UserID     string
	PublicKey  string
	PrivateKey string
}

// User is the public view of a user record.
type User struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	IsOnline  bool   `json:"is-online"`
	LastSeen  int64  `json:"last-seen"`
	PublicKey string `json:"public-key"`
}

// FileRef points at a stored attachment.
type FileRef struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Message is one message as seen by one of its two owners.
type Message struct {
	ID         string   `json:"id"`
	SenderID   string   `json:"sender-id"`
	ReceiverID string   `json:"receiver-id"`
	Text       string   `json:"text,omitempty"`
	File       *FileRef `json:"file,omitempty"`
	Seen       bool     `json:"seen"`
	SentAt     int64    `json:"sent-at"`
}

// Chat summarizes a conversation with one counterpart.
type Chat struct {
	User        User    `json:"user"`
	LastMessage Message `json:"last-message"`
	Unread      int     `json:"unread"`
}

// SendResult is the outcome of SendMessage.
type SendResult struct {
	// Message is the receiver-facing view of the stored message.
	Message       Message
	ReceiverFound bool
	// Invalid is non-empty when the payload was rejected; nothing was stored.
	Invalid string
}

// Attachment is a decoded file attached to a message.
type Attachment struct {
	Name string
	Data []byte
}

// MessageContent is one owner's copy of a message payload.
type MessageContent struct {
	Text string
	File *Attachment
}

const (
	invalidEmptyMessage = "Message must contain text or a file"
	invalidText         = "Message text must be a string"
	invalidAttachment   = "Invalid file attachment"
)

// ParseMessageContent validates a raw payload of the form
// {"text": string?, "file": {"name": string, "data": base64}?}.
//
// The second result is a client-facing reason when the payload is invalid.
func ParseMessageContent(raw map[string]any) (MessageContent, string) {
	var out MessageContent

	if v, ok := raw["text"]; ok && v != nil {
		text, ok := v.(string)
		if !ok {
			return MessageContent{}, invalidText
		}
		out.Text = text
	}

	if v, ok := raw["file"]; ok && v != nil {
		file, ok := v.(map[string]any)
		if !ok {
			return MessageContent{}, invalidAttachment
		}
		name, _ := file["name"].(string)
		encoded, _ := file["data"].(string)
		if name == "" || encoded == "" {
			return MessageContent{}, invalidAttachment
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return MessageContent{}, invalidAttachment
		}
		out.File = &Attachment{Name: name, Data: data}
	}

	if out.Text == "" && out.File == nil {
		return MessageContent{}, invalidEmptyMessage
	}
	return out, ""
}

func (c MessageContent) String() string {
	if c.File != nil {
		return fmt.Sprintf("text=%dB file=%s(%dB)", len(c.Text), c.File.Name, len(c.File.Data))
	}
	return fmt.Sprintf("text=%dB", len(c.Text))
}
