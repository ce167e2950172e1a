package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MaxPayloadBytes = 8192
	MaxTextLen      = 4096
	MaxSourceLen    = 128
	MaxIDLen        = 256
	CurrentVersion  = 1
)

// Socket actions.
const (
	ActionNotify    = "notify"
	ActionReact     = "react"
	ActionPlatforms = "platforms"
)

// Request is the JSON envelope sent over the socket. Notify and React are
// filled by ValidateRequest for their actions.
type Request struct {
	Version int             `json:"version"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Notify *NotifyPayload `json:"-"`
	React  *ReactPayload  `json:"-"`
}

// NotifyPayload sends Text to ChatID on Platform.
type NotifyPayload struct {
	Platform string `json:"platform"`
	ChatID   string `json:"chat_id"`
	Text     string `json:"text"`
	// ReplyTo threads the message under an existing one.
	ReplyTo string `json:"reply_to,omitempty"`
	Source  string `json:"source,omitempty"`
}

// ReactPayload adds Emoji to a message previously sent or received.
type ReactPayload struct {
	Platform  string `json:"platform"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Response is the JSON envelope sent back to the client.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// ID is the request id; MessageID is the platform id of the sent message.
	ID        string   `json:"id,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

var errMissingPayload = errors.New("missing payload")

// ValidateRequest checks the envelope and decodes the payload of known
// actions. Unknown fields are rejected at both levels.
func ValidateRequest(data []byte) (*Request, error) {
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("payload exceeds %d byte limit", MaxPayloadBytes)
	}

	var req Request
	if err := decodeStrict(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if req.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported version %d, expected %d", req.Version, CurrentVersion)
	}

	var err error
	switch req.Action {
	case ActionNotify:
		req.Notify, err = decodePayload(req.Action, req.Payload, NotifyPayload.validate)
	case ActionReact:
		req.React, err = decodePayload(req.Action, req.Payload, ReactPayload.validate)
	case ActionPlatforms:
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func decodePayload[T any](action string, raw json.RawMessage, check func(T) error) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errMissingPayload
	}
	var p T
	if err := decodeStrict(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", action, err)
	}
	if err := check(p); err != nil {
		return nil, err
	}
	return &p, nil
}

func checkTarget(platform, chatID string) error {
	if platform == "" || chatID == "" {
		return errors.New("platform and chat_id are required")
	}
	if len(platform) > MaxIDLen || len(chatID) > MaxIDLen {
		return fmt.Errorf("platform or chat_id exceeds %d character limit", MaxIDLen)
	}
	return nil
}

func (p NotifyPayload) validate() error {
	if err := checkTarget(p.Platform, p.ChatID); err != nil {
		return err
	}
	switch {
	case p.Text == "":
		return errors.New("text is required")
	case len(p.Text) > MaxTextLen:
		return fmt.Errorf("text exceeds %d character limit", MaxTextLen)
	case len(p.Source) > MaxSourceLen:
		return fmt.Errorf("source exceeds %d character limit", MaxSourceLen)
	case len(p.ReplyTo) > MaxIDLen:
		return fmt.Errorf("reply_to exceeds %d character limit", MaxIDLen)
	}
	return nil
}

func (p ReactPayload) validate() error {
	if err := checkTarget(p.Platform, p.ChatID); err != nil {
		return err
	}
	if p.MessageID == "" || p.Emoji == "" {
		return errors.New("message_id and emoji are required")
	}
	if len(p.MessageID) > MaxIDLen || len(p.Emoji) > 32 {
		return errors.New("message_id or emoji too long")
	}
	return nil
}
