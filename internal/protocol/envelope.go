// Package protocol implements the JSON envelope exchanged over every
// game websocket: {"tag": ..., "message": ...} for regular frames and
// {"tag": ..., "error": ..., "data": ...} for error frames.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolError marks a single inbound frame as unusable. The connection
// it arrived on stays open; the caller logs and moves on.
type ProtocolError struct {
	Reason string
	Frame  []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// RemoteError is an error envelope reported by the peer.
type RemoteError struct {
	Tag    string
	Remote string
	Data   json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error tag=%s error=%q", e.Tag, e.Remote)
}

type envelope struct {
	Tag     string          `json:"tag"`
	Message json.RawMessage `json:"message,omitempty"`
	Error   *string         `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Msg encodes a regular frame.
func Msg(tag string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", tag, err)
	}
	return json.Marshal(envelope{Tag: tag, Message: raw})
}

// MustMsg is Msg for payload types that cannot fail to marshal.
func MustMsg(tag string, payload any) []byte {
	frame, err := Msg(tag, payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// Err encodes an error frame.
func Err(tag, message string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage("null")
	}
	frame, err := json.Marshal(envelope{Tag: tag, Error: &message, Data: raw})
	if err != nil {
		panic(err)
	}
	return frame
}

// Decode splits a frame into its tag and raw payload. A frame carrying an
// error field decodes to *RemoteError; anything malformed decodes to
// *ProtocolError.
func Decode(frame []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, &ProtocolError{Reason: err.Error(), Frame: frame}
	}
	if env.Tag == "" {
		return "", nil, &ProtocolError{Reason: "no tag field", Frame: frame}
	}
	if env.Error != nil {
		if env.Data == nil {
			return "", nil, &ProtocolError{Reason: "no data in error", Frame: frame}
		}
		return "", nil, &RemoteError{Tag: env.Tag, Remote: *env.Error, Data: env.Data}
	}
	if env.Message == nil {
		return "", nil, &ProtocolError{Reason: "no error or message in frame", Frame: frame}
	}
	return env.Tag, env.Message, nil
}

// DecodeInto unmarshals a raw payload into a typed message and runs its
// field validation. Violations come back as *ProtocolError.
func DecodeInto(raw json.RawMessage, dst Validatable) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("payload: %v", err), Frame: raw}
	}
	if err := dst.Validate(); err != nil {
		return &ProtocolError{Reason: err.Error(), Frame: raw}
	}
	return nil
}

// Validatable is implemented by every inbound payload type.
type Validatable interface {
	Validate() error
}

// Trunc shortens a frame for log output.
func Trunc(frame []byte, limit int) string {
	if len(frame) > limit {
		return string(frame[:limit]) + "..."
	}
	return string(frame)
}
