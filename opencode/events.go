package opencode

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Event types emitted on the stream. The enum is open: the server may send
// types we do not know about, and those decode to their raw form only.
const (
	EventMessageUpdated     = "message.updated"
	EventMessagePartUpdated = "message.part.updated"
	EventPermissionUpdated  = "permission.updated"
	EventSessionError       = "session.error"
	EventMessageError       = "message.error"
	EventUnknown            = "unknown"
)

// Event is one raw frame from the server event stream.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// MessageEventProperties is the decoded payload of message.updated and
// message.part.updated events.
type MessageEventProperties struct {
	SessionID string   `json:"sessionID"`
	Info      *Message `json:"info,omitempty"`
	Part      *Part    `json:"part,omitempty"`
	Parts     []Part   `json:"parts,omitempty"`
}

// ErrorDetail is the error object carried by session.error and
// message.error events.
type ErrorDetail struct {
	Name string `json:"name,omitempty"`
	Data struct {
		Message string `json:"message,omitempty"`
	} `json:"data"`
}

// Text returns the best human-readable description of the error.
func (e *ErrorDetail) Text() string {
	if e.Data.Message != "" {
		return e.Data.Message
	}
	if e.Name != "" {
		return e.Name
	}
	return "unknown error"
}

// ErrorEventProperties is the decoded payload of error events.
type ErrorEventProperties struct {
	SessionID string       `json:"sessionID"`
	MessageID string       `json:"messageID,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// StreamEvent is the decoded form of an Event. Exactly one of the typed
// fields is set for known event types; unknown types carry only Raw.
type StreamEvent struct {
	Type       string
	Message    *MessageEventProperties
	Permission *Permission
	Error      *ErrorEventProperties
	Raw        json.RawMessage
}

// DecodeEvent decodes a raw event into its typed form. Payloads that fail
// to decode leave the typed field nil; Raw always holds the original
// properties so nothing is lost.
func DecodeEvent(ev Event) *StreamEvent {
	out := &StreamEvent{Type: ev.Type, Raw: ev.Properties}

	switch ev.Type {
	case EventMessageUpdated, EventMessagePartUpdated:
		var props MessageEventProperties
		if err := json.Unmarshal(ev.Properties, &props); err == nil {
			out.Message = &props
		}
	case EventPermissionUpdated:
		var perm Permission
		if err := json.Unmarshal(ev.Properties, &perm); err == nil {
			out.Permission = &perm
		}
	case EventSessionError, EventMessageError:
		var props ErrorEventProperties
		if err := json.Unmarshal(ev.Properties, &props); err == nil {
			out.Error = &props
		}
	}
	return out
}

// sessionIDPaths are the places a session id can appear in event properties,
// checked in order.
var sessionIDPaths = []string{"sessionID", "info.sessionID", "part.sessionID"}

// SessionID returns the session id the event refers to, or "" when the event
// carries none. It reads the raw payload, so it works for unknown event
// types as well.
func (e *StreamEvent) SessionID() string {
	if len(e.Raw) == 0 {
		return ""
	}
	for _, path := range sessionIDPaths {
		if v := gjson.GetBytes(e.Raw, path); v.Exists() {
			return v.String()
		}
	}
	return ""
}
