// Package server defines the wire envelope exchanged over realtime
// connections and utility helpers reused across client and hub logic.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event names carried in Envelope.Event.
const (
	EventJoinConversation    = "join_conversation"
	EventLeaveConversation   = "leave_conversation"
	EventNewMessage          = "new_message"
	EventNotificationCreated = "notification:created"
	EventError               = "error"
)

// Error codes carried by EventError payloads.
const (
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeInvalidPayload   = "invalid_payload"
	CodeUnsupportedEvent = "unsupported_event"
	CodeInternal         = "internal"
)

// Envelope is the JSON frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an EventError envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeEnvelope marshals data under the given event name.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// conversationIDFrom accepts either a bare JSON string or {"conversationId": "..."}.
func conversationIDFrom(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		id = strings.TrimSpace(id)
		return id, id != ""
	}

	var obj struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		id = strings.TrimSpace(obj.ConversationID)
		return id, id != ""
	}
	return "", false
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
