package connection

import "encoding/json"

// EventType identifies the kind of event emitted toward the observer.
type EventType string

const (
	EventConnected         EventType = "connected"
	EventDisconnected      EventType = "disconnected"
	EventError             EventType = "error"
	EventSubscribed        EventType = "subscribed"
	EventSubscriptionError EventType = "subscription-error"
	EventPublication       EventType = "publication"
)

// Event is a tagged notification from the session toward its observer.
// Fields beyond Type are populated per event kind:
//
//	Disconnected       — Reason
//	Error              — Err
//	Subscribed         — Handle
//	SubscriptionError  — Handle, Err
//	Publication        — Handle, Data (passed through verbatim)
type Event struct {
	Type   EventType       `json:"type"`
	Handle string          `json:"handle,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Err    string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Disconnect reasons reported on the Disconnected event.
const (
	ReasonConnectionClosed = "Connection closed"
	ReasonUserDisconnected = "User disconnected"
)
