/*
Package relay contains the connection router for the chat relay.

This file defines the wire protocol: the JSON envelope exchanged on every
WebSocket connection and the payload shapes of each named event.
*/
package relay

import "encoding/json"

// Client to server event types.
const (
	EventLogin  = "user:login"
	EventResume = "user:resume"
	EventJoin   = "chat:join"
	EventLeave  = "chat:leave"
	EventSend   = "message:send"
)

// Server to client event types.
const (
	EventSessionCreated = "session:created"
	EventRoomList       = "chat:list"
	EventRoomCreated    = "chat:created"
	EventRoomUsers      = "chat:users"
	EventRoomHistory    = "chat:history"
	EventRoomMessage    = "chat:message"
)

// inboundTypes is the set of event types clients are allowed to send.
// Anything else is dropped before it reaches the hub.
var inboundTypes = map[string]struct{}{
	EventLogin:  {},
	EventResume: {},
	EventJoin:   {},
	EventLeave:  {},
	EventSend:   {},
}

// Envelope is the framing for every event in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResumePayload carries a session resume request. CurrentChat optionally names
// the room the client was viewing when the previous connection dropped.
type ResumePayload struct {
	Username    string `json:"username"`
	SessionID   string `json:"sessionId"`
	CurrentChat string `json:"currentChat,omitempty"`
}

// RoomPayload carries chat:join and chat:leave requests.
type RoomPayload struct {
	Chat      string `json:"chat"`
	User      string `json:"user"`
	SessionID string `json:"sessionId"`
}

// SendPayload carries a message:send request.
type SendPayload struct {
	Chat      string `json:"chat"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"sessionId"`
}

// SessionCreatedPayload tells a client the token it should persist for resume.
type SessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
}

// RoomUsersPayload carries the derived user list of a room after a membership change.
type RoomUsersPayload struct {
	Chat  string   `json:"chat"`
	Users []string `json:"users"`
}

// marshalEnvelope builds the wire bytes for an outbound event. Payload
// marshaling failures are reported to the caller; nothing is sent.
func marshalEnvelope(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
