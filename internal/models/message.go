package models

import (
	"encoding/json"
	"time"
)

// MessageType is the discriminator of the client/server envelope.
type MessageType string

const (
	MessageAuth         MessageType = "auth"
	MessageAuthSuccess  MessageType = "auth_success"
	MessagePing         MessageType = "ping"
	MessagePong         MessageType = "pong"
	MessageDataRequest  MessageType = "data_request"
	MessageDataUpdate   MessageType = "data_update"
	MessageNotification MessageType = "notification"
	MessageSystemStatus MessageType = "system_status"
	MessageError        MessageType = "error"
)

// Envelope is the JSON frame every transport carries in both directions.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals payload into an envelope stamped with at.
func NewEnvelope(typ MessageType, payload any, at time.Time) (Envelope, error) {
	env := Envelope{Type: typ, Timestamp: at.UTC()}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// AuthPayload is sent by clients to bind an identity to their connection.
// Token, when present, takes precedence over the claimed user_id and role.
type AuthPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Token  string `json:"token,omitempty"`
}

// AuthSuccessPayload confirms the identity now bound to the connection.
type AuthSuccessPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
}

// PongPayload answers a ping.
type PongPayload struct {
	ServerTime time.Time `json:"server_time"`
}

// DataRequestPayload asks a collaborator for a named dataset.
type DataRequestPayload struct {
	Kind string `json:"kind"`
}

// DataUpdatePayload answers a data_request.
type DataUpdatePayload struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// ErrorPayload is the body of every error reply.
type ErrorPayload struct {
	Message string `json:"message"`
}
