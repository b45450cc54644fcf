package ws

import "encoding/json"

// Envelope wraps every inbound WS frame.
type Envelope struct {
	ID    string          `json:"id,omitempty"`   // echoed back on the reply
	Event string          `json:"event"`          // e.g. "JoinRoom"
	Body  json.RawMessage `json:"body,omitempty"` // call parameters
}

// frame is the outbound counterpart of Envelope: replies and pushes.
type frame struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// JoinRoomRequest is the body for "JoinRoom".
type JoinRoomRequest struct {
	Room        string `json:"room"        validate:"required,max=128"`
	PeerID      string `json:"peerId"      validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"required,max=64"`
}

// BroadcastMessageRequest is the body for "BroadcastMessage". Room and
// SenderName may be omitted; they are taken from the caller's membership.
type BroadcastMessageRequest struct {
	Room       string `json:"room"       validate:"max=128"`
	SenderName string `json:"senderName" validate:"max=64"`
	Text       string `json:"text"       validate:"required,max=4096"`
}

// PeerSignalRequest is the body for the toggle calls (RaiseHand, ...).
type PeerSignalRequest struct {
	Room   string `json:"room"   validate:"max=128"`
	PeerID string `json:"peerId" validate:"max=128"`
}

// Empty ACK body.
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error   string `json:"error"`
	Request string `json:"request,omitempty"`
}
