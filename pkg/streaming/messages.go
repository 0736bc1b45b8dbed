package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

// Message type constants of the marker streaming protocol.
const (
	// server -> client
	TypeUpdate   = "update"
	TypeFullSync = "full_sync"
	TypeAck      = "ack"
	TypeError    = "error"

	// client -> server
	TypeFeedback  = "feedback"
	TypeResync    = "resync"
	TypeKeepAlive = "keep_alive"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement of a client message.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// ErrorPayload reports a rejected client message.
type ErrorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// MarshalBatch encodes a batch as an update or full_sync envelope depending on
// its FullSync flag.
func MarshalBatch(batch core.UpdateBatch) ([]byte, error) {
	if batch.FullSync {
		return Marshal(TypeFullSync, batch)
	}
	return Marshal(TypeUpdate, batch)
}

// Unmarshal decodes an envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope without type")
	}
	return env, nil
}

// DecodeFeedback decodes the payload of a feedback envelope.
func DecodeFeedback(env Envelope) (core.Feedback, error) {
	var fb core.Feedback
	if err := json.Unmarshal(env.Payload, &fb); err != nil {
		return core.Feedback{}, fmt.Errorf("unmarshal feedback payload: %w", err)
	}
	if fb.MarkerName == "" {
		return core.Feedback{}, fmt.Errorf("feedback without marker name")
	}
	return fb, nil
}

// DecodeBatch decodes the payload of an update or full_sync envelope.
func DecodeBatch(env Envelope) (core.UpdateBatch, error) {
	var b core.UpdateBatch
	if err := json.Unmarshal(env.Payload, &b); err != nil {
		return core.UpdateBatch{}, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return b, nil
}

// Health is the body of the server's health endpoint.
type Health struct {
	Status         string  `json:"status"`
	Namespace      string  `json:"namespace"`
	Markers        int     `json:"markers"`
	Pending        int     `json:"pending"`
	Seq            uint64  `json:"seq"`
	Subscribers    int     `json:"subscribers"`
	Uptime         string  `json:"uptime"`
	LastSnapshotMs float32 `json:"lastSnapshotMs"`
}
