package realtime

import (
	"encoding/json"
	"time"
)

// FrameType identifies the purpose of a frame on the socket
type FrameType string

const (
	FrameReady       FrameType = "ready"       // server -> client, handshake complete
	FrameSubscribe   FrameType = "subscribe"   // client -> server
	FrameUnsubscribe FrameType = "unsubscribe" // client -> server
	FramePublish     FrameType = "publish"     // client -> server
	FrameMessage     FrameType = "message"     // server -> client, channel payload
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
	FrameError       FrameType = "error"
)

// Frame is the JSON envelope for everything sent over the socket
type Frame struct {
	Type      FrameType       `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Message is a channel payload delivered to a Handler
type Message struct {
	Channel   string
	Data      json.RawMessage
	Timestamp time.Time
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}
