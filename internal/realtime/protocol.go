package realtime

import (
	"encoding/json"

	"github.com/iyunix/go-designdesk/internal/domain"
)

// Frame types exchanged over the realtime websocket.
const (
	FrameJoin      = "join"
	FrameLeave     = "leave"
	FramePing      = "ping"
	FrameConnected = "connected"
	FrameJoined    = "joined"
	FrameLeft      = "left"
	FrameChange    = "change"
	FrameError     = "error"
	FramePong      = "pong"
)

// Frame is the single JSON envelope used in both directions.
type Frame struct {
	Type  string              `json:"type"`
	Topic string              `json:"topic,omitempty"`
	Ref   string              `json:"ref,omitempty"`
	Event *domain.ChangeEvent `json:"event,omitempty"`
	Code  string              `json:"code,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Encode marshals a frame; frames only hold marshalable fields.
func (f Frame) Encode() []byte {
	data, _ := json.Marshal(f)
	return data
}
