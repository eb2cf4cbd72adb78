package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/middleware"
	"github.com/iyunix/go-designdesk/internal/realtime"
)

const (
	readLimit = 4096
	pongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The api key already gates the endpoint; browsers on other origins are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RealtimeHandler struct {
	hub    *realtime.Hub
	logger logger.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, log logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, logger: log}
}

// Serve upgrades the request and runs the topic join/leave protocol until the
// client disconnects.
func (h *RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	accountID, _ := middleware.AccountID(r.Context())
	conn := realtime.NewConnection(accountID, ws)
	conn.Start()
	defer func() {
		h.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "")
		h.logger.Debug("realtime connection closed", "connection", conn.ID())
	}()

	h.logger.Debug("realtime connection opened", "connection", conn.ID(), "account", accountID)
	_ = conn.Send(realtime.Frame{Type: realtime.FrameConnected}.Encode())

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("realtime read failed", "connection", conn.ID(), "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(conn, data)
	}
}

func (h *RealtimeHandler) handleFrame(conn *realtime.Connection, data []byte) {
	var in realtime.Frame
	if err := json.Unmarshal(data, &in); err != nil {
		_ = conn.Send(realtime.Frame{Type: realtime.FrameError, Code: middleware.CodeInvalidRequest, Error: "malformed frame"}.Encode())
		return
	}

	switch in.Type {
	case realtime.FrameJoin:
		if !domain.ValidTopic(in.Topic) {
			_ = conn.Send(realtime.Frame{Type: realtime.FrameError, Topic: in.Topic, Ref: in.Ref, Code: middleware.CodeInvalidRequest, Error: "unknown topic"}.Encode())
			return
		}
		h.hub.Join(in.Topic, conn)
		_ = conn.Send(realtime.Frame{Type: realtime.FrameJoined, Topic: in.Topic, Ref: in.Ref}.Encode())
	case realtime.FrameLeave:
		h.hub.Leave(in.Topic, conn)
		_ = conn.Send(realtime.Frame{Type: realtime.FrameLeft, Topic: in.Topic, Ref: in.Ref}.Encode())
	case realtime.FramePing:
		_ = conn.Send(realtime.Frame{Type: realtime.FramePong, Ref: in.Ref}.Encode())
	default:
		_ = conn.Send(realtime.Frame{Type: realtime.FrameError, Ref: in.Ref, Code: middleware.CodeInvalidRequest, Error: "unsupported frame type"}.Encode())
	}
}
