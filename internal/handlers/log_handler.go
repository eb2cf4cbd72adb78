package handlers

import (
	"net/http"
	"strings"

	"github.com/iyunix/go-designdesk/internal/logger"
)

// ClientLogPayload is a diagnostic entry reported by a chat client.
type ClientLogPayload struct {
	Level          string `json:"level"` // info, warn, error
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Context        any    `json:"context,omitempty"`
}

type LogHandler struct {
	logger logger.Logger
}

func NewLogHandler(log logger.Logger) *LogHandler {
	return &LogHandler{logger: log}
}

// Report records a client-side diagnostic in the server log.
func (h *LogHandler) Report(w http.ResponseWriter, r *http.Request) {
	var payload ClientLogPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	kv := []interface{}{
		"client_message", payload.Message,
		"conversation_id", payload.ConversationID,
		"context", payload.Context,
		"remote_addr", r.RemoteAddr,
	}
	switch strings.ToLower(payload.Level) {
	case "error":
		h.logger.Error("CLIENT_LOG", kv...)
	case "warn", "warning":
		h.logger.Warn("CLIENT_LOG", kv...)
	case "debug":
		h.logger.Debug("CLIENT_LOG", kv...)
	default:
		h.logger.Info("CLIENT_LOG", kv...)
	}

	w.WriteHeader(http.StatusNoContent)
}
