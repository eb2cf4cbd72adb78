// File: internal/handlers/message_handler.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-designdesk/internal/domain"
	"github.com/iyunix/go-designdesk/internal/logger"
	"github.com/iyunix/go-designdesk/internal/middleware"
	"github.com/iyunix/go-designdesk/internal/services/messaging"
)

type MessageHandler struct {
	Messages *messaging.Service
	logger   logger.Logger
}

func NewMessageHandler(svc *messaging.Service, log logger.Logger) *MessageHandler {
	return &MessageHandler{Messages: svc, logger: log}
}

// messageView adds the rendered body to the stored row.
type messageView struct {
	domain.Message
	BodyHTML string `json:"body_html"`
}

func (h *MessageHandler) view(m domain.Message) messageView {
	return messageView{Message: m, BodyHTML: h.Messages.RenderBody(m.Body)}
}

// List returns a conversation's messages ordered by creation time. With
// limit/offset it returns one page and sets X-Total-Count.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conversationID := q.Get("conversation_id")

	var (
		msgs []domain.Message
		err  error
	)
	if rawLimit := q.Get("limit"); rawLimit != "" {
		limit, convErr := strconv.Atoi(rawLimit)
		offset, offErr := strconv.Atoi(q.Get("offset"))
		if q.Get("offset") == "" {
			offset, offErr = 0, nil
		}
		if convErr != nil || offErr != nil {
			writeError(w, http.StatusBadRequest, middleware.CodeInvalidRequest, "Invalid pagination parameters")
			return
		}
		var total int64
		msgs, total, err = h.Messages.ListPage(r.Context(), conversationID, limit, offset)
		if err == nil {
			w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
		}
	} else {
		msgs, err = h.Messages.List(r.Context(), conversationID)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, h.view(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// Conversations returns the inbox: one summary row per conversation.
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, middleware.CodeInvalidRequest, "Invalid limit")
			return
		}
		limit = n
	}
	summaries, err := h.Messages.Conversations(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Create stores a message from the authenticated account.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req struct {
		ConversationID string `json:"conversation_id"`
		Body           string `json:"body"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.Messages.Send(r.Context(), accountID, req.ConversationID, req.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(*msg))
}

// Update edits the body of the caller's own message.
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	var req struct {
		Body string `json:"body"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.Messages.Edit(r.Context(), accountID, mux.Vars(r)["id"], req.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*msg))
}

// Delete removes the caller's own message.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	if err := h.Messages.Delete(r.Context(), accountID, mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch messaging.TypeOf(err) {
	case messaging.ErrTypeValidation:
		writeError(w, http.StatusBadRequest, middleware.CodeInvalidRequest, err.Error())
	case messaging.ErrTypeNotFound:
		writeError(w, http.StatusNotFound, middleware.CodeNotFound, "Message not found")
	case messaging.ErrTypeForbidden:
		writeError(w, http.StatusForbidden, middleware.CodeForbidden, "Only the author may change this message")
	case messaging.ErrTypeOwnership:
		writeError(w, http.StatusConflict, middleware.CodeOwnershipViolation, "Create your profile before sending messages")
	default:
		h.logger.Error("message request failed", "error", err)
		writeError(w, http.StatusInternalServerError, middleware.CodeInternal, "Could not process message request")
	}
}
