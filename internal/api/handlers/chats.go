package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/auth"
	"github.com/nikhilbhutani/pagescribe/internal/chat"
	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/store"
)

type Conversations interface {
	Open(ctx context.Context, userID, transcriptionID uuid.UUID) ([]models.ChatMessage, error)
	Send(ctx context.Context, userID, transcriptionID uuid.UUID, text, apiKey string) ([]models.ChatMessage, error)
}

type ChatHandler struct {
	chats Conversations
}

func NewChatHandler(chats Conversations) *ChatHandler {
	return &ChatHandler{chats: chats}
}

func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	msgs, err := h.chats.Open(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendRequest struct {
	Message string `json:"message"`
	APIKey  string `json:"api_key"`
}

// Send appends a user message and the model's answer. A provider failure is
// not an HTTP error: it comes back as an "error" message in the thread.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIKey == "" {
		req.APIKey = r.Header.Get("X-Provider-Key")
	}
	msgs, err := h.chats.Send(r.Context(), auth.UserIDFromContext(r.Context()), id, req.Message, req.APIKey)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "transcription not found")
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("chat", "error", err)
		writeError(w, http.StatusInternalServerError, "chat failed")
	}
}
