package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bloom.ai/plant-dashboard/internal/core"
	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
	"bloom.ai/plant-dashboard/internal/telemetry"
	"bloom.ai/plant-dashboard/internal/voice"
)

// Services bundles what the handlers call into. Expressions and Agent may
// be nil when the feature is disabled.
type Services struct {
	Store       store.Store
	Chats       *core.ChatService
	Assistant   *core.Assistant
	Expressions *core.ExpressionService
	Feed        *telemetry.Feed
	Bridge      *voice.Bridge
	Agent       *voice.Agent
	JWTSecret   string
}

type APIHandler struct {
	Services
	log *logger.Logger
}

func NewAPIHandler(s Services, log *logger.Logger) *APIHandler {
	return &APIHandler{Services: s, log: log.WithComponent("api")}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type HealthResponse struct {
	Status string `json:"status"`
	// TelemetrySubscribers counts open live telemetry feeds.
	TelemetrySubscribers int `json:"telemetry_subscribers"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:               "ok",
		TelemetrySubscribers: h.Store.Changes().Subscribers(store.TopicTelemetry),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("Health check failed")
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type CreateChatRequest struct {
	ID string `json:"id,omitempty"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	chat, err := h.Chats.CreateChat(r.Context(), req.ID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", req.ID).Msg("Error creating chat")
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	messages, err := h.Chats.Messages(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("Error listing messages")
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	modelMessage, err := h.Chats.PostMessage(r.Context(), chatID, req.Content)
	if err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
		} else {
			h.log.Error().Err(err).Str("chat_id", chatID).Msg("Error posting message")
			http.Error(w, "Failed to post message", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, modelMessage)
}

func (h *APIHandler) MessageStreamHandler(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if _, err := h.Chats.GetChat(r.Context(), chatID); err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("Error loading chat")
		http.Error(w, "Failed to load chat", http.StatusInternalServerError)
		return
	}

	h.stream(w, r, func(ctx context.Context, send func(v interface{})) func() {
		return h.Chats.Subscribe(ctx, chatID, func(messages []store.Message) {
			if messages == nil {
				messages = []store.Message{}
			}
			send(messages)
		})
	})
}
