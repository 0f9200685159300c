package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bloom.ai/plant-dashboard/internal/voice"
)

type VoiceToggleRequest struct {
	Action string `json:"action"` // "start" or "stop"
}

type VoiceStatusResponse struct {
	Status    string       `json:"status,omitempty"`
	State     string       `json:"state"`
	SessionID string       `json:"sessionId,omitempty"`
	Confirmed bool         `json:"confirmed"`
	Turns     []voice.Turn `json:"turns,omitempty"`
}

func (h *APIHandler) voiceStatus(status string) VoiceStatusResponse {
	resp := VoiceStatusResponse{Status: status, State: h.Bridge.State().String()}
	if s := h.Bridge.Active(); s != nil {
		resp.SessionID = s.ID
		resp.Confirmed = s.Confirmed()
		resp.Turns = s.Turns()
	}
	return resp
}

func (h *APIHandler) VoiceStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.voiceStatus(""))
}

// ToggleVoiceHandler starts or stops live transcription for the chat.
func (h *APIHandler) ToggleVoiceHandler(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req VoiceToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "start":
		if err := h.Chats.EnsureChat(r.Context(), chatID); err != nil {
			h.log.Error().Err(err).Str("chat_id", chatID).Msg("Error preparing chat for voice")
			http.Error(w, "Failed to prepare chat", http.StatusInternalServerError)
			return
		}
		if _, err := h.Bridge.Start(r.Context(), chatID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, h.voiceStatus(voice.StatusStarted))
	case "stop":
		writeJSON(w, http.StatusOK, h.voiceStatus(h.Bridge.Stop(r.Context())))
	default:
		http.Error(w, `action must be "start" or "stop"`, http.StatusBadRequest)
	}
}

// TranscriptHandler accepts transcript events produced in the browser.
func (h *APIHandler) TranscriptHandler(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var ev voice.TranscriptEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Bridge.DeliverTo(chatID, ev); err != nil {
		if errors.Is(err, voice.ErrNoActiveSession) {
			http.Error(w, "No active transcription for this chat", http.StatusConflict)
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("Error delivering transcript")
		http.Error(w, "Failed to deliver transcript", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
