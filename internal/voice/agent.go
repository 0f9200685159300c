package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"bloom.ai/plant-dashboard/internal/logger"
)

var (
	ErrAgentRunning    = errors.New("voice agent is already running")
	ErrAgentNotRunning = errors.New("voice agent is not running")
)

// Details returned to the dashboard by the agent routes.
const (
	detailRunning    = "Voice agent is already running"
	detailNotRunning = "Voice agent is not running"
)

// ChatOpener makes sure the chat a voice session writes to exists.
type ChatOpener interface {
	EnsureChat(ctx context.Context, chatID string) error
}

// Agent is the server side of the voice endpoint: it streams microphone
// audio to a Transcriber and forwards final transcripts as chat turns.
// One agent session runs at a time.
type Agent struct {
	transcriber Transcriber
	chats       ChatOpener
	forward     Forwarder
	log         *logger.Logger

	mu      sync.Mutex
	session *Session
	stream  LiveStream
}

func NewAgent(t Transcriber, chats ChatOpener, forward Forwarder, log *logger.Logger) *Agent {
	return &Agent{
		transcriber: t,
		chats:       chats,
		forward:     forward,
		log:         log.WithComponent("voice_agent"),
	}
}

func (a *Agent) Start(ctx context.Context, chatID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return ErrAgentRunning
	}

	if err := a.chats.EnsureChat(ctx, chatID); err != nil {
		return fmt.Errorf("failed to prepare chat: %w", err)
	}

	session := NewSession(chatID, a.forward, a.log)
	// The stream outlives the request that started it.
	stream, err := a.transcriber.Connect(context.WithoutCancel(ctx), func(ev TranscriptEvent) {
		if err := session.Deliver(ev); err != nil && !errors.Is(err, ErrSessionClosed) {
			a.log.Warn().Err(err).Msg("Dropping transcript")
		}
	})
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to start voice agent: %w", err)
	}
	session.setConfirmed(true)

	a.session, a.stream = session, stream
	a.log.Info().Str("chat_id", chatID).Msg("Voice agent started")
	return nil
}

func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ErrAgentNotRunning
	}

	if err := a.stream.Finish(); err != nil {
		a.log.Warn().Err(err).Msg("Error finishing transcription stream")
	}
	a.session.Close()
	a.log.Info().Str("chat_id", a.session.ID).Int("turns", len(a.session.Turns())).Msg("Voice agent stopped")
	a.session, a.stream = nil, nil
	return nil
}

// SendAudio relays an audio chunk to the running stream.
func (a *Agent) SendAudio(chunk []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return ErrAgentNotRunning
	}
	return stream.Send(chunk)
}

// Running reports the chat id of the running session, if any.
func (a *Agent) Running() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return "", false
	}
	return a.session.ID, true
}

// Routes mounts /start, /stop and /audio.
func (a *Agent) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/start", a.handleStart)
	r.Post("/stop", a.handleStop)
	r.Get("/audio", a.handleAudio)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (a *Agent) handleStart(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		writeDetail(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	err := a.Start(r.Context(), chatID)
	switch {
	case errors.Is(err, ErrAgentRunning):
		writeDetail(w, http.StatusBadRequest, detailRunning)
	case err != nil:
		a.log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to start voice agent")
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Voice agent started", "chat_id": chatID})
	}
}

func (a *Agent) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.Stop(); err != nil {
		writeDetail(w, http.StatusBadRequest, detailNotRunning)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Voice agent stopped"})
}

var audioUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleAudio relays binary frames from the browser microphone.
func (a *Agent) handleAudio(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.Running(); !ok {
		writeDetail(w, http.StatusBadRequest, detailNotRunning)
		return
	}
	conn, err := audioUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("Audio websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := a.SendAudio(data); err != nil {
			a.log.Warn().Err(err).Msg("Audio relay stopped")
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, err.Error()))
			return
		}
	}
}
