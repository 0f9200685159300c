// Package voice runs transcription sessions: the dashboard-side bridge that
// toggles a remote voice endpoint, and the server-side agent that streams
// audio to Deepgram and turns final transcripts into chat turns.
package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"bloom.ai/plant-dashboard/internal/logger"
)

var (
	// ErrSessionClosed is returned when delivering to a session that was closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrMalformedEvent marks a transcription message that could not be decoded.
	ErrMalformedEvent = errors.New("malformed transcription event")
)

// TranscriptEvent is one speech-to-text result.
type TranscriptEvent struct {
	Text        string `json:"text"`
	IsFinal     bool   `json:"isFinal"`
	SpeechFinal bool   `json:"speechFinal,omitempty"`
}

// Forwarder sends a user turn for sessionID to the assistant and returns its reply.
type Forwarder func(ctx context.Context, sessionID, text string) (string, error)

// Turn is one forwarded user utterance and the reply it got.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Session owns the event channel of one transcription session. Events are
// handled in order by a single goroutine until Close.
type Session struct {
	ID string

	confirmed atomic.Bool
	events    chan TranscriptEvent
	done      chan struct{}
	forward   Forwarder
	ctx       context.Context
	cancel    context.CancelFunc
	log       *logger.Logger

	mu     sync.RWMutex // guards closed against sends on a closed channel
	closed bool

	turnsMu sync.Mutex
	turns   []Turn
}

func NewSession(id string, forward Forwarder, log *logger.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:      id,
		events:  make(chan TranscriptEvent, 64),
		done:    make(chan struct{}),
		forward: forward,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.WithField("session_id", id),
	}
	go s.run()
	return s
}

// Confirmed reports whether the transcription backend acknowledged the start.
func (s *Session) Confirmed() bool { return s.confirmed.Load() }

func (s *Session) setConfirmed(v bool) { s.confirmed.Store(v) }

// Deliver queues ev for the session. It blocks while the queue is full.
func (s *Session) Deliver(ev TranscriptEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.events <- ev
	return nil
}

// Close stops accepting events, waits for queued ones to be handled and
// releases the session. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done
	s.cancel()
}

// Turns returns the conversation so far.
func (s *Session) Turns() []Turn {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) run() {
	defer close(s.done)

	var lastFinal string
	for ev := range s.events {
		text := strings.TrimSpace(ev.Text)
		if !ev.IsFinal || text == "" {
			continue
		}
		if ev.Text == lastFinal {
			s.log.Debug().Str("text", text).Msg("Suppressed repeated transcript")
			continue
		}
		lastFinal = ev.Text

		reply, err := s.forward(s.ctx, s.ID, text)
		if err != nil {
			s.log.Error().Err(err).Str("text", text).Msg("Failed to forward transcript")
			continue
		}

		s.turnsMu.Lock()
		s.turns = append(s.turns, Turn{User: text, Assistant: reply})
		s.turnsMu.Unlock()
	}
}
