package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"bloom.ai/plant-dashboard/internal/logger"
)

// State is the lifecycle of the bridge's transcription session.
type State int

const (
	Idle State = iota
	Starting
	Active
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Active:
		return "active"
	default:
		return "idle"
	}
}

const (
	StatusStarted  = "Transcription started"
	StatusStopped  = "Transcription stopped"
	StatusNoActive = "No active transcription to stop"
)

var ErrNoActiveSession = errors.New("no active transcription session")

// Bridge toggles a remote transcription endpoint and holds at most one
// active session. Start and stop never fail because the endpoint did: the
// outcome is logged and the session proceeds.
type Bridge struct {
	endpoint string
	client   *http.Client
	forward  Forwarder
	log      *logger.Logger

	ctl sync.Mutex // serializes Start and Stop

	mu      sync.Mutex
	state   State
	session *Session
}

func NewBridge(endpoint string, forward Forwarder, log *logger.Logger) *Bridge {
	return &Bridge{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		forward:  forward,
		log:      log.WithComponent("voice_bridge"),
	}
}

// Start opens a session for sessionID. A different active session is
// stopped first; starting the active session again returns it unchanged.
func (b *Bridge) Start(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	b.ctl.Lock()
	defer b.ctl.Unlock()

	if current := b.Active(); current != nil {
		if current.ID == sessionID {
			return current, nil
		}
		b.stopLocked(ctx)
	}

	b.setState(Starting, nil)

	confirmed := b.post(ctx, "/start?chat_id="+url.QueryEscape(sessionID))
	session := NewSession(sessionID, b.forward, b.log)
	session.setConfirmed(confirmed)

	b.setState(Active, session)
	b.log.Info().Str("session_id", sessionID).Bool("confirmed", confirmed).Msg(StatusStarted)
	return session, nil
}

// Stop ends the active session and reports what happened.
func (b *Bridge) Stop(ctx context.Context) string {
	b.ctl.Lock()
	defer b.ctl.Unlock()

	if b.Active() == nil {
		return StatusNoActive
	}
	b.stopLocked(ctx)
	return StatusStopped
}

func (b *Bridge) stopLocked(ctx context.Context) {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	b.post(ctx, "/stop")
	session.Close()
	b.setState(Idle, nil)
	b.log.Info().Str("session_id", session.ID).Msg(StatusStopped)
}

// Deliver hands a transcript event to the active session.
func (b *Bridge) Deliver(ev TranscriptEvent) error {
	return b.deliver(b.Active(), ev)
}

// DeliverTo hands ev to the active session only if it is sessionID. A
// session replaced after the lookup is already closed, so the event is
// never queued on another session.
func (b *Bridge) DeliverTo(sessionID string, ev TranscriptEvent) error {
	b.mu.Lock()
	var session *Session
	if b.state == Active && b.session != nil && b.session.ID == sessionID {
		session = b.session
	}
	b.mu.Unlock()
	return b.deliver(session, ev)
}

func (b *Bridge) deliver(session *Session, ev TranscriptEvent) error {
	if session == nil {
		return ErrNoActiveSession
	}
	if err := session.Deliver(ev); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return ErrNoActiveSession
		}
		return err
	}
	return nil
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Active returns the active session or nil.
func (b *Bridge) Active() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Active {
		return nil
	}
	return b.session
}

func (b *Bridge) setState(state State, session *Session) {
	b.mu.Lock()
	b.state = state
	b.session = session
	b.mu.Unlock()
}

// post calls the voice endpoint and reports whether it answered 2xx.
func (b *Bridge) post(ctx context.Context, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+path, nil)
	if err != nil {
		b.log.Error().Err(err).Str("path", path).Msg("Error toggling transcription")
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Error().Err(err).Str("path", path).Msg("Error toggling transcription")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		b.log.Warn().Int("status", resp.StatusCode).Str("path", path).Str("body", string(body)).Msg("Voice endpoint rejected request")
		return false
	}
	return true
}
