package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bloom.ai/plant-dashboard/internal/logger"
)

type fakeStream struct {
	mu       sync.Mutex
	chunks   [][]byte
	finished bool
}

func (s *fakeStream) Send(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, audio)
	return nil
}

func (s *fakeStream) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	return nil
}

func (s *fakeStream) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

type fakeTranscriber struct {
	stream  *fakeStream
	onEvent func(TranscriptEvent)
	err     error
}

func (f *fakeTranscriber) Connect(_ context.Context, onEvent func(TranscriptEvent)) (LiveStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.onEvent = onEvent
	f.stream = &fakeStream{}
	return f.stream, nil
}

type fakeChats struct {
	mu      sync.Mutex
	ensured []string
}

func (f *fakeChats) EnsureChat(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, id)
	return nil
}

func TestAgent_ErrorTextsFollowGoConvention(t *testing.T) {
	for _, err := range []error{ErrAgentRunning, ErrAgentNotRunning} {
		msg := err.Error()
		if msg == "" || strings.ToLower(msg[:1]) != msg[:1] {
			t.Errorf("error %q should start lowercase", msg)
		}
	}
}

func TestAgent_StartStop(t *testing.T) {
	tr := &fakeTranscriber{}
	chats := &fakeChats{}
	fwd := &recordingForwarder{}
	a := NewAgent(tr, chats, fwd.forward, logger.Nop())
	ctx := context.Background()

	if err := a.Stop(); !errors.Is(err, ErrAgentNotRunning) {
		t.Errorf("Stop while idle = %v", err)
	}
	if err := a.Start(ctx, "chat-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(ctx, "chat-2"); !errors.Is(err, ErrAgentRunning) {
		t.Errorf("second Start = %v, want ErrAgentRunning", err)
	}
	if len(chats.ensured) != 1 || chats.ensured[0] != "chat-1" {
		t.Errorf("ensured chats = %v", chats.ensured)
	}

	tr.onEvent(TranscriptEvent{Text: "water", IsFinal: false})
	tr.onEvent(final("water the fern"))
	tr.onEvent(final("water the fern"))
	tr.onEvent(final("check soil"))

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !tr.stream.finished {
		t.Error("stream was not finished")
	}
	if got := fwd.forwarded(); len(got) != 2 {
		t.Errorf("forwarded %v, want 2 turns", got)
	}
	if _, running := a.Running(); running {
		t.Error("agent still running after stop")
	}
}

func TestAgent_ConnectFailure(t *testing.T) {
	a := NewAgent(&fakeTranscriber{err: errors.New("dial refused")}, &fakeChats{}, (&recordingForwarder{}).forward, logger.Nop())
	if err := a.Start(context.Background(), "chat-1"); err == nil {
		t.Fatal("expected error")
	}
	if _, running := a.Running(); running {
		t.Error("agent should stay idle")
	}
}

func TestAgent_Routes(t *testing.T) {
	tr := &fakeTranscriber{}
	a := NewAgent(tr, &fakeChats{}, (&recordingForwarder{}).forward, logger.Nop())
	srv := httptest.NewServer(a.Routes())
	defer srv.Close()

	post := func(path string) (int, map[string]string) {
		t.Helper()
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		defer resp.Body.Close()
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	if code, body := post("/start"); code != http.StatusBadRequest || body["detail"] == "" {
		t.Errorf("start without chat_id = %d %v", code, body)
	}
	if code, body := post("/stop"); code != http.StatusBadRequest || body["detail"] != "Voice agent is not running" {
		t.Errorf("stop while idle = %d %v", code, body)
	}
	if code, body := post("/start?chat_id=abc123"); code != http.StatusOK || body["chat_id"] != "abc123" {
		t.Errorf("start = %d %v", code, body)
	}
	if code, body := post("/start?chat_id=abc123"); code != http.StatusBadRequest || body["detail"] != "Voice agent is already running" {
		t.Errorf("second start = %d %v", code, body)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/audio", nil)
	if err != nil {
		t.Fatalf("dial audio: %v", err)
	}
	conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
	conn.WriteMessage(websocket.BinaryMessage, []byte{4, 5})

	deadline := time.Now().Add(2 * time.Second)
	for tr.stream.sent() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := tr.stream.sent(); n != 2 {
		t.Errorf("relayed %d chunks, want 2", n)
	}
	conn.Close()

	if code, body := post("/stop"); code != http.StatusOK || body["message"] != "Voice agent stopped" {
		t.Errorf("stop = %d %v", code, body)
	}
}
