package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bloom.ai/plant-dashboard/internal/logger"
)

const (
	keepAliveInterval = 8 * time.Second
	finishTimeout     = 5 * time.Second
)

// LiveStream is an open live-transcription connection.
type LiveStream interface {
	// Send forwards a chunk of encoded audio.
	Send(audio []byte) error
	// Finish flushes pending audio and closes the connection.
	Finish() error
}

// Transcriber opens live-transcription streams. onEvent is called from the
// stream's read goroutine for every decoded transcript.
type Transcriber interface {
	Connect(ctx context.Context, onEvent func(TranscriptEvent)) (LiveStream, error)
}

// DeepgramClient opens live transcription connections to Deepgram.
type DeepgramClient struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
	log     *logger.Logger
}

func NewDeepgramClient(apiKey, baseURL string, log *logger.Logger) *DeepgramClient {
	return &DeepgramClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:     log.WithComponent("deepgram"),
	}
}

func (c *DeepgramClient) listenURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("filler_words", "true")
	q.Set("utterance_end_ms", "3000")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DeepgramClient) Connect(ctx context.Context, onEvent func(TranscriptEvent)) (LiveStream, error) {
	target, err := c.listenURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+c.apiKey)
	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram dial failed: %w", err)
	}
	c.log.Info().Msg("Connection opened")

	s := &deepgramStream{
		conn:     conn,
		onEvent:  onEvent,
		readDone: make(chan struct{}),
		stop:     make(chan struct{}),
		log:      c.log,
	}
	go s.readLoop()
	go s.keepAlive()
	return s, nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	onEvent func(TranscriptEvent)
	log     *logger.Logger

	writeMu  sync.Mutex
	readDone chan struct{}
	stop     chan struct{}
	once     sync.Once
}

func (s *deepgramStream) Send(audio []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (s *deepgramStream) writeControl(msgType string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(map[string]string{"type": msgType})
}

// Finish asks Deepgram to flush and close, then waits for the server to
// end the stream.
func (s *deepgramStream) Finish() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		if werr := s.writeControl("CloseStream"); werr != nil {
			s.log.Warn().Err(werr).Msg("Failed to send CloseStream")
		}
		select {
		case <-s.readDone:
		case <-time.After(finishTimeout):
			s.log.Warn().Msg("Deepgram did not close the stream in time")
		}
		err = s.conn.Close()
		s.log.Info().Msg("Stopped live transcription")
	})
	return err
}

func (s *deepgramStream) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.readDone:
			return
		case <-ticker.C:
			if err := s.writeControl("KeepAlive"); err != nil {
				s.log.Warn().Err(err).Msg("Keep-alive failed")
				return
			}
		}
	}
}

func (s *deepgramStream) readLoop() {
	defer close(s.readDone)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				select {
				case <-s.stop:
				default:
					s.log.Error().Err(err).Msg("Deepgram connection closed")
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, ok, err := decodeEvent(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("Skipping transcription message")
			continue
		}
		if ok {
			s.onEvent(ev)
		}
	}
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     *struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeEvent turns a Deepgram message into a TranscriptEvent. Messages
// other than Results are reported with ok false.
func decodeEvent(data []byte) (ev TranscriptEvent, ok bool, err error) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TranscriptEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if msg.Type != "Results" {
		return TranscriptEvent{}, false, nil
	}
	if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
		return TranscriptEvent{}, false, fmt.Errorf("%w: results without alternatives", ErrMalformedEvent)
	}
	return TranscriptEvent{
		Text:        msg.Channel.Alternatives[0].Transcript,
		IsFinal:     msg.IsFinal,
		SpeechFinal: msg.SpeechFinal,
	}, true, nil
}
