package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

const (
	defaultAPIBaseURL   = "https://api.deepgram.com/v1"
	defaultModel        = "nova-2"
	defaultChunkSize    = 4096
	defaultDrainTimeout = 3 * time.Second
)

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

var (
	ErrMissingAPIKey = errors.New("deepgram api key is not configured")
	ErrUnauthorized  = errors.New("deepgram rejected the api key")
)

// Config controls the Deepgram listen socket and the microphone feeding it.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool

	// Language overrides the recognition language when set. Deepgram expects
	// its own codes ("ar") rather than regional tags.
	Language string

	// EndpointingMs and UtteranceEndMs are sent only when positive.
	EndpointingMs  int
	UtteranceEndMs int

	Audio        ports.AudioConfig
	ChunkSize    int
	DrainTimeout time.Duration
}

// Recognizer implements ports.SpeechRecognizer by streaming microphone PCM
// to Deepgram's live transcription socket.
type Recognizer struct {
	cfg     Config
	capture ports.AudioCapture
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

func NewRecognizer(cfg Config, capture ports.AudioCapture, logger *zap.Logger) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recognizer{
		cfg:     cfg,
		capture: capture,
		dialer:  websocket.DefaultDialer,
		logger:  logger.Named("deepgram"),
	}
}

// Start opens the listen socket, then the microphone. The returned session
// has already queued its start event.
func (r *Recognizer) Start(ctx context.Context, rc ports.RecognitionConfig) (ports.RecognitionSession, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if r.capture == nil {
		return nil, errors.New("no audio capture configured")
	}

	wsURL, err := buildListenURL(r.cfg, rc)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, resp, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}

	mic, err := r.capture.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	session := &listenSession{
		conn:         conn,
		mic:          mic,
		logger:       r.logger,
		chunkSize:    r.cfg.ChunkSize,
		drainTimeout: r.cfg.DrainTimeout,
		events:       make(chan ports.RecognitionEvent, 32),
		done:         make(chan struct{}),
	}
	session.run(ctx)
	r.logger.Debug("listen session started", zap.String("language", listenLanguage(r.cfg, rc)))
	return session, nil
}

type listenSession struct {
	conn         *websocket.Conn
	mic          ports.AudioSession
	logger       *zap.Logger
	chunkSize    int
	drainTimeout time.Duration

	events chan ports.RecognitionEvent
	done   chan struct{}
	wg     sync.WaitGroup

	stopping  atomic.Bool
	aborted   atomic.Bool
	failed    atomic.Bool
	stopOnce  sync.Once
	abortOnce sync.Once
}

func (s *listenSession) run(ctx context.Context) {
	s.events <- ports.RecognitionEvent{Kind: ports.RecognitionStart}

	s.wg.Add(2)
	go s.readLoop()
	go s.pumpAudio()
	go func() {
		s.wg.Wait()
		_ = s.conn.Close()
		if err := s.mic.Close(); err != nil {
			s.logger.Debug("microphone closed with error", zap.Error(err))
		}
		s.events <- ports.RecognitionEvent{Kind: ports.RecognitionEnd}
		close(s.events)
		close(s.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Abort()
		case <-s.done:
		}
	}()
}

func (s *listenSession) Events() <-chan ports.RecognitionEvent {
	return s.events
}

// Stop ends capture and asks Deepgram to flush pending finals. The socket is
// force-closed if Deepgram does not hang up within the drain timeout.
func (s *listenSession) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		err = s.mic.Stop()
		go func() {
			select {
			case <-s.done:
			case <-time.After(s.drainTimeout):
				s.logger.Debug("deepgram did not close in time")
				_ = s.conn.Close()
			}
		}()
	})
	return err
}

// Abort drops the socket and the microphone without waiting for finals.
func (s *listenSession) Abort() error {
	var err error
	s.abortOnce.Do(func() {
		s.aborted.Store(true)
		s.stopping.Store(true)
		_ = s.conn.Close()
		err = s.mic.Abort()
	})
	return err
}

func (s *listenSession) pumpAudio() {
	defer s.wg.Done()

	buf := make([]byte, s.chunkSize)
	for {
		n, err := s.mic.Read(buf)
		if n > 0 {
			if writeErr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
				s.fail(domain.RecognitionErrorNetwork, fmt.Sprintf("send audio: %v", writeErr))
				return
			}
		}
		if err == nil {
			continue
		}
		if !s.stopping.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
			s.fail(domain.RecognitionErrorOther, fmt.Sprintf("audio capture: %v", err))
			_ = s.conn.Close()
			return
		}
		if s.aborted.Load() {
			return
		}
		if writeErr := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); writeErr != nil {
			s.fail(domain.RecognitionErrorNetwork, fmt.Sprintf("close stream: %v", writeErr))
		}
		return
	}
}

func (s *listenSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				s.fail(domain.RecognitionErrorNetwork, fmt.Sprintf("read deepgram message: %v", err))
			}
			s.stopping.Store(true)
			_ = s.mic.Abort()
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug("skipping malformed deepgram message", zap.Error(err))
			continue
		}

		if strings.EqualFold(msg.Type, "Error") {
			detail := strings.TrimSpace(msg.Message)
			if detail == "" {
				detail = "deepgram returned an unknown error"
			}
			s.fail(domain.RecognitionErrorOther, detail)
			s.stopping.Store(true)
			_ = s.conn.Close()
			_ = s.mic.Abort()
			return
		}

		text := msg.transcript()
		if text == "" {
			continue
		}
		s.events <- ports.RecognitionEvent{
			Kind:    ports.RecognitionUpdate,
			Results: []ports.RecognitionResult{{IsFinal: msg.IsFinal || msg.SpeechFinal, Text: text}},
		}
	}
}

// fail reports the first unexpected failure. Failures caused by our own
// shutdown are not reported.
func (s *listenSession) fail(category domain.RecognitionErrorCategory, detail string) {
	if s.stopping.Load() || !s.failed.CompareAndSwap(false, true) {
		return
	}
	s.logger.Warn("listen session failed", zap.String("category", string(category)), zap.String("detail", detail))
	s.events <- ports.RecognitionEvent{Kind: ports.RecognitionError, Error: category, Detail: detail}
}

type listenAlternative struct {
	Transcript string `json:"transcript"`
}

type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []listenAlternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []listenAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (m listenMessage) transcript() string {
	if len(m.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(m.Results.Channels) > 0 && len(m.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(m.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func listenLanguage(cfg Config, rc ports.RecognitionConfig) string {
	if language := strings.TrimSpace(cfg.Language); language != "" {
		return language
	}
	return strings.TrimSpace(rc.Language)
}

func buildListenURL(cfg Config, rc ports.RecognitionConfig) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = defaultAPIBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram api base url: %w", err)
	}

	sampleRate := cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := cfg.Audio.Channels
	if channels <= 0 {
		channels = 1
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	query := listenURL.Query()
	query.Set("model", model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", strconv.Itoa(channels))
	query.Set("interim_results", strconv.FormatBool(rc.InterimResults))
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if language := listenLanguage(cfg, rc); language != "" {
		query.Set("language", language)
	}
	if cfg.EndpointingMs > 0 {
		query.Set("endpointing", strconv.Itoa(cfg.EndpointingMs))
	}
	if cfg.UtteranceEndMs > 0 && rc.InterimResults {
		query.Set("utterance_end_ms", strconv.Itoa(cfg.UtteranceEndMs))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
