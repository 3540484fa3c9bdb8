package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

var ErrSessionCancelled = errors.New("voice session cancelled before recognition started")

// VoiceConfig controls the recognition sessions a VoiceController requests.
type VoiceConfig struct {
	Recognition ports.RecognitionConfig
}

// DefaultRecognitionConfig is a continuous Algerian Arabic session with
// interim results.
func DefaultRecognitionConfig() ports.RecognitionConfig {
	return ports.RecognitionConfig{
		Language:       "ar-DZ",
		InterimResults: true,
		Continuous:     true,
	}
}

// VoiceController is the voice capture state machine. Recognizer callbacks
// arrive as RecognitionEvent messages tagged with the session id they belong
// to; anything not matching the live session is dropped.
type VoiceController struct {
	recognizer ports.SpeechRecognizer
	events     ports.EventSink
	logger     *zap.Logger
	cfg        VoiceConfig
	newID      func() string

	mu        sync.Mutex
	open      bool
	phase     domain.VoicePhase
	buffer    transcriptBuffer
	lastError string
	current   *voiceSession
}

type voiceSession struct {
	id     string
	handle ports.RecognitionSession
	done   chan struct{}
}

func NewVoiceController(recognizer ports.SpeechRecognizer, events ports.EventSink, logger *zap.Logger, cfg VoiceConfig) *VoiceController {
	if cfg.Recognition.Language == "" {
		cfg.Recognition = DefaultRecognitionConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoiceController{
		recognizer: recognizer,
		events:     events,
		logger:     logger.Named("voice"),
		cfg:        cfg,
		newID:      uuid.NewString,
		phase:      domain.VoicePhaseIdle,
	}
}

// Open starts a fresh voice session, discarding anything left from a previous one.
func (c *VoiceController) Open() {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.open = true
	c.phase = domain.VoicePhaseIdle
	c.buffer.Reset()
	c.lastError = ""
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.abortSession(previous)
	c.emit(snapshot)
}

// StartListening asks the recognizer for a new continuous session. The phase
// becomes listening once the recognizer reports that it started.
func (c *VoiceController) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if !c.open || c.current != nil || (c.phase != domain.VoicePhaseIdle && c.phase != domain.VoicePhaseError) {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidTransition, phase)
	}
	if c.recognizer == nil {
		c.phase = domain.VoicePhaseError
		c.lastError = domain.UnsupportedMessage()
		snapshot := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(snapshot)
		return domain.ErrRecognizerUnavailable
	}

	session := &voiceSession{id: c.newID()}
	c.current = session
	c.phase = domain.VoicePhaseIdle
	c.lastError = ""
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snapshot)

	handle, err := c.recognizer.Start(ctx, c.cfg.Recognition)

	c.mu.Lock()
	if c.current != session {
		c.mu.Unlock()
		if handle != nil {
			_ = handle.Abort()
			go drainRecognitionEvents(handle)
		}
		return ErrSessionCancelled
	}
	if err != nil {
		c.current = nil
		c.phase = domain.VoicePhaseError
		c.lastError = domain.StartFailedMessage()
		snapshot = c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Warn("start recognition failed", zap.Error(err))
		c.emit(snapshot)
		return fmt.Errorf("start recognition: %w", err)
	}
	session.handle = handle
	session.done = make(chan struct{})
	c.mu.Unlock()

	go consumeRecognitionEvents(session.id, handle, c.HandleEvent, session.done)
	return nil
}

// HandleEvent applies one recognizer message. Events from any session other
// than the live one are ignored.
func (c *VoiceController) HandleEvent(event ports.RecognitionEvent) {
	c.mu.Lock()
	if !c.open || c.current == nil || event.SessionID != c.current.id {
		c.mu.Unlock()
		c.logger.Debug("dropping stale recognition event",
			zap.String("session", event.SessionID),
			zap.String("kind", string(event.Kind)),
		)
		return
	}

	var (
		changed bool
		abandon *voiceSession
	)
	switch event.Kind {
	case ports.RecognitionStart:
		if c.phase == domain.VoicePhaseIdle {
			c.buffer.Reset()
			c.lastError = ""
			c.phase = domain.VoicePhaseListening
			changed = true
		}
	case ports.RecognitionUpdate:
		if c.phase == domain.VoicePhaseListening {
			changed = c.buffer.Apply(event.Results)
		}
	case ports.RecognitionError:
		if c.phase == domain.VoicePhaseListening || c.phase == domain.VoicePhaseIdle {
			c.phase = domain.VoicePhaseError
			c.lastError = domain.RecognitionMessage(event.Error)
			abandon = c.current
			c.current = nil
			changed = true
			c.logger.Info("recognition error",
				zap.String("category", string(event.Error)),
				zap.String("detail", event.Detail),
			)
		}
	case ports.RecognitionEnd:
		if c.phase == domain.VoicePhaseListening {
			c.phase = domain.VoicePhaseIdle
			changed = true
		}
		c.current = nil
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if abandon != nil && abandon.handle != nil {
		_ = abandon.handle.Abort()
	}
	if changed {
		c.emit(snapshot)
	}
}

// ConfirmAndSubmit stops listening gracefully and returns the trimmed
// transcript for lookup. An empty transcript moves the session to error.
func (c *VoiceController) ConfirmAndSubmit() (string, error) {
	c.mu.Lock()
	if c.phase != domain.VoicePhaseListening || c.current == nil {
		phase := c.phase
		c.mu.Unlock()
		return "", fmt.Errorf("%w: confirm from %s", domain.ErrInvalidTransition, phase)
	}
	handle := c.current.handle
	c.current = nil
	transcript := strings.TrimSpace(c.buffer.Visible())
	if transcript == "" {
		c.phase = domain.VoicePhaseError
		c.lastError = domain.NothingSpokenMessage()
	} else {
		c.phase = domain.VoicePhaseProcessing
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(); err != nil {
			c.logger.Warn("stop recognition failed", zap.Error(err))
		}
	}
	c.emit(snapshot)

	if transcript == "" {
		return "", domain.ErrNoSpeechCaptured
	}
	return transcript, nil
}

// Cancel aborts any recognition immediately and closes the session. It is
// valid from every state.
func (c *VoiceController) Cancel() {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.open = false
	c.phase = domain.VoicePhaseIdle
	c.buffer.Reset()
	c.lastError = ""
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.abortSession(session)
	c.emit(snapshot)
}

// RetryFromError restarts listening after a failure.
func (c *VoiceController) RetryFromError(ctx context.Context) error {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()
	if phase != domain.VoicePhaseError {
		return fmt.Errorf("%w: retry from %s", domain.ErrInvalidTransition, phase)
	}
	return c.StartListening(ctx)
}

// Snapshot returns the current phase and visible transcript.
func (c *VoiceController) Snapshot() domain.VoiceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *VoiceController) snapshotLocked() domain.VoiceSnapshot {
	return domain.VoiceSnapshot{
		Open:       c.open,
		Phase:      c.phase,
		Transcript: c.buffer.Visible(),
		LastError:  c.lastError,
	}
}

func (c *VoiceController) abortSession(session *voiceSession) {
	if session == nil || session.handle == nil {
		return
	}
	if err := session.handle.Abort(); err != nil {
		c.logger.Debug("abort recognition failed", zap.Error(err))
	}
	<-session.done
}

func (c *VoiceController) emit(snapshot domain.VoiceSnapshot) {
	if c.events != nil {
		c.events.VoiceStateChanged(snapshot)
	}
}

func drainRecognitionEvents(session ports.RecognitionSession) {
	for range session.Events() {
	}
}
