package ports

import (
	"context"
	"io"

	"tadwir/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session. Stop ends capture but lets Read
// drain buffered audio up to io.EOF; Abort discards it. Close releases the
// device and reports how capture ended.
type AudioSession interface {
	io.ReadCloser
	Stop() error
	Abort() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionConfig describes a continuous speech recognition session.
type RecognitionConfig struct {
	Language       string
	InterimResults bool
	Continuous     bool
}

// RecognitionEventKind is the lifecycle signal carried by a RecognitionEvent.
type RecognitionEventKind string

const (
	RecognitionStart  RecognitionEventKind = "start"
	RecognitionUpdate RecognitionEventKind = "result"
	RecognitionError  RecognitionEventKind = "error"
	RecognitionEnd    RecognitionEventKind = "end"
)

// RecognitionResult is one recognized segment.
type RecognitionResult struct {
	IsFinal bool
	Text    string
}

// RecognitionEvent is a message from a recognizer. SessionID is stamped by
// the consumer so late events can be matched against the live session.
type RecognitionEvent struct {
	SessionID string
	Kind      RecognitionEventKind
	Results   []RecognitionResult
	Error     domain.RecognitionErrorCategory
	Detail    string
}

// RecognitionSession is a running recognizer session. Events is closed after
// the end event has been delivered.
type RecognitionSession interface {
	Events() <-chan RecognitionEvent
	Stop() error
	Abort() error
}

// SpeechRecognizer starts continuous recognition sessions.
type SpeechRecognizer interface {
	Start(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, error)
}

// AdviceRequest is either a text prompt or an image plus a prompt.
type AdviceRequest struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

// AdviceGenerator calls the hosted model and returns its raw text. Failures
// are *domain.TransportError.
type AdviceGenerator interface {
	Generate(ctx context.Context, req AdviceRequest) (string, error)
}

// KeyValueStore persists opaque blobs under string keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// QueryNormalizer rewrites a lookup query before it is sent to the model.
type QueryNormalizer interface {
	Normalize(query string) string
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	VoiceStateChanged(snapshot domain.VoiceSnapshot)
	AchievementUnlocked(achievement domain.Achievement)
	AdviceReady(outcome domain.AdviceOutcome)
	AdviceFailed(outcome domain.AdviceOutcome)
}
