package usecase

import (
	"context"
	"errors"
	"sync"

	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

type fakeEventSink struct {
	mu           sync.Mutex
	voice        []domain.VoiceSnapshot
	achievements []domain.Achievement
	ready        []domain.AdviceOutcome
	failed       []domain.AdviceOutcome
}

func (f *fakeEventSink) VoiceStateChanged(snapshot domain.VoiceSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = append(f.voice, snapshot)
}

func (f *fakeEventSink) AchievementUnlocked(achievement domain.Achievement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.achievements = append(f.achievements, achievement)
}

func (f *fakeEventSink) AdviceReady(outcome domain.AdviceOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = append(f.ready, outcome)
}

func (f *fakeEventSink) AdviceFailed(outcome domain.AdviceOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, outcome)
}

func (f *fakeEventSink) snapshotVoice() []domain.VoiceSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.VoiceSnapshot(nil), f.voice...)
}

func (f *fakeEventSink) snapshotAchievements() []domain.AchievementID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]domain.AchievementID, 0, len(f.achievements))
	for _, achievement := range f.achievements {
		ids = append(ids, achievement.ID)
	}
	return ids
}

func (f *fakeEventSink) snapshotAdvice() (ready, failed []domain.AdviceOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AdviceOutcome(nil), f.ready...), append([]domain.AdviceOutcome(nil), f.failed...)
}

type fakeStore struct {
	mu          sync.Mutex
	data        map[string][]byte
	getErr      error
	getFailures int
	setErr      error
	sets        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	if f.getFailures > 0 {
		f.getFailures--
		return nil, false, errors.New("store temporarily unavailable")
	}
	value, ok := f.data[key]
	return append([]byte(nil), value...), ok, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeStore) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeStore) raw(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.data[key])
}

func (f *fakeStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeRecognitionSession
	err      error
	calls    int
	lastCfg  ports.RecognitionConfig
	onStart  func()
}

func (f *fakeRecognizer) Start(_ context.Context, cfg ports.RecognitionConfig) (ports.RecognitionSession, error) {
	f.mu.Lock()
	onStart := f.onStart
	f.lastCfg = cfg
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		f.mu.Unlock()
		return nil, errors.New("no recognition session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	f.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	return session, nil
}

type fakeRecognitionSession struct {
	mu         sync.Mutex
	events     chan ports.RecognitionEvent
	closed     bool
	stopCalls  int
	abortCalls int
}

func newFakeRecognitionSession() *fakeRecognitionSession {
	return &fakeRecognitionSession{events: make(chan ports.RecognitionEvent, 16)}
}

func (f *fakeRecognitionSession) Events() <-chan ports.RecognitionEvent { return f.events }

func (f *fakeRecognitionSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.closeLocked()
	return nil
}

func (f *fakeRecognitionSession) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalls++
	f.closeLocked()
	return nil
}

func (f *fakeRecognitionSession) closeLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeRecognitionSession) counts() (stops, aborts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls, f.abortCalls
}

type fakeGenerator struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []ports.AdviceRequest
}

type fakeReply struct {
	text  string
	err   error
	block chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req ports.AdviceRequest) (string, error) {
	f.mu.Lock()
	index := len(f.requests)
	f.requests = append(f.requests, req)
	if index >= len(f.replies) {
		f.mu.Unlock()
		return "", errors.New("no reply configured")
	}
	reply := f.replies[index]
	f.mu.Unlock()

	if reply.block != nil {
		select {
		case <-reply.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply.text, reply.err
}

func (f *fakeGenerator) snapshotRequests() []ports.AdviceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.AdviceRequest(nil), f.requests...)
}

type aliasNormalizer struct{}

func (aliasNormalizer) Normalize(query string) string {
	if query == "قرعة" {
		return "قارورة"
	}
	return query
}
