package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[next%len(ids)]
		next++
		return id
	}
}

func newTestVoiceController(recognizer ports.SpeechRecognizer, sink *fakeEventSink, ids ...string) *VoiceController {
	controller := NewVoiceController(recognizer, sink, nil, VoiceConfig{})
	if len(ids) > 0 {
		controller.newID = sequenceIDs(ids...)
	}
	return controller
}

func startedController(t *testing.T, session *fakeRecognitionSession, sink *fakeEventSink) *VoiceController {
	t.Helper()

	controller := newTestVoiceController(&fakeRecognizer{sessions: []*fakeRecognitionSession{session}}, sink, "s1")
	controller.Open()
	require.NoError(t, controller.StartListening(context.Background()))
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})
	require.Equal(t, domain.VoicePhaseListening, controller.Snapshot().Phase)
	return controller
}

func result(text string, final bool) ports.RecognitionResult {
	return ports.RecognitionResult{Text: text, IsFinal: final}
}

func TestVoiceControllerInterimThenFinalSubmits(t *testing.T) {
	t.Parallel()

	session := newFakeRecognitionSession()
	sink := &fakeEventSink{}
	controller := startedController(t, session, sink)

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("مر", false)}})
	assert.Equal(t, "مر", controller.Snapshot().Transcript)

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("مرحبا", true)}})
	assert.Equal(t, "مرحبا", strings.TrimSpace(controller.Snapshot().Transcript))

	transcript, err := controller.ConfirmAndSubmit()
	require.NoError(t, err)
	assert.Equal(t, "مرحبا", transcript)
	assert.Equal(t, domain.VoicePhaseProcessing, controller.Snapshot().Phase)

	stops, aborts := session.counts()
	assert.Equal(t, 1, stops)
	assert.Zero(t, aborts)
}

func TestVoiceControllerInterimReplacedWholesale(t *testing.T) {
	t.Parallel()

	controller := startedController(t, newFakeRecognitionSession(), &fakeEventSink{})
	deliver := func(results ...ports.RecognitionResult) {
		controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: results})
	}

	deliver(result("قا", false))
	deliver(result("قارو", false))
	assert.Equal(t, "قارو", controller.Snapshot().Transcript)

	deliver(result("قارورة", true), result(" زيت", false))
	assert.Equal(t, "قارورة  زيت", controller.Snapshot().Transcript)

	deliver(result("زيت", true))
	assert.Equal(t, "قارورة زيت ", controller.Snapshot().Transcript)
	controller.Cancel()
}

func TestVoiceControllerLateEventAfterCancelIsIgnored(t *testing.T) {
	t.Parallel()

	session := newFakeRecognitionSession()
	sink := &fakeEventSink{}
	controller := startedController(t, session, sink)

	controller.Cancel()
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("متأخر", true)}})
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})

	snapshot := controller.Snapshot()
	assert.Equal(t, domain.VoicePhaseIdle, snapshot.Phase)
	assert.False(t, snapshot.Open)
	assert.Empty(t, snapshot.Transcript)

	_, aborts := session.counts()
	assert.Equal(t, 1, aborts)
}

func TestVoiceControllerIgnoresSupersededSession(t *testing.T) {
	t.Parallel()

	first := newFakeRecognitionSession()
	second := newFakeRecognitionSession()
	recognizer := &fakeRecognizer{sessions: []*fakeRecognitionSession{first, second}}
	controller := newTestVoiceController(recognizer, &fakeEventSink{}, "s1", "s2")
	ctx := context.Background()

	controller.Open()
	require.NoError(t, controller.StartListening(ctx))
	controller.Cancel()
	controller.Open()
	require.NoError(t, controller.StartListening(ctx))

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})
	assert.Equal(t, domain.VoicePhaseIdle, controller.Snapshot().Phase)

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s2", Kind: ports.RecognitionStart})
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("قديم", true)}})
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s2", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("جديد", true)}})

	snapshot := controller.Snapshot()
	assert.Equal(t, domain.VoicePhaseListening, snapshot.Phase)
	assert.Equal(t, "جديد ", snapshot.Transcript)
	controller.Cancel()
}

func TestVoiceControllerErrorCategories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		category domain.RecognitionErrorCategory
		message  string
	}{
		{domain.RecognitionErrorNoSpeech, "لم أسمع أي شيء. هل يمكنك المحاولة مرة أخرى؟"},
		{domain.RecognitionErrorPermissionDenied, "تم رفض الوصول إلى الميكروفون. يرجى تفعيله في الإعدادات."},
		{domain.RecognitionErrorNetwork, "حدث خطأ أثناء التعرف على الصوت."},
		{domain.RecognitionErrorCategory("aborted-by-gremlins"), "حدث خطأ أثناء التعرف على الصوت."},
	}
	for _, tc := range cases {
		session := newFakeRecognitionSession()
		controller := startedController(t, session, &fakeEventSink{})

		controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionError, Error: tc.category})

		snapshot := controller.Snapshot()
		assert.Equal(t, domain.VoicePhaseError, snapshot.Phase, tc.category)
		assert.Equal(t, tc.message, snapshot.LastError, tc.category)
		_, aborts := session.counts()
		assert.Equal(t, 1, aborts, tc.category)

		controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})
		assert.Equal(t, domain.VoicePhaseError, controller.Snapshot().Phase, tc.category)
		controller.Cancel()
	}
}

func TestVoiceControllerConfirmWithoutSpeech(t *testing.T) {
	t.Parallel()

	controller := startedController(t, newFakeRecognitionSession(), &fakeEventSink{})
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("   ", false)}})

	_, err := controller.ConfirmAndSubmit()
	assert.ErrorIs(t, err, domain.ErrNoSpeechCaptured)

	snapshot := controller.Snapshot()
	assert.Equal(t, domain.VoicePhaseError, snapshot.Phase)
	assert.Equal(t, "لم يتم تسجيل أي كلام. الرجاء المحاولة مرة أخرى.", snapshot.LastError)
}

func TestVoiceControllerRejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	session := newFakeRecognitionSession()
	controller := newTestVoiceController(&fakeRecognizer{sessions: []*fakeRecognitionSession{session}}, &fakeEventSink{}, "s1")
	ctx := context.Background()

	err := controller.StartListening(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "start before open")

	controller.Open()
	_, err = controller.ConfirmAndSubmit()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "confirm from idle")

	err = controller.RetryFromError(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "retry from idle")

	require.NoError(t, controller.StartListening(ctx))
	err = controller.StartListening(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "start while awaiting start")

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})
	err = controller.StartListening(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "start while listening")

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("علبة", true)}})
	_, err = controller.ConfirmAndSubmit()
	require.NoError(t, err)

	err = controller.StartListening(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "start while processing")
	err = controller.RetryFromError(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "retry while processing")
	assert.Equal(t, domain.VoicePhaseProcessing, controller.Snapshot().Phase)
}

func TestVoiceControllerRetryFromError(t *testing.T) {
	t.Parallel()

	first := newFakeRecognitionSession()
	second := newFakeRecognitionSession()
	recognizer := &fakeRecognizer{sessions: []*fakeRecognitionSession{first, second}}
	controller := newTestVoiceController(recognizer, &fakeEventSink{}, "s1", "s2")
	ctx := context.Background()

	controller.Open()
	require.NoError(t, controller.StartListening(ctx))
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionError, Error: domain.RecognitionErrorNoSpeech})
	require.Equal(t, domain.VoicePhaseError, controller.Snapshot().Phase)

	require.NoError(t, controller.RetryFromError(ctx))
	snapshot := controller.Snapshot()
	assert.Equal(t, domain.VoicePhaseIdle, snapshot.Phase)
	assert.Empty(t, snapshot.LastError)

	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s2", Kind: ports.RecognitionStart})
	assert.Equal(t, domain.VoicePhaseListening, controller.Snapshot().Phase)
	assert.Equal(t, 2, recognizer.calls)
	controller.Cancel()
}

func TestVoiceControllerStartFailure(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{err: errors.New("microphone busy")}
	controller := newTestVoiceController(recognizer, &fakeEventSink{})
	controller.Open()

	err := controller.StartListening(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "microphone busy")

	snapshot := controller.Snapshot()
	assert.Equal(t, domain.VoicePhaseError, snapshot.Phase)
	assert.Equal(t, "لم نتمكن من بدء التسجيل. الرجاء المحاولة مرة أخرى.", snapshot.LastError)
}

func TestVoiceControllerWithoutRecognizer(t *testing.T) {
	t.Parallel()

	controller := newTestVoiceController(nil, &fakeEventSink{})
	controller.Open()

	err := controller.StartListening(context.Background())
	assert.ErrorIs(t, err, domain.ErrRecognizerUnavailable)
	assert.Equal(t, domain.VoicePhaseError, controller.Snapshot().Phase)
}

func TestVoiceControllerEndWhileListeningReturnsToIdle(t *testing.T) {
	t.Parallel()

	first := newFakeRecognitionSession()
	second := newFakeRecognitionSession()
	recognizer := &fakeRecognizer{sessions: []*fakeRecognitionSession{first, second}}
	controller := newTestVoiceController(recognizer, &fakeEventSink{}, "s1", "s2")
	ctx := context.Background()

	controller.Open()
	require.NoError(t, controller.StartListening(ctx))
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionStart})
	controller.HandleEvent(ports.RecognitionEvent{SessionID: "s1", Kind: ports.RecognitionEnd})
	require.NoError(t, first.Stop())

	assert.Equal(t, domain.VoicePhaseIdle, controller.Snapshot().Phase)
	require.NoError(t, controller.StartListening(ctx), "restart after end")
	controller.Cancel()
}

func TestVoiceControllerCancelDuringPendingStart(t *testing.T) {
	t.Parallel()

	session := newFakeRecognitionSession()
	recognizer := &fakeRecognizer{sessions: []*fakeRecognitionSession{session}}
	controller := newTestVoiceController(recognizer, &fakeEventSink{}, "s1")
	recognizer.onStart = controller.Cancel
	controller.Open()

	err := controller.StartListening(context.Background())
	assert.ErrorIs(t, err, ErrSessionCancelled)

	_, aborts := session.counts()
	assert.Equal(t, 1, aborts)
	assert.False(t, controller.Snapshot().Open)
}

func TestVoiceControllerConsumesRecognizerChannel(t *testing.T) {
	t.Parallel()

	session := newFakeRecognitionSession()
	session.events <- ports.RecognitionEvent{Kind: ports.RecognitionStart}
	session.events <- ports.RecognitionEvent{Kind: ports.RecognitionUpdate, Results: []ports.RecognitionResult{result("زجاجة", true)}}
	sink := &fakeEventSink{}
	controller := newTestVoiceController(&fakeRecognizer{sessions: []*fakeRecognitionSession{session}}, sink, "s1")

	controller.Open()
	require.NoError(t, controller.StartListening(context.Background()))

	require.Eventually(t, func() bool {
		return controller.Snapshot().Transcript == "زجاجة "
	}, time.Second, 5*time.Millisecond)

	transcript, err := controller.ConfirmAndSubmit()
	require.NoError(t, err)
	assert.Equal(t, "زجاجة", transcript)

	phases := make([]domain.VoicePhase, 0)
	for _, snapshot := range sink.snapshotVoice() {
		phases = append(phases, snapshot.Phase)
	}
	assert.Contains(t, phases, domain.VoicePhaseListening)
	assert.Equal(t, domain.VoicePhaseProcessing, phases[len(phases)-1])
}

func TestVoiceControllerRequestsContinuousArabicSession(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{sessions: []*fakeRecognitionSession{newFakeRecognitionSession()}}
	controller := newTestVoiceController(recognizer, &fakeEventSink{})
	controller.Open()
	require.NoError(t, controller.StartListening(context.Background()))

	assert.Equal(t, "ar-DZ", recognizer.lastCfg.Language)
	assert.True(t, recognizer.lastCfg.Continuous)
	assert.True(t, recognizer.lastCfg.InterimResults)
	controller.Cancel()
}
