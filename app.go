package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"tadwir/internal/bootstrap"
	"tadwir/internal/config"
	"tadwir/internal/domain"
	"tadwir/internal/logging"
	"tadwir/internal/usecase"
)

const (
	eventVoice       = "tadwir:voice"
	eventAchievement = "tadwir:achievement"
	eventAdvice      = "tadwir:advice"
	eventError       = "tadwir:error"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	emit   func(ctx context.Context, name string, payload ...interface{})
	logger *zap.Logger

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit, logger: zap.NewNop()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load("")
	if err != nil {
		a.fail(err)
		return
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		a.fail(err)
		return
	}
	a.logger = logger

	services, err := bootstrap.Build(ctx, cfg, bootstrap.Options{Events: a, Logger: logger})
	if err != nil {
		a.fail(err)
		return
	}
	a.services = &services

	// Warm the stats cache so the dashboard does not pay the load latency.
	go services.Stats.Load(ctx)
}

func (a *App) shutdown(_ context.Context) {
	if a.services != nil {
		a.services.Voice.Cancel()
		if err := a.services.Close(); err != nil {
			a.logger.Warn("close store failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.logger.Error("startup failed", zap.Error(err))
	a.publish(eventError, map[string]string{"message": "تعذر تشغيل التطبيق", "detail": err.Error()})
}

// AnalyzeImage sends a captured photo for advice. The image may be plain
// base64 or a data URL.
func (a *App) AnalyzeImage(image string, mimeType string) (domain.AdviceRecord, error) {
	if err := a.requireReady(); err != nil {
		return domain.AdviceRecord{}, err
	}
	data, detected, err := decodeImage(image)
	if err != nil {
		return domain.AdviceRecord{}, err
	}
	if mimeType == "" {
		mimeType = detected
	}
	record, err := a.services.Advisor.AnalyzeImage(a.ctx, data, mimeType)
	return record, userError(err)
}

// LookupItem asks for advice about an item picked or typed in the library.
func (a *App) LookupItem(query string) (domain.AdviceRecord, error) {
	if err := a.requireReady(); err != nil {
		return domain.AdviceRecord{}, err
	}
	record, err := a.services.Advisor.Lookup(a.ctx, query, domain.LookupSourceLibrary)
	return record, userError(err)
}

// OpenVoice shows the voice modal with a fresh session.
func (a *App) OpenVoice() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Voice.Open()
	return nil
}

// StartListening begins recognition from idle or after an error.
func (a *App) StartListening() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.voiceError(a.services.Voice.StartListening(a.ctx))
}

// RetryVoice restarts recognition after an error.
func (a *App) RetryVoice() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.voiceError(a.services.Voice.RetryFromError(a.ctx))
}

// ConfirmVoice submits the transcript as a voice lookup and closes the
// modal once the advice request settles.
func (a *App) ConfirmVoice() (domain.AdviceRecord, error) {
	if err := a.requireReady(); err != nil {
		return domain.AdviceRecord{}, err
	}
	transcript, err := a.services.Voice.ConfirmAndSubmit()
	if err != nil {
		return domain.AdviceRecord{}, userError(err)
	}
	defer a.services.Voice.Cancel()

	record, err := a.services.Advisor.Lookup(a.ctx, transcript, domain.LookupSourceVoice)
	return record, userError(err)
}

// CancelVoice closes the voice modal from any state.
func (a *App) CancelVoice() {
	if a.services == nil {
		return
	}
	a.services.Voice.Cancel()
}

func (a *App) GetVoiceState() domain.VoiceSnapshot {
	if a.services == nil {
		return domain.VoiceSnapshot{Phase: domain.VoicePhaseIdle}
	}
	return a.services.Voice.Snapshot()
}

func (a *App) GetStats() (domain.UsageStats, error) {
	if err := a.requireReady(); err != nil {
		return domain.UsageStats{}, err
	}
	return a.services.Stats.Snapshot(a.ctx), nil
}

func (a *App) GetAchievements() ([]domain.AchievementStatus, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Stats.Achievements(a.ctx), nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}
	cfg := a.services.Config
	return map[string]string{
		"model":         cfg.Gemini.Model,
		"speech":        "Deepgram " + cfg.Deepgram.Model,
		"adviceEnabled": fmt.Sprintf("%t", strings.TrimSpace(cfg.Gemini.APIKey) != ""),
		"speechEnabled": fmt.Sprintf("%t", strings.TrimSpace(cfg.Deepgram.APIKey) != ""),
		"store":         cfg.Store.Engine,
		"aliasesFile":   cfg.Aliases.Path,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return domain.ErrNotReady
	}
	return nil
}

// VoiceStateChanged emits voice modal updates to the frontend.
func (a *App) VoiceStateChanged(snapshot domain.VoiceSnapshot) {
	a.publish(eventVoice, snapshot)
}

// AchievementUnlocked emits the unlock toast.
func (a *App) AchievementUnlocked(achievement domain.Achievement) {
	a.publish(eventAchievement, achievementPayload(achievement))
}

func (a *App) AdviceReady(outcome domain.AdviceOutcome) {
	a.publish(eventAdvice, outcome)
}

func (a *App) AdviceFailed(outcome domain.AdviceOutcome) {
	a.publish(eventAdvice, outcome)
}

func (a *App) publish(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func achievementPayload(achievement domain.Achievement) map[string]string {
	return map[string]string{
		"id":          string(achievement.ID),
		"title":       achievement.Title,
		"description": achievement.Description,
		"icon":        achievement.Icon,
		"toast":       usecase.UnlockToast(achievement),
	}
}

// userError replaces internal errors with the message shown to the user.
// Invalid transitions keep their text; they indicate a UI bug, not a user
// problem.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, usecase.ErrSessionCancelled) {
		return err
	}
	return errors.New(domain.UserMessage(err))
}

// voiceError prefers the message the voice modal is already showing.
func (a *App) voiceError(err error) error {
	if err == nil {
		return nil
	}
	if snapshot := a.services.Voice.Snapshot(); snapshot.Phase == domain.VoicePhaseError && snapshot.LastError != "" {
		return errors.New(snapshot.LastError)
	}
	return userError(err)
}

var errInvalidImage = errors.New("الصورة غير صالحة")

// decodeImage accepts "data:image/png;base64,..." or bare base64 and returns
// the bytes and the declared MIME type (image/jpeg when absent).
func decodeImage(input string) ([]byte, string, error) {
	mimeType := "image/jpeg"
	payload := strings.TrimSpace(input)
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", errInvalidImage
		}
		if declared := strings.TrimSuffix(header, ";base64"); declared != "" {
			mimeType = declared
		}
		payload = data
	}
	if payload == "" {
		return nil, mimeType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errInvalidImage
	}
	return data, mimeType, nil
}
