package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tadwir/internal/aliases"
	"tadwir/internal/audio"
	"tadwir/internal/config"
	"tadwir/internal/kvstore"
	"tadwir/internal/logging"
	"tadwir/internal/ports"
	"tadwir/internal/providers/deepgram"
	"tadwir/internal/providers/gemini"
	"tadwir/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config  config.Config
	Stats   *usecase.StatsEngine
	Advisor *usecase.Advisor
	Voice   *usecase.VoiceController

	store kvstore.Store
}

// Close releases the persistence engine.
func (s Services) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Options carries the runtime collaborators that are not built from config.
// Generator and Recognizer replace the hosted providers when set.
type Options struct {
	Events     ports.EventSink
	Logger     *zap.Logger
	Generator  ports.AdviceGenerator
	Recognizer ports.SpeechRecognizer
}

// Build wires all backend dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, opts Options) (Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	table, err := aliases.Load(cfg.Aliases.Path)
	if err != nil {
		return Services{}, err
	}

	generator := opts.Generator
	if generator == nil {
		generator, err = buildGenerator(ctx, cfg, logger)
		if err != nil {
			return Services{}, err
		}
	}

	store := openStore(cfg.Store, logger)

	recognizer := opts.Recognizer
	if recognizer == nil {
		recognizer = buildRecognizer(cfg, logger)
	}

	stats := usecase.NewStatsEngine(store, opts.Events, logger, usecase.StatsConfig{
		Key:            cfg.Stats.Key,
		MinLoadLatency: cfg.Stats.MinLoadLatency,
	})
	advisor := usecase.NewAdvisor(generator, stats, table, opts.Events, logger)
	voice := usecase.NewVoiceController(recognizer, opts.Events, logger, usecase.VoiceConfig{
		Recognition: usecase.DefaultRecognitionConfig(),
	})

	logger.Info("services ready",
		zap.String("model", cfg.Gemini.Model),
		logging.Redacted("gemini_api_key", cfg.Gemini.APIKey),
		zap.String("store", cfg.Store.Engine),
		zap.Int("aliases", table.Len()),
		zap.Bool("advice", generator != nil),
		zap.Bool("voice", recognizer != nil),
	)

	return Services{
		Config:  cfg,
		Stats:   stats,
		Advisor: advisor,
		Voice:   voice,
		store:   store,
	}, nil
}

// buildGenerator returns nil when no Gemini key is configured; advice
// requests then fail with a transport error while stats stay readable.
func buildGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) (ports.AdviceGenerator, error) {
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		logger.Warn("advice disabled: gemini api key is not configured")
		return nil, nil
	}
	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		BaseURL:           cfg.Gemini.BaseURL,
		Timeout:           cfg.Gemini.Timeout,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		Burst:             cfg.Gemini.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure gemini: %w", err)
	}
	return generator, nil
}

// openStore falls back to an in-memory store when the configured engine
// cannot be opened; stats then last for the current run only.
func openStore(cfg config.StoreConfig, logger *zap.Logger) kvstore.Store {
	store, err := kvstore.NewByEngine(cfg.Engine, cfg.Path, logger)
	if err != nil {
		logger.Error("open store failed; keeping stats in memory",
			zap.String("engine", cfg.Engine),
			zap.String("path", cfg.Path),
			zap.Error(err),
		)
		return kvstore.NewMemory()
	}
	return store
}

// buildRecognizer returns nil when no Deepgram key is configured; the voice
// controller then reports recognition as unsupported.
func buildRecognizer(cfg config.Config, logger *zap.Logger) ports.SpeechRecognizer {
	if strings.TrimSpace(cfg.Deepgram.APIKey) == "" {
		logger.Warn("voice lookup disabled: deepgram api key is not configured")
		return nil
	}
	return deepgram.NewRecognizer(deepgram.Config{
		APIKey:         cfg.Deepgram.APIKey,
		APIBaseURL:     cfg.Deepgram.APIBaseURL,
		Model:          cfg.Deepgram.Model,
		SmartFormat:    cfg.Deepgram.SmartFormat,
		Language:       cfg.Deepgram.Language,
		EndpointingMs:  cfg.Deepgram.EndpointingMs,
		UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		ChunkSize: cfg.Audio.ChunkBytes(),
	}, audio.NewMicrophone(cfg.Audio.FFmpegPath, logger), logger)
}
