package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix             = "TADWIR_"
	maxConfigFileSize     = 1 << 20
	defaultMinLoadLatency = 1500 * time.Millisecond
)

// Config stores runtime configuration for the app and the CLI.
type Config struct {
	Gemini   GeminiConfig   `koanf:"gemini"`
	Deepgram DeepgramConfig `koanf:"deepgram"`
	Audio    AudioConfig    `koanf:"audio"`
	Store    StoreConfig    `koanf:"store"`
	Stats    StatsConfig    `koanf:"stats"`
	Aliases  AliasesConfig  `koanf:"aliases"`
	Log      LogConfig      `koanf:"log"`
}

type GeminiConfig struct {
	APIKey            string        `koanf:"api_key"`
	Model             string        `koanf:"model"`
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerMinute int           `koanf:"requests_per_minute"`
	Burst             int           `koanf:"burst"`
}

type DeepgramConfig struct {
	APIKey         string `koanf:"api_key"`
	APIBaseURL     string `koanf:"api_base_url"`
	Model          string `koanf:"model"`
	Language       string `koanf:"language"`
	SmartFormat    bool   `koanf:"smart_format"`
	EndpointingMs  int    `koanf:"endpointing_ms"`
	UtteranceEndMs int    `koanf:"utterance_end_ms"`
}

type AudioConfig struct {
	FFmpegPath  string `koanf:"ffmpeg_path"`
	InputFormat string `koanf:"input_format"`
	InputDevice string `koanf:"input_device"`
	SampleRate  int    `koanf:"sample_rate"`
	Channels    int    `koanf:"channels"`
	ChunkMs     int    `koanf:"chunk_ms"`
}

// ChunkBytes is the PCM chunk size streamed per write.
func (a AudioConfig) ChunkBytes() int {
	return a.SampleRate * a.Channels * 2 * a.ChunkMs / 1000
}

type StoreConfig struct {
	Engine string `koanf:"engine"`
	Path   string `koanf:"path"`
}

type StatsConfig struct {
	Key            string        `koanf:"key"`
	MinLoadLatency time.Duration `koanf:"min_load_latency"`
}

type AliasesConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultPath is ~/.config/tadwir/config.yaml.
func DefaultPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the YAML file at path (optional), then TADWIR_ environment
// overrides, then fills defaults. An empty path means DefaultPath.
//
//	TADWIR_GEMINI_MODEL      -> gemini.model
//	TADWIR_STORE_ENGINE      -> store.engine
//	TADWIR_DEEPGRAM_API_KEY  -> deepgram.api_key
//
// GEMINI_API_KEY, GOOGLE_API_KEY and DEEPGRAM_API_KEY are honored when the
// prefixed keys are unset.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	content, err := readConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if !k.Exists("deepgram.smart_format") {
		cfg.Deepgram.SmartFormat = true
	}
	if !k.Exists("stats.min_load_latency") {
		cfg.Stats.MinLoadLatency = defaultMinLoadLatency
	}

	if err := applyDefaults(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings that cannot be clamped into something usable.
func (c Config) Validate() error {
	switch c.Store.Engine {
	case "sqlite", "json", "memory":
	default:
		return fmt.Errorf("unknown store engine %q", c.Store.Engine)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// envKey maps TADWIR_SECTION_FIELD_NAME to section.field_name.
func envKey(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) error {
	cfg.Gemini.APIKey = firstNonEmpty(cfg.Gemini.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
	cfg.Gemini.Model = firstNonEmpty(cfg.Gemini.Model, "gemini-2.5-flash")
	if cfg.Gemini.Timeout <= 0 {
		cfg.Gemini.Timeout = 60 * time.Second
	}
	if cfg.Gemini.RequestsPerMinute <= 0 {
		cfg.Gemini.RequestsPerMinute = 15
	}
	if cfg.Gemini.Burst <= 0 {
		cfg.Gemini.Burst = 3
	}

	cfg.Deepgram.APIKey = firstNonEmpty(cfg.Deepgram.APIKey, os.Getenv("DEEPGRAM_API_KEY"))
	cfg.Deepgram.APIBaseURL = firstNonEmpty(cfg.Deepgram.APIBaseURL, "https://api.deepgram.com/v1")
	cfg.Deepgram.Model = firstNonEmpty(cfg.Deepgram.Model, "nova-2")
	cfg.Deepgram.Language = firstNonEmpty(cfg.Deepgram.Language, "ar")
	if cfg.Deepgram.EndpointingMs < 0 {
		cfg.Deepgram.EndpointingMs = 0
	}
	if cfg.Deepgram.UtteranceEndMs < 0 {
		cfg.Deepgram.UtteranceEndMs = 0
	}

	cfg.Audio.FFmpegPath = firstNonEmpty(cfg.Audio.FFmpegPath, "ffmpeg")
	cfg.Audio.InputFormat = strings.TrimSpace(cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = strings.TrimSpace(cfg.Audio.InputDevice)
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkMs < 20 {
		cfg.Audio.ChunkMs = 100
	}

	cfg.Store.Engine = strings.ToLower(firstNonEmpty(cfg.Store.Engine, "sqlite"))
	if cfg.Store.Engine != "memory" && strings.TrimSpace(cfg.Store.Path) == "" {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		name := "tadwir.db"
		if cfg.Store.Engine == "json" {
			name = "tadwir.json"
		}
		cfg.Store.Path = filepath.Join(dir, name)
	}

	cfg.Stats.Key = firstNonEmpty(cfg.Stats.Key, "recycling_stats")
	if cfg.Stats.MinLoadLatency < 0 {
		cfg.Stats.MinLoadLatency = 0
	}

	if strings.TrimSpace(cfg.Aliases.Path) == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		cfg.Aliases.Path = filepath.Join(dir, "aliases.txt")
	}

	cfg.Log.Level = strings.ToLower(firstNonEmpty(cfg.Log.Level, "info"))
	cfg.Log.Format = strings.ToLower(firstNonEmpty(cfg.Log.Format, "json"))
	return nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "tadwir"), nil
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".local", "share", "tadwir"), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
