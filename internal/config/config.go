package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transcriber engines.
const (
	EngineServer   = "server"
	EngineDeepgram = "deepgram"
	EngineOpenAI   = "openai"
)

// Config stores runtime configuration for the voice stage.
type Config struct {
	Upstream    UpstreamConfig
	Transcriber TranscriberConfig
	Deepgram    DeepgramConfig
	OpenAI      OpenAIConfig
	Audio       AudioConfig
	Energy      EnergyConfig
	Pipeline    PipelineConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig

	// EnvFile is the dotenv file that was read, if any.
	EnvFile string
}

type UpstreamConfig struct {
	BaseURL  string
	Language string
}

type TranscriberConfig struct {
	Engine string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type EnergyConfig struct {
	FFTSize   int
	FrameRate int
	Smoothing float64
}

type PipelineConfig struct {
	StalePolicy    string
	RequestTimeout time.Duration
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type MetricsConfig struct {
	Addr string
}

// env resolves keys from the process environment first, then a dotenv file.
type env struct {
	file map[string]string
}

func (e env) get(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(e.file[key])
}

// Load resolves configuration from environment variables, an optional dotenv
// file, and sensible defaults. A missing upstream base URL is an error.
func Load() (Config, error) {
	e, envFile, err := loadEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Upstream: UpstreamConfig{
			BaseURL: firstNonEmpty(
				e.get("VOICESTAGE_API_BASE"),
				e.get("NEXT_PUBLIC_API_BASE"),
				e.get("FASTAPI_URL"),
			),
			Language: e.orDefault("VOICESTAGE_LANGUAGE", "en"),
		},
		Transcriber: TranscriberConfig{
			Engine: strings.ToLower(e.orDefault("VOICESTAGE_TRANSCRIBER", EngineServer)),
		},
		Deepgram: DeepgramConfig{
			APIKey:      e.get("DEEPGRAM_API_KEY"),
			APIBaseURL:  e.orDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       e.orDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    e.get("DEEPGRAM_LANGUAGE"),
			SmartFormat: e.orDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		OpenAI: OpenAIConfig{
			APIKey:   e.get("OPENAI_API_KEY"),
			BaseURL:  e.get("OPENAI_BASE_URL"),
			Model:    e.orDefault("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
			Language: e.get("OPENAI_LANGUAGE"),
		},
		Audio: AudioConfig{
			RecorderCommand: e.orDefault("VOICESTAGE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     e.orDefault("VOICESTAGE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     e.orDefault("VOICESTAGE_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      e.orDefaultInt("VOICESTAGE_SAMPLE_RATE", 16000),
			Channels:        e.orDefaultInt("VOICESTAGE_CHANNELS", 1),
			ChunkSize:       e.orDefaultInt("VOICESTAGE_AUDIO_CHUNK_SIZE", 4096),
		},
		Energy: EnergyConfig{
			FFTSize:   e.orDefaultInt("VOICESTAGE_FFT_SIZE", 512),
			FrameRate: e.orDefaultInt("VOICESTAGE_ENERGY_FPS", 60),
			Smoothing: e.orDefaultFloat("VOICESTAGE_ENERGY_SMOOTHING", 0.8),
		},
		Pipeline: PipelineConfig{
			StalePolicy:    strings.ToLower(e.orDefault("VOICESTAGE_STALE_POLICY", "discard")),
			RequestTimeout: time.Duration(e.orDefaultInt("VOICESTAGE_REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:      strings.ToLower(e.orDefault("VOICESTAGE_LOG_LEVEL", "info")),
			File:       e.get("VOICESTAGE_LOG_FILE"),
			MaxSizeMB:  e.orDefaultInt("VOICESTAGE_LOG_MAX_SIZE_MB", 10),
			MaxBackups: e.orDefaultInt("VOICESTAGE_LOG_MAX_BACKUPS", 3),
			MaxAgeDays: e.orDefaultInt("VOICESTAGE_LOG_MAX_AGE_DAYS", 28),
		},
		Metrics: MetricsConfig{
			Addr: e.get("VOICESTAGE_METRICS_ADDR"),
		},
		EnvFile: envFile,
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Energy.Smoothing < 0 || cfg.Energy.Smoothing >= 1 {
		cfg.Energy.Smoothing = 0.8
	}
	if cfg.Pipeline.RequestTimeout <= 0 {
		cfg.Pipeline.RequestTimeout = 30 * time.Second
	}
	switch cfg.Transcriber.Engine {
	case EngineServer, EngineDeepgram, EngineOpenAI:
	default:
		return cfg, fmt.Errorf("unknown VOICESTAGE_TRANSCRIBER %q", cfg.Transcriber.Engine)
	}

	if cfg.Upstream.BaseURL == "" {
		return cfg, errors.New("VOICESTAGE_API_BASE is not configured")
	}
	return cfg, nil
}

// loadEnv reads VOICESTAGE_ENV_FILE, ./.env, or ~/.config/voicestage/env,
// whichever exists first.
func loadEnv() (env, string, error) {
	candidates := []string{strings.TrimSpace(os.Getenv("VOICESTAGE_ENV_FILE")), ".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "voicestage", "env"))
	}

	path := firstExisting(candidates...)
	if path == "" {
		return env{}, "", nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return env{}, "", fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return env{file: values}, path, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (e env) orDefault(key string, fallback string) string {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	return value
}

func (e env) orDefaultInt(key string, fallback int) int {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e env) orDefaultFloat(key string, fallback float64) float64 {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e env) orDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(e.get(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
