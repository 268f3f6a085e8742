// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yusin8/WERO/internal/service/vad"
)

// Provider names.
const (
	ProviderMock     = "mock"
	ProviderGoogle   = "google"
	ProviderFunction = "function"
	ProviderGemini   = "gemini"
)

// Configuration holds all settings for the gateway and its clients.
type Configuration struct {
	Service       ServiceConfig
	Capture       CaptureConfig
	STT           STTConfig
	LLM           LLMConfig
	TTS           TTSConfig
	SegmentLimits SegmentLimits
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	Function      FunctionConfig
}

// ServiceConfig holds listener settings for the gateway process.
type ServiceConfig struct {
	Principal      string
	Host           string
	Port           string
	MetricsAddr    string
	GRPCHealthPort string // empty disables the gRPC health server
}

// CaptureConfig holds device-side capture and segmentation settings.
type CaptureConfig struct {
	ServerURL     string
	SampleRate    int
	FrameMs       int
	VADLevel      int
	StartFrames   int
	EndFrames     int
	QueueCapacity int
}

// STTConfig holds transcription settings.
type STTConfig struct {
	Provider     string
	LanguageCode string
	Timeout      time.Duration
}

// LLMConfig holds generation settings.
type LLMConfig struct {
	Provider     string
	FunctionURL  string
	Timeout      time.Duration
	GeminiAPIKey string
	GeminiModel  string
}

// TTSConfig holds synthesis settings.
type TTSConfig struct {
	Provider     string
	Voice        string
	LanguageCode string
	SpeakingRate float64
	Pitch        float64
	SampleRateHz int
	Timeout      time.Duration
}

// SegmentLimits bounds per-utterance resource usage.
type SegmentLimits struct {
	MaxAudioBytes    int64
	MaxAudioDuration time.Duration
}

// KafkaConfig holds turn event publishing settings.
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicTurns    string
	TopicFailures string
	Principal     string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// FunctionConfig holds settings for the standalone generation function.
type FunctionConfig struct {
	Port string
}

// Load reads the configuration from the environment, falling back to
// defaults for unset or unparsable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-gateway")

	return &Configuration{
		Service: ServiceConfig{
			Principal:      principal,
			Host:           envOrDefault("WS_HOST", "0.0.0.0"),
			Port:           envOrDefault("WS_PORT", "8766"),
			MetricsAddr:    envOrDefault("METRICS_ADDR", ":9090"),
			GRPCHealthPort: envOrDefault("GRPC_HEALTH_PORT", ""),
		},
		Capture: CaptureConfig{
			ServerURL:     envOrDefault("WS_SERVER", "ws://localhost:8766/ws"),
			SampleRate:    envOrDefaultInt("CAP_RATE", 16000),
			FrameMs:       envOrDefaultInt("FRAME_MS", 20),
			VADLevel:      envOrDefaultInt("VAD_AGGRESSIVENESS", 2),
			StartFrames:   envOrDefaultInt("VAD_START_FRAMES", 5),
			EndFrames:     envOrDefaultInt("VAD_END_FRAMES", 10),
			QueueCapacity: envOrDefaultInt("FRAME_QUEUE_CAPACITY", 256),
		},
		STT: STTConfig{
			Provider:     envOrDefault("STT_PROVIDER", ProviderMock),
			LanguageCode: envOrDefault("STT_LANGUAGE_CODE", "ko-KR"),
			Timeout:      envOrDefaultDuration("STT_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Provider:     envOrDefault("LLM_PROVIDER", ProviderMock),
			FunctionURL:  envOrDefault("FUNCTION_URL", ""),
			Timeout:      envOrDefaultDuration("LLM_TIMEOUT", 60*time.Second),
			GeminiAPIKey: envOrDefault("GEMINI_API_KEY", ""),
			GeminiModel:  envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		TTS: TTSConfig{
			Provider:     envOrDefault("TTS_PROVIDER", ProviderMock),
			Voice:        envOrDefault("TTS_VOICE", "ko-KR-Standard-A"),
			LanguageCode: envOrDefault("TTS_LANGUAGE_CODE", "ko-KR"),
			SpeakingRate: envOrDefaultFloat("TTS_SPEAKING_RATE", 1.0),
			Pitch:        envOrDefaultFloat("TTS_PITCH", 0.0),
			SampleRateHz: envOrDefaultInt("TTS_SAMPLE_RATE", 22050),
			Timeout:      envOrDefaultDuration("TTS_TIMEOUT", 30*time.Second),
		},
		SegmentLimits: SegmentLimits{
			MaxAudioBytes:    envOrDefaultInt64("SESSION_MAX_AUDIO_BYTES", 10*1024*1024),
			MaxAudioDuration: envOrDefaultDuration("SESSION_MAX_AUDIO_DURATION", 60*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:       envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:       envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTurns:    envOrDefault("KAFKA_TOPIC_TURNS", "voice.turn.completed"),
			TopicFailures: envOrDefault("KAFKA_TOPIC_FAILURES", "voice.turn.failed"),
			Principal:     envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
		Function: FunctionConfig{
			Port: envOrDefault("FUNCTION_PORT", "8080"),
		},
	}
}

// ListenAddr returns the WebSocket listen address.
func (c *Configuration) ListenAddr() string {
	return net.JoinHostPort(c.Service.Host, c.Service.Port)
}

// Validate performs the one-time startup check of the gateway settings,
// including provider credentials.
func (c *Configuration) Validate() error {
	var errs []error

	switch c.STT.Provider {
	case ProviderMock, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("STT_PROVIDER: unknown provider %q", c.STT.Provider))
	}

	switch c.LLM.Provider {
	case ProviderMock:
	case ProviderFunction:
		if c.LLM.FunctionURL == "" {
			errs = append(errs, errors.New("FUNCTION_URL is required when LLM_PROVIDER=function"))
		}
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER: unknown provider %q", c.LLM.Provider))
	}

	switch c.TTS.Provider {
	case ProviderMock, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("TTS_PROVIDER: unknown provider %q", c.TTS.Provider))
	}
	if c.TTS.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("TTS_SAMPLE_RATE must be positive, got %d", c.TTS.SampleRateHz))
	}

	for name, d := range map[string]time.Duration{
		"STT_TIMEOUT": c.STT.Timeout,
		"LLM_TIMEOUT": c.LLM.Timeout,
		"TTS_TIMEOUT": c.TTS.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}

	return errors.Join(errs...)
}

// ValidateCapture checks the device-side capture settings.
func (c *Configuration) ValidateCapture() error {
	var errs []error

	if c.Capture.VADLevel < 0 || c.Capture.VADLevel > 3 {
		errs = append(errs, fmt.Errorf("VAD_AGGRESSIVENESS must be 0..3, got %d", c.Capture.VADLevel))
	}
	if err := vad.ValidateFormat(c.Capture.SampleRate, c.Capture.FrameMs); err != nil {
		errs = append(errs, fmt.Errorf("CAP_RATE/FRAME_MS: %w", err))
	}
	if c.Capture.StartFrames <= 0 || c.Capture.EndFrames <= 0 {
		errs = append(errs, errors.New("VAD_START_FRAMES and VAD_END_FRAMES must be positive"))
	}
	if c.Capture.QueueCapacity <= 0 {
		errs = append(errs, errors.New("FRAME_QUEUE_CAPACITY must be positive"))
	}
	if c.Capture.ServerURL == "" {
		errs = append(errs, errors.New("WS_SERVER is required"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
