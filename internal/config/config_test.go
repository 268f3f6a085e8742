package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVICE_PRINCIPAL", "WS_HOST", "WS_PORT", "METRICS_ADDR", "GRPC_HEALTH_PORT", "LOG_LEVEL",
	"CAP_RATE", "FRAME_MS", "VAD_AGGRESSIVENESS", "VAD_START_FRAMES", "VAD_END_FRAMES", "FRAME_QUEUE_CAPACITY",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_TIMEOUT",
	"LLM_PROVIDER", "FUNCTION_URL", "LLM_TIMEOUT", "GEMINI_API_KEY", "GEMINI_MODEL",
	"TTS_PROVIDER", "TTS_VOICE", "TTS_SPEAKING_RATE", "TTS_SAMPLE_RATE", "TTS_TIMEOUT",
	"SESSION_MAX_AUDIO_BYTES", "SESSION_MAX_AUDIO_DURATION", "KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-voice-gateway" {
		t.Errorf("expected default principal 'svc-voice-gateway', got %s", cfg.Service.Principal)
	}
	if cfg.ListenAddr() != "0.0.0.0:8766" {
		t.Errorf("expected default listen addr '0.0.0.0:8766', got %s", cfg.ListenAddr())
	}
	if cfg.Service.GRPCHealthPort != "" {
		t.Errorf("expected gRPC health disabled by default, got %s", cfg.Service.GRPCHealthPort)
	}

	// Capture defaults
	if cfg.Capture.SampleRate != 16000 || cfg.Capture.FrameMs != 20 {
		t.Errorf("expected 16000Hz/20ms capture, got %d/%d", cfg.Capture.SampleRate, cfg.Capture.FrameMs)
	}
	if cfg.Capture.VADLevel != 2 || cfg.Capture.StartFrames != 5 || cfg.Capture.EndFrames != 10 {
		t.Errorf("expected VAD 2/5/10, got %d/%d/%d", cfg.Capture.VADLevel, cfg.Capture.StartFrames, cfg.Capture.EndFrames)
	}

	// Provider defaults
	if cfg.STT.Provider != "mock" || cfg.LLM.Provider != "mock" || cfg.TTS.Provider != "mock" {
		t.Errorf("expected mock providers, got %s/%s/%s", cfg.STT.Provider, cfg.LLM.Provider, cfg.TTS.Provider)
	}
	if cfg.STT.LanguageCode != "ko-KR" {
		t.Errorf("expected default language 'ko-KR', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.Timeout != 30*time.Second || cfg.LLM.Timeout != 60*time.Second || cfg.TTS.Timeout != 30*time.Second {
		t.Errorf("expected 30s/60s/30s stage timeouts, got %v/%v/%v", cfg.STT.Timeout, cfg.LLM.Timeout, cfg.TTS.Timeout)
	}
	if cfg.LLM.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("expected default model 'gemini-2.5-flash', got %s", cfg.LLM.GeminiModel)
	}
	if cfg.TTS.Voice != "ko-KR-Standard-A" || cfg.TTS.SampleRateHz != 22050 || cfg.TTS.SpeakingRate != 1.0 {
		t.Errorf("unexpected TTS defaults: %+v", cfg.TTS)
	}

	// Segment limits defaults
	if cfg.SegmentLimits.MaxAudioBytes != 10*1024*1024 {
		t.Errorf("expected default max audio bytes 10MiB, got %d", cfg.SegmentLimits.MaxAudioBytes)
	}
	if cfg.SegmentLimits.MaxAudioDuration != 60*time.Second {
		t.Errorf("expected default max audio duration 60s, got %v", cfg.SegmentLimits.MaxAudioDuration)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("WS_PORT", "9999")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("STT_LANGUAGE_CODE", "en-US")
	t.Setenv("STT_TIMEOUT", "5s")
	t.Setenv("LLM_PROVIDER", "function")
	t.Setenv("FUNCTION_URL", "http://localhost:8080/")
	t.Setenv("TTS_SPEAKING_RATE", "1.25")
	t.Setenv("TTS_SAMPLE_RATE", "24000")
	t.Setenv("SESSION_MAX_AUDIO_BYTES", "1048576")
	t.Setenv("SESSION_MAX_AUDIO_DURATION", "15s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.Port != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.Port)
	}
	if cfg.STT.Provider != "google" || cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected google/en-US, got %s/%s", cfg.STT.Provider, cfg.STT.LanguageCode)
	}
	if cfg.STT.Timeout != 5*time.Second {
		t.Errorf("expected STT timeout 5s, got %v", cfg.STT.Timeout)
	}
	if cfg.LLM.FunctionURL != "http://localhost:8080/" {
		t.Errorf("expected function URL, got %s", cfg.LLM.FunctionURL)
	}
	if cfg.TTS.SpeakingRate != 1.25 || cfg.TTS.SampleRateHz != 24000 {
		t.Errorf("expected TTS 1.25/24000, got %v/%d", cfg.TTS.SpeakingRate, cfg.TTS.SampleRateHz)
	}
	if cfg.SegmentLimits.MaxAudioBytes != 1048576 {
		t.Errorf("expected max audio bytes 1048576, got %d", cfg.SegmentLimits.MaxAudioBytes)
	}
	if cfg.SegmentLimits.MaxAudioDuration != 15*time.Second {
		t.Errorf("expected max audio duration 15s, got %v", cfg.SegmentLimits.MaxAudioDuration)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid configuration, got %v", err)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAP_RATE", "not-a-number")
	t.Setenv("TTS_SPEAKING_RATE", "fast")
	t.Setenv("SESSION_MAX_AUDIO_BYTES", "invalid")
	t.Setenv("LLM_TIMEOUT", "invalid")
	t.Setenv("KAFKA_ENABLED", "invalid")

	cfg := Load()

	// Should fall back to defaults on parse errors
	if cfg.Capture.SampleRate != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Capture.SampleRate)
	}
	if cfg.TTS.SpeakingRate != 1.0 {
		t.Errorf("expected default speaking rate on invalid input, got %v", cfg.TTS.SpeakingRate)
	}
	if cfg.SegmentLimits.MaxAudioBytes != 10*1024*1024 {
		t.Errorf("expected default max audio bytes on invalid input, got %d", cfg.SegmentLimits.MaxAudioBytes)
	}
	if cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("expected default LLM timeout on invalid input, got %v", cfg.LLM.Timeout)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{"defaults", func(c *Configuration) {}, ""},
		{"unknown stt", func(c *Configuration) { c.STT.Provider = "whisper" }, "STT_PROVIDER"},
		{"gemini without key", func(c *Configuration) { c.LLM.Provider = ProviderGemini }, "GEMINI_API_KEY"},
		{"gemini with key", func(c *Configuration) {
			c.LLM.Provider = ProviderGemini
			c.LLM.GeminiAPIKey = "k"
		}, ""},
		{"function without url", func(c *Configuration) { c.LLM.Provider = ProviderFunction }, "FUNCTION_URL"},
		{"unknown tts", func(c *Configuration) { c.TTS.Provider = "espeak" }, "TTS_PROVIDER"},
		{"zero timeout", func(c *Configuration) { c.TTS.Timeout = 0 }, "TTS_TIMEOUT"},
		{"kafka without brokers", func(c *Configuration) { c.Kafka.Enabled = true }, "KAFKA_BROKERS"},
	}

	clearEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateCapture(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if err := cfg.ValidateCapture(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}

	cfg.Capture.FrameMs = 25
	cfg.Capture.VADLevel = 4
	err := cfg.ValidateCapture()
	if err == nil {
		t.Fatal("expected error for 25ms frames and level 4")
	}
	for _, want := range []string{"FRAME_MS", "VAD_AGGRESSIVENESS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			t.Setenv(key, tt.envValue)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	t.Setenv("TEST_LIST_VAR", " a ,b,, c ")

	got := envOrDefaultList("TEST_LIST_VAR", nil)
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("expected [a b c], got %v", got)
	}
	if def := envOrDefaultList("TEST_LIST_UNSET", []string{"x"}); len(def) != 1 || def[0] != "x" {
		t.Errorf("expected default list, got %v", def)
	}
}
