package app

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/observability/logging"
)

const serviceName = "voice-gateway"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Voice gateway application created")
	return a
}

// setupLogger configures the global zerolog logger and the service logger.
// ZEROLOG_LOG_LEVEL overrides LOG_LEVEL; ENV=dev switches to console output.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	if a.Cfg != nil {
		logCfg.Level = a.Cfg.Observability.LogLevel
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		logCfg.Level = strings.ToLower(envLevel)
	}
	if os.Getenv("ENV") == "dev" {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	a.Logger = logging.Logger().With().
		Str("service", serviceName).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("listenAddr", a.Cfg.ListenAddr()).
		Str("stt", a.Cfg.STT.Provider).
		Str("llm", a.Cfg.LLM.Provider).
		Str("tts", a.Cfg.TTS.Provider).
		Msg("Voice gateway starting")

	return nil
}

// Ready reports whether the service is accepting sessions.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Uptime returns the time since Start.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Dur("uptime", a.Uptime()).
		Msg("Voice gateway shutting down")
}
