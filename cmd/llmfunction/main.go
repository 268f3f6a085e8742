// Command llmfunction serves the generation function backed by Gemini.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	functionapi "github.com/yusin8/WERO/internal/api/function"
	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/observability/logging"
	"github.com/yusin8/WERO/internal/service/llm/gemini"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = cfg.Observability.LogFormat
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The key is checked once here; requests never re-validate it.
	gen, err := gemini.New(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Initialization failed")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Function.Port),
		Handler:           functionapi.NewRouter(gen, cfg.LLM.Timeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Str("model", gen.Model()).Msg("Generation function listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
