// Package functionapi serves the generation function: POST {"prompt"} and
// get back {"response"} written in the grandchild persona.
package functionapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/yusin8/WERO/internal/service/llm"
	"github.com/yusin8/WERO/internal/service/llm/function"
)

const maxBodyBytes = 1 << 20

// Wire error strings, kept identical to the deployed function.
const (
	errMissingPrompt = "요청 본문에 'prompt'가 필요합니다."
	errEmptyResponse = "Empty response from model"
	errUpstream      = "Gemini API 요청 오류"
)

// NewRouter returns the function's HTTP handler. gen is expected to apply
// the persona itself.
func NewRouter(gen llm.Generator, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	h := &handler{gen: gen, timeout: timeout}
	r.Post("/", h.generate)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type handler struct {
	gen     llm.Generator
	timeout time.Duration
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt *string `json:"prompt"`
	}
	// A body that is not JSON is treated like one without a prompt.
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if req.Prompt == nil {
		writeJSON(w, http.StatusBadRequest, function.Response{Error: errMissingPrompt})
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := h.gen.Generate(ctx, *req.Prompt)
	logger := log.With().
		Str("requestId", middleware.GetReqID(r.Context())).
		Dur("latency", time.Since(start)).
		Logger()

	switch {
	case errors.Is(err, llm.ErrEmptyResponse), err == nil && text == "":
		logger.Warn().Msg("Model returned no text")
		writeJSON(w, http.StatusBadGateway, function.Response{Error: errEmptyResponse})
	case err != nil:
		logger.Error().Err(err).Msg("Generation failed")
		writeJSON(w, http.StatusInternalServerError, function.Response{Error: errUpstream, Detail: err.Error()})
	default:
		logger.Info().Int("chars", len([]rune(text))).Msg("Generated response")
		writeJSON(w, http.StatusOK, function.Response{Response: text})
	}
}

func writeJSON(w http.ResponseWriter, status int, body function.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
