package functionapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yusin8/WERO/internal/service/llm"
	"github.com/yusin8/WERO/internal/service/llm/function"
	"github.com/yusin8/WERO/internal/service/llm/mock"
)

func TestHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		gen      *mock.Generator
		wantCode int
		contains string
	}{
		{
			name:     "success",
			body:     `{"prompt":"안녕"}`,
			gen:      &mock.Generator{Reply: func(p string) string { return "네, " + p }},
			wantCode: http.StatusOK,
			contains: `"response":"네, 안녕"`,
		},
		{
			name:     "missing prompt",
			body:     `{"question":"안녕"}`,
			gen:      mock.New(),
			wantCode: http.StatusBadRequest,
			contains: errMissingPrompt,
		},
		{
			name:     "not json",
			body:     `prompt=hi`,
			gen:      mock.New(),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty model output",
			body:     `{"prompt":"안녕"}`,
			gen:      &mock.Generator{Err: llm.ErrEmptyResponse},
			wantCode: http.StatusBadGateway,
			contains: errEmptyResponse,
		},
		{
			name:     "upstream failure",
			body:     `{"prompt":"안녕"}`,
			gen:      &mock.Generator{Err: errors.New("quota exceeded")},
			wantCode: http.StatusInternalServerError,
			contains: "quota exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			NewRouter(tt.gen, time.Second).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, rec.Body.String())
			}
		})
	}
}

// switchGen lets a test change the outcome between requests.
type switchGen struct {
	mu      sync.Mutex
	err     error
	prompts []string
}

func (g *switchGen) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return "잘 지내요", nil
}

func (g *switchGen) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// The gateway's function client and this handler agree on the wire format.
func TestHandler_FunctionClientRoundTrip(t *testing.T) {
	gen := &switchGen{}
	ts := httptest.NewServer(NewRouter(gen, time.Second))
	defer ts.Close()

	c := function.New(ts.URL, ts.Client())
	text, err := c.Generate(context.Background(), "잘 지내세요?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "잘 지내요" {
		t.Errorf("expected 잘 지내요, got %q", text)
	}
	gen.mu.Lock()
	if len(gen.prompts) != 1 || gen.prompts[0] != "잘 지내세요?" {
		t.Errorf("expected prompt forwarded unchanged, got %v", gen.prompts)
	}
	gen.mu.Unlock()

	gen.fail(llm.ErrEmptyResponse)
	if _, err := c.Generate(context.Background(), "?"); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse through the client, got %v", err)
	}

	gen.fail(errors.New("boom"))
	if _, err := c.Generate(context.Background(), "?"); !errors.Is(err, llm.ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed through the client, got %v", err)
	}
}
