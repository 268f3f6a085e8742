package function

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yusin8/WERO/internal/service/llm"
)

func TestClient_Generate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Response{Response: " 네, 좋아요. "})
	}))
	defer srv.Close()

	text, err := New(srv.URL, srv.Client()).Generate(context.Background(), "안녕")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "네, 좋아요." {
		t.Errorf("expected trimmed response, got %q", text)
	}
	if got.Prompt != "안녕" {
		t.Errorf("expected prompt '안녕', got %q", got.Prompt)
	}
}

func TestClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"empty 200", http.StatusOK, `{"response":""}`, llm.ErrEmptyResponse},
		{"missing field", http.StatusOK, `{}`, llm.ErrEmptyResponse},
		{"empty model output", http.StatusBadGateway, `{"error":"Empty response from model"}`, llm.ErrEmptyResponse},
		{"upstream failure", http.StatusInternalServerError, `{"error":"upstream"}`, llm.ErrGenerationFailed},
		{"bad request", http.StatusBadRequest, `not json`, llm.ErrGenerationFailed},
		{"bad json", http.StatusOK, `{"response":`, llm.ErrGenerationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, srv.Client()).Generate(context.Background(), "q")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClient_Generate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, srv.Client()).Generate(ctx, "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestClient_Generate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).Generate(context.Background(), "q")
	if !errors.Is(err, llm.ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}
