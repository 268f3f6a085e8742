package app

import (
	"testing"

	"github.com/yusin8/WERO/internal/config"
)

func TestApplication_Lifecycle(t *testing.T) {
	a := New(config.Load())

	if a.Ready() {
		t.Error("expected not ready before Start")
	}
	if a.Uptime() != 0 {
		t.Errorf("expected zero uptime before Start, got %v", a.Uptime())
	}

	if err := a.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Ready() {
		t.Error("expected ready after Start")
	}
	if a.StartupTime.IsZero() {
		t.Error("expected startup time to be set")
	}

	a.Shutdown()
	if a.Ready() {
		t.Error("expected not ready after Shutdown")
	}
}
