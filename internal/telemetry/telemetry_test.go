package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Endpoint: "http://collector:4318"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestSetupRequiresEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: true})
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if shutdown == nil {
		t.Fatal("shutdown must never be nil")
	}
}

func TestSetupEnabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: true, Endpoint: "http://127.0.0.1:4318"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing was exported, so shutting down with a dead context is fine to ignore.
	_ = shutdown(ctx)
}
