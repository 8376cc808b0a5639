package ratelimit

import (
	"context"
	"testing"
)

func TestWaitUnconfiguredServicePassesThrough(t *testing.T) {
	r := NewRegistry()
	if err := r.Wait(context.Background(), "unknown"); err != nil {
		t.Fatalf("expected nil error for unconfigured service, got %v", err)
	}
}

func TestWaitConfiguredServiceAllowsFirstRequest(t *testing.T) {
	r := NewRegistry()
	r.Configure("test", 10, 1)
	if err := r.Wait(context.Background(), "test"); err != nil {
		t.Fatalf("expected first request to be allowed immediately, got %v", err)
	}
}

func TestWaitCancelledContext(t *testing.T) {
	r := NewRegistry()
	r.Configure("test", 0.001, 1)
	// Exhaust the burst.
	_ = r.Wait(context.Background(), "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Wait(ctx, "test"); err == nil {
		t.Fatal("expected error for cancelled context while waiting")
	}
}
