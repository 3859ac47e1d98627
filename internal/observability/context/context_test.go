package context

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithActorID(context.Background(), "  ")
	if got := ActorIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty actor id, got %q", got)
	}
	if got := RequestIDFromContext(nil); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}
