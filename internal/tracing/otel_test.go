package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer_ExportsSpansOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("triage-dispatch", "test", &buf)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "dispatch.Claim")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "dispatch.Claim") || !strings.Contains(out, "triage-dispatch") {
		t.Fatalf("expected span and service name in export, got %q", out)
	}
}
