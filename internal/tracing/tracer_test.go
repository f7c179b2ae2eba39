package tracing

import (
	"context"
	"testing"

	"github.com/songzhibin97/qwork/internal/config"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracerProvider() returned error: %v", err)
	}
	if tp.IsEnabled() {
		t.Error("Expected disabled provider")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() returned error: %v", err)
	}
}

func TestNewTracerProvider_RecordsSpans(t *testing.T) {
	tp, err := NewTracerProvider(&config.TracingConfig{
		Enabled: true,
		Jaeger:  config.JaegerConfig{ServiceName: "qwork-test", SampleRate: 1},
	})
	if err != nil {
		t.Fatalf("NewTracerProvider() returned error: %v", err)
	}
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	if !span.IsRecording() {
		t.Error("Expected span to be recording")
	}
	if id := TraceID(ctx); len(id) != 32 {
		t.Errorf("TraceID() = %q, want 32 hex chars", id)
	}
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID() without span = %q, want empty", id)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOffSampler"},
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}
