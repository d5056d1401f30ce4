package claim

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/pulse/internal/alert"
)

func TestTransitionSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	updated := alert.Alert{ID: "a-1", ClaimedBy: clinician.ID}
	api := &mockAPI{resp: &updated}
	c := New(api, seeded(""), nil, nil, nil, nil, nil)

	if _, err := c.Claim(context.Background(), "a-1", clinician); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	// conflict against the freshly overlaid owner
	if _, err := c.Claim(context.Background(), "a-1", other); err == nil {
		t.Fatal("expected conflict error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}

	for i, s := range spans {
		if s.Name != "claim.Claim" {
			t.Errorf("span[%d].Name = %q, want claim.Claim", i, s.Name)
		}
		attrs := map[string]string{}
		for _, kv := range s.Attributes {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		if attrs["pulse.alert.id"] != "a-1" {
			t.Errorf("span[%d] pulse.alert.id = %q, want a-1", i, attrs["pulse.alert.id"])
		}
		if attrs["pulse.actor.role"] != string(alert.RoleClinician) {
			t.Errorf("span[%d] pulse.actor.role = %q", i, attrs["pulse.actor.role"])
		}
	}

	// the conflicting claim records the error on its span
	conflict := spans[1]
	if len(conflict.Events) == 0 {
		t.Error("conflict span has no recorded error event")
	}
}
