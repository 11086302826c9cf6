package trace

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestServiceAttributes(t *testing.T) {
	svc := Service{
		Upstream:    "https://www.nseindia.com",
		Instruments: []string{"NIFTY", "TCS"},
		Timezone:    "Asia/Kolkata",
	}

	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range svc.attributes() {
		got[kv.Key] = kv.Value
	}

	if got["service.name"].AsString() != "oi-tracker" {
		t.Errorf("Expected service name oi-tracker, got %q", got["service.name"].AsString())
	}
	if got[attrUpstream].AsString() != "https://www.nseindia.com" {
		t.Errorf("Expected upstream attribute, got %q", got[attrUpstream].AsString())
	}
	if syms := got[attrInstruments].AsStringSlice(); len(syms) != 2 || syms[1] != "TCS" {
		t.Errorf("Expected instruments [NIFTY TCS], got %v", syms)
	}
	if got[attrTimezone].AsString() != "Asia/Kolkata" {
		t.Errorf("Expected timezone attribute, got %q", got[attrTimezone].AsString())
	}
}

func TestServiceAttributesOmitEmpty(t *testing.T) {
	attrs := Service{}.attributes()
	if len(attrs) != 2 {
		t.Errorf("Expected only service name and version, got %v", attrs)
	}
}

func TestInitDisabled(t *testing.T) {
	t.Setenv("LOG_TRACING_ENABLED", "false")
	if err := Init(Service{Upstream: "http://localhost"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if Enabled() {
		t.Error("Expected tracing disabled")
	}

	ctx, span := StartSpan(context.Background(), "noop", SymbolAttr("NIFTY"))
	span.End()
	if _, _, ok := GetTraceFields(ctx); ok {
		t.Error("Expected no trace fields while disabled")
	}
}
