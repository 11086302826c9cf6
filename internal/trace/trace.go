package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "oi-tracker"

	attrUpstream    = attribute.Key("nse.upstream")
	attrInstruments = attribute.Key("nse.instruments")
	attrTimezone    = attribute.Key("nse.window.timezone")
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// Service describes the tracker instance stamped on every exported span.
type Service struct {
	Upstream    string
	Instruments []string
	Timezone    string
}

func (s Service) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion("1.0.0"),
	}
	if s.Upstream != "" {
		attrs = append(attrs, attrUpstream.String(s.Upstream))
	}
	if len(s.Instruments) > 0 {
		attrs = append(attrs, attrInstruments.StringSlice(s.Instruments))
	}
	if s.Timezone != "" {
		attrs = append(attrs, attrTimezone.String(s.Timezone))
	}
	return attrs
}

// Init installs a stdout tracer provider unless LOG_TRACING_ENABLED=false.
func Init(svc Service) error {
	enabled = getEnv("LOG_TRACING_ENABLED", "true") == "true"
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		enabled = false
		return err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(svc.attributes()...))
	if err != nil {
		enabled = false
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(serviceName)
	return nil
}

func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// StartSpan returns ctx's current span unchanged when tracing is off.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

// SymbolAttr tags a span with the instrument it concerns.
func SymbolAttr(symbol string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("nse.symbol", symbol))
}

func Enabled() bool {
	return enabled
}

func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
