package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/reinhart/assistantGPT/internal/configuration"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	for _, cfg := range []configuration.TelemetryConfig{
		{Enabled: false, OTLPEndpoint: "localhost:4317"},
		{Enabled: true, OTLPEndpoint: ""},
	} {
		shutdown, err := Init(cfg)
		if err != nil {
			t.Fatalf("Init(%+v) error = %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	}

	if otel.GetTracerProvider() != before {
		t.Error("disabled telemetry replaced the global tracer provider")
	}
}

func TestInit_Enabled(t *testing.T) {
	// the gRPC exporter connects lazily, so no collector is needed to build it
	shutdown, err := Init(configuration.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "127.0.0.1:4317",
		ServiceName:  "assistantgpt-test",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw          string
		wantHost     string
		wantInsecure bool
		wantErr      bool
	}{
		{raw: "localhost:4317", wantHost: "localhost:4317", wantInsecure: true},
		{raw: "http://localhost:4317", wantHost: "localhost:4317", wantInsecure: true},
		{raw: " https://otel.example.com:4317/ ", wantHost: "otel.example.com:4317"},
		{raw: "grpc://localhost:4317", wantErr: true},
		{raw: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, insecure, err := parseEndpoint(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEndpoint(%q) = %q, want error", tt.raw, host)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint(%q) error = %v", tt.raw, err)
			}
			if host != tt.wantHost || insecure != tt.wantInsecure {
				t.Errorf("parseEndpoint(%q) = %q, %v; want %q, %v", tt.raw, host, insecure, tt.wantHost, tt.wantInsecure)
			}
		})
	}
}

func TestInit_EndpointURL(t *testing.T) {
	shutdown, err := Init(configuration.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "http://127.0.0.1:4317",
		ServiceName:  "assistantgpt-test",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
