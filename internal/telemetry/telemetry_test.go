package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
)

var _ domain.ExecutionContext = (*InvocationContext)(nil)

func TestInvocationContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	ectx := NewInvocation(context.Background(), logger, "fnlogforwarder", "")
	if ectx.InvocationID() == "" {
		t.Fatalf("expected generated invocation id")
	}
	ectx.Warn("Cannot parse logs to JSON")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if line["function_name"] != "fnlogforwarder" || line["invocation_id"] != ectx.InvocationID() {
		t.Fatalf("fields=%v", line)
	}
	if line["level"] != "warning" || line["msg"] != "Cannot parse logs to JSON" {
		t.Fatalf("line=%v", line)
	}
}

func TestNewLoggerFallbackLevel(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{Level: "loud"}, nil)
	if logger.GetLevel().String() != "info" {
		t.Fatalf("level=%s, want info", logger.GetLevel())
	}
}

func TestDisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{ServiceName: "x"}, "dev", "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tel.IsEnabled() || tel.Tracer() == nil {
		t.Fatalf("unexpected telemetry state")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestHTTPSpanFilterAndNames(t *testing.T) {
	tests := []struct {
		method, target string
		traced         bool
		server, client string
	}{
		{"POST", "https://fn.example/api/logs", true, "POST /api/logs", "POST fn.example"},
		{"GET", "https://fn.example/health/ready", false, "GET /health/ready", "GET fn.example"},
		{"GET", "https://fn.example/metrics", false, "GET /metrics", "GET fn.example"},
		{"POST", "https://log-api.newrelic.com/log/v1", true, "POST /log/v1", "POST log-api.newrelic.com"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.target, nil)
		if got := traced(r); got != tt.traced {
			t.Fatalf("traced(%s)=%v, want %v", tt.target, got, tt.traced)
		}
		if got := serverSpanName(r); got != tt.server {
			t.Fatalf("serverSpanName=%q, want %q", got, tt.server)
		}
		if got := clientSpanName(r); got != tt.client {
			t.Fatalf("clientSpanName=%q, want %q", got, tt.client)
		}
	}
}

func TestInstrumentedHTTPClient(t *testing.T) {
	c := InstrumentedHTTPClient(5 * time.Second)
	if c.Timeout != 5*time.Second || c.Transport == nil {
		t.Fatalf("client=%+v", c)
	}
}
