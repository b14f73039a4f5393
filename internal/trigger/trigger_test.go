package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"

	"github.com/oriys/azlogforwarder/internal/auth"
	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/forwarder"
	"github.com/oriys/azlogforwarder/internal/metrics"
	"github.com/oriys/azlogforwarder/internal/shipper"
)

type call struct {
	batch        any
	functionName string
	invocationID string
}

type fakeForwarder struct {
	mu     sync.Mutex
	calls  []call
	result forwarder.Result
	err    error
}

func (f *fakeForwarder) Forward(ctx context.Context, batch any, ectx domain.ExecutionContext) (forwarder.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{batch: batch, functionName: ectx.FunctionName(), invocationID: ectx.InvocationID()})
	return f.result, f.err
}

func (f *fakeForwarder) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func okResult() forwarder.Result {
	return forwarder.Result{
		Records:    3,
		Spans:      1,
		Logs:       shipper.Report{Chunks: 1, Delivered: 3},
		SpanReport: shipper.Report{Chunks: 1, Delivered: 1},
	}
}

func newTestRouter(f Forwarder, m *metrics.Metrics, mw *auth.Middleware, checks ...ReadyCheck) http.Handler {
	return NewRouter(&RouterConfig{
		Dispatcher:  NewDispatcher(f, quietLogger(), m),
		Server:      config.ServerConfig{MaxBodyBytes: 64},
		Trigger:     config.HTTPTriggerConfig{Enabled: true, Name: "fnlogforwarderhttp", Path: "/api/logs"},
		Auth:        mw,
		Gatherer:    prometheus.NewRegistry(),
		ReadyChecks: checks,
		ServiceName: "test",
	})
}

func TestHTTPTriggerAccepted(t *testing.T) {
	fw := &fakeForwarder{result: okResult()}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	router := newTestRouter(fw, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(`{"records":[]}`))
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want %d body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp invocationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.InvocationID != "req-1" || resp.Status != forwarder.StatusSuccess {
		t.Fatalf("resp=%+v, want invocation req-1 with success", resp)
	}
	if resp.Records != 3 || resp.Spans != 1 || resp.Delivered != 4 {
		t.Fatalf("resp=%+v, want records=3 spans=1 delivered=4", resp)
	}

	calls := fw.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls=%d, want 1", len(calls))
	}
	if got := string(calls[0].batch.([]byte)); got != `{"records":[]}` {
		t.Fatalf("batch=%q", got)
	}
	if calls[0].functionName != "fnlogforwarderhttp" {
		t.Fatalf("functionName=%q", calls[0].functionName)
	}
	if got := testutil.ToFloat64(m.TriggerMessagesTotal.WithLabelValues(KindHTTP, metrics.ResultSuccess)); got != 1 {
		t.Fatalf("trigger messages=%v, want 1", got)
	}
}

func TestHTTPTriggerErrors(t *testing.T) {
	tests := []struct {
		name string
		fw   *fakeForwarder
		body string
		want int
	}{
		{"config error", &fakeForwarder{err: domain.ErrMissingLicenseKey}, `[]`, http.StatusInternalServerError},
		{"body too large", &fakeForwarder{}, strings.Repeat("x", 128), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.fw, nil, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status=%d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHTTPTriggerInvalidFormat(t *testing.T) {
	fw := &fakeForwarder{}
	router := newTestRouter(fw, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(`42`)))

	var resp invocationResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusAccepted || resp.Status != forwarder.StatusInvalidFormat {
		t.Fatalf("status=%d resp=%+v, want 202 invalid_format", rec.Code, resp)
	}
}

func TestHTTPTriggerAuth(t *testing.T) {
	mw := auth.NewMiddleware(nil, "x-functions-key", auth.NewFunctionKeyValidator("secret"), true)
	router := newTestRouter(&fakeForwarder{result: okResult()}, nil, mw)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing key", "", "", http.StatusUnauthorized},
		{"wrong key", "nope", "", http.StatusUnauthorized},
		{"header key", "secret", "", http.StatusAccepted},
		{"query key", "", "?code=secret", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/logs"+tt.query, strings.NewReader(`[]`))
			if tt.header != "" {
				req.Header.Set("x-functions-key", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status=%d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	var notReady error
	router := newTestRouter(&fakeForwarder{}, nil, nil, func() error { return notReady })

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d, want 200", path, rec.Code)
		}
	}

	notReady = errors.New("nats: not connected")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status=%d, want 503", rec.Code)
	}
}

func TestHTTPTriggerDisabled(t *testing.T) {
	router := NewRouter(&RouterConfig{
		Dispatcher: NewDispatcher(&fakeForwarder{}, quietLogger(), nil),
		Trigger:    config.HTTPTriggerConfig{Enabled: false, Path: "/api/logs"},
		Gatherer:   prometheus.NewRegistry(),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(`[]`)))
	if rec.Code == http.StatusAccepted {
		t.Fatalf("disabled trigger accepted the request")
	}
}

func newTestBlob(t *testing.T, fw Forwarder, processed bool) *BlobTrigger {
	t.Helper()
	dir := t.TempDir()
	cfg := config.BlobTriggerConfig{
		Name:          "fnlogforwarderblob",
		Dir:           filepath.Join(dir, "in"),
		Pattern:       "*.json",
		SweepSchedule: "@every 1m",
	}
	if processed {
		cfg.ProcessedDir = filepath.Join(dir, "done")
	}
	bt, err := NewBlobTrigger(cfg, NewDispatcher(fw, quietLogger(), nil), quietLogger())
	if err != nil {
		t.Fatalf("NewBlobTrigger: %v", err)
	}
	return bt
}

func writeBlob(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestBlobProcessFile(t *testing.T) {
	fw := &fakeForwarder{result: okResult()}
	bt := newTestBlob(t, fw, false)
	p := writeBlob(t, bt.cfg.Dir, "a.json", `{"records":[{"time":"x"}]}`)

	bt.ProcessFile(context.Background(), p)

	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("blob still present after processing: %v", err)
	}
	calls := fw.Calls()
	if len(calls) != 1 || string(calls[0].batch.([]byte)) != `{"records":[{"time":"x"}]}` {
		t.Fatalf("calls=%+v", calls)
	}
}

func TestBlobProcessedDir(t *testing.T) {
	bt := newTestBlob(t, &fakeForwarder{result: okResult()}, true)
	p := writeBlob(t, bt.cfg.Dir, "a.json", `[]`)

	bt.ProcessFile(context.Background(), p)

	if _, err := os.Stat(filepath.Join(bt.cfg.ProcessedDir, "a.json")); err != nil {
		t.Fatalf("blob not moved: %v", err)
	}
}

func TestBlobKeptOnConfigError(t *testing.T) {
	bt := newTestBlob(t, &fakeForwarder{err: domain.ErrMissingLicenseKey}, false)
	p := writeBlob(t, bt.cfg.Dir, "a.json", `[]`)

	bt.ProcessFile(context.Background(), p)

	if _, err := os.Stat(p); err != nil {
		t.Fatalf("blob removed despite configuration error: %v", err)
	}
}

func TestBlobSweep(t *testing.T) {
	fw := &fakeForwarder{result: okResult()}
	bt := newTestBlob(t, fw, false)
	writeBlob(t, bt.cfg.Dir, "a.json", `[]`)
	writeBlob(t, bt.cfg.Dir, "b.json", `[]`)
	skipped := writeBlob(t, bt.cfg.Dir, "c.tmp", `[]`)

	bt.Sweep(context.Background())

	if got := len(fw.Calls()); got != 2 {
		t.Fatalf("calls=%d, want 2", got)
	}
	if _, err := os.Stat(skipped); err != nil {
		t.Fatalf("non-matching file touched: %v", err)
	}
}

func TestBlobInflight(t *testing.T) {
	bt := newTestBlob(t, &fakeForwarder{}, false)
	if !bt.acquire("a") {
		t.Fatalf("first acquire failed")
	}
	if bt.acquire("a") {
		t.Fatalf("second acquire succeeded while in flight")
	}
	bt.release("a")
	if !bt.acquire("a") {
		t.Fatalf("acquire after release failed")
	}
}

func TestNewBlobTriggerInvalidPattern(t *testing.T) {
	cfg := config.BlobTriggerConfig{Dir: t.TempDir(), Pattern: "[", SweepSchedule: "@every 1m"}
	if _, err := NewBlobTrigger(cfg, NewDispatcher(&fakeForwarder{}, quietLogger(), nil), quietLogger()); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

type blockingForwarder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingForwarder) Forward(ctx context.Context, batch any, ectx domain.ExecutionContext) (forwarder.Result, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return okResult(), nil
}

func TestBlobRunWaitsForInflightFiles(t *testing.T) {
	fw := &blockingForwarder{started: make(chan struct{}), release: make(chan struct{})}
	bt := newTestBlob(t, fw, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bt.Run(ctx) }()

	p := writeBlob(t, bt.cfg.Dir, "a.json", `[]`)
	select {
	case <-fw.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("blob was not picked up")
	}

	cancel()
	select {
	case <-done:
		t.Fatalf("Run returned while a file was still being forwarded")
	case <-time.After(100 * time.Millisecond):
	}

	close(fw.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after the invocation finished")
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("blob still present after Run returned: %v", err)
	}
}
