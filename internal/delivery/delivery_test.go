package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/domain/domaintest"
)

func newClient(retries, intervalMs int) *Client {
	return New(config.Settings{
		LicenseKey:        "license-123",
		SourceServiceType: "@azure/FunctionApp",
		MaxRetries:        retries,
		RetryIntervalMs:   intervalMs,
	})
}

func TestHTTPSendHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"requestId":"r1"}`))
	}))
	defer srv.Close()

	ectx := domaintest.NewRecorder()
	body, err := newClient(3, 1).HTTPSend(context.Background(), []byte("x"), srv.URL, SpanHeaders(), ectx)
	if err != nil {
		t.Fatalf("HTTPSend: %v", err)
	}
	if string(body) != `{"requestId":"r1"}` {
		t.Fatalf("body=%q", body)
	}
	want := map[string]string{
		"Content-Type":        "application/json",
		"Content-Encoding":    "gzip",
		"X-License-Key":       "license-123",
		"Data-Format":         "newrelic",
		"Data-Format-Version": "1",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Fatalf("header %s=%q, want %q", k, got.Get(k), v)
		}
	}
	if !ectx.HasLog("Got response: 202") {
		t.Fatalf("logs=%v", ectx.Logs())
	}
}

func TestHTTPSendOnlyAcceptedSucceeds(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := newClient(1, 1).HTTPSend(context.Background(), nil, srv.URL, nil, domaintest.NewRecorder())
		srv.Close()
		if !errors.Is(err, domain.ErrDelivery) {
			t.Fatalf("status %d: err=%v, want ErrDelivery", status, err)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != status {
			t.Fatalf("status %d: err=%v, want StatusError", status, err)
		}
	}
}

func TestDeliverRetryExhaustion(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	const interval = 30 * time.Millisecond
	err := newClient(3, int(interval/time.Millisecond)).Deliver(context.Background(), domain.KindLogs, []byte("x"), srv.URL, nil, domaintest.NewRecorder())
	if !errors.Is(err, domain.ErrDelivery) {
		t.Fatalf("err=%v, want ErrDelivery", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("attempts=%d, want 3", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval {
			t.Fatalf("gap between attempts %d and %d = %v, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestDeliverRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := newClient(3, 1).Deliver(context.Background(), domain.KindSpans, []byte("x"), srv.URL, nil, domaintest.NewRecorder())
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("attempts=%d, want 2", calls.Load())
	}
}

func TestDeliverSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_ = newClient(1, 1).Deliver(context.Background(), domain.KindLogs, nil, srv.URL, nil, domaintest.NewRecorder())
	if calls.Load() != 1 {
		t.Fatalf("attempts=%d, want 1", calls.Load())
	}
}

func TestDeliverTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newClient(2, 1).Deliver(context.Background(), domain.KindLogs, nil, url, nil, domaintest.NewRecorder())
	if !errors.Is(err, domain.ErrDelivery) {
		t.Fatalf("err=%v, want ErrDelivery", err)
	}
}
