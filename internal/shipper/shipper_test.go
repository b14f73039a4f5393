package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/domain/domaintest"
)

type fakeDeliverer struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ domain.Kind, body []byte, _ string, _ map[string]string, _ domain.ExecutionContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return f.err
}

func decompress(t *testing.T, body []byte) []map[string]json.RawMessage {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return payload
}

func randomItems(n, size int) []any {
	r := rand.New(rand.NewSource(1))
	items := make([]any, n)
	for i := range items {
		buf := make([]byte, size)
		r.Read(buf)
		items[i] = map[string]any{"message": fmt.Sprintf("%d-%x", i, buf)}
	}
	return items
}

func request(items []any) Request {
	return Request{
		Common:   domain.Common{Attributes: map[string]any{"plugin.type": "azure"}},
		Kind:     domain.KindLogs,
		Items:    items,
		Endpoint: "https://example.invalid/log/v1",
	}
}

func TestCompressPayloadShape(t *testing.T) {
	body, err := Compress(domain.Common{Attributes: map[string]any{"a": "<b>"}}, domain.KindSpans, []any{map[string]any{"id": "1"}})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	payload := decompress(t, body)
	if len(payload) != 1 {
		t.Fatalf("len(payload)=%d, want 1", len(payload))
	}
	if _, ok := payload[0]["spans"]; !ok {
		t.Fatalf("payload missing spans key: %v", payload[0])
	}
	if !bytes.Contains(payload[0]["common"], []byte("<b>")) {
		t.Fatalf("common=%s, want unescaped html", payload[0]["common"])
	}
}

func TestSendSingleChunk(t *testing.T) {
	d := &fakeDeliverer{}
	ectx := domaintest.NewRecorder()

	rep := New(1000*1024, d, nil).Send(context.Background(), request(randomItems(10, 16)), ectx)

	if len(d.bodies) != 1 || rep.Chunks != 1 || rep.Delivered != 10 || rep.Splits != 0 {
		t.Fatalf("bodies=%d report=%+v", len(d.bodies), rep)
	}
	var logs []any
	if err := json.Unmarshal(decompress(t, d.bodies[0])[0]["logs"], &logs); err != nil || len(logs) != 10 {
		t.Fatalf("logs=%d err=%v", len(logs), err)
	}
	if len(ectx.Logs()) != 1 || ectx.Logs()[0] != "Logs payload successfully sent to New Relic." {
		t.Fatalf("logs=%v", ectx.Logs())
	}
}

func TestSendSplitsUnderLimit(t *testing.T) {
	const n = 64
	const maxSize = 2048
	d := &fakeDeliverer{}
	ectx := domaintest.NewRecorder()

	rep := New(maxSize, d, nil).Send(context.Background(), request(randomItems(n, 200)), ectx)

	if rep.Dropped != 0 || rep.Delivered != n {
		t.Fatalf("report=%+v, want all %d delivered", rep, n)
	}
	if rep.Splits == 0 || rep.Splits > n-1 {
		t.Fatalf("splits=%d, want 1..%d", rep.Splits, n-1)
	}
	if rep.MaxDepth > 6 {
		t.Fatalf("max depth=%d, want <= log2(%d)", rep.MaxDepth, n)
	}
	total := 0
	for _, body := range d.bodies {
		if len(body) > maxSize {
			t.Fatalf("chunk size %d exceeds %d", len(body), maxSize)
		}
		var logs []any
		if err := json.Unmarshal(decompress(t, body)[0]["logs"], &logs); err != nil {
			t.Fatal(err)
		}
		total += len(logs)
	}
	if total != n {
		t.Fatalf("delivered records=%d, want %d", total, n)
	}
}

func TestSendOversizedSingleRecord(t *testing.T) {
	d := &fakeDeliverer{}
	ectx := domaintest.NewRecorder()

	rep := New(256, d, nil).Send(context.Background(), request(randomItems(1, 4096)), ectx)

	if len(d.bodies) != 0 {
		t.Fatalf("deliveries=%d, want 0", len(d.bodies))
	}
	if rep.Dropped != 1 || rep.Splits != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if !ectx.HasError(domain.ErrOversizedRecord.Error()) {
		t.Fatalf("errors=%v", ectx.Errors())
	}
}

func TestSendOversizedRecordDoesNotBlockSiblings(t *testing.T) {
	d := &fakeDeliverer{}
	ectx := domaintest.NewRecorder()
	items := append(randomItems(3, 8), randomItems(1, 4096)...)

	rep := New(1024, d, nil).Send(context.Background(), request(items), ectx)

	if rep.Dropped != 1 || rep.Delivered != 3 {
		t.Fatalf("report=%+v, want 3 delivered and 1 dropped", rep)
	}
}

func TestSendDeliveryFailure(t *testing.T) {
	d := &fakeDeliverer{err: errors.New("status 500")}
	ectx := domaintest.NewRecorder()

	rep := New(1000*1024, d, nil).Send(context.Background(), request(randomItems(2, 8)), ectx)

	if rep.Dropped != 2 || rep.Chunks != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if !ectx.HasError("Max retries reached: failed to send logs payload to New Relic") {
		t.Fatalf("errors=%v", ectx.Errors())
	}
}

func TestSendEmpty(t *testing.T) {
	d := &fakeDeliverer{}
	rep := New(1024, d, nil).Send(context.Background(), request(nil), domaintest.NewRecorder())
	if len(d.bodies) != 0 || rep != (Report{}) {
		t.Fatalf("bodies=%d report=%+v", len(d.bodies), rep)
	}
}

func TestSendMaxSplitDepth(t *testing.T) {
	tests := []struct {
		name          string
		depth         int
		wantDelivered int
		wantDropped   int
		wantSplits    int
	}{
		{"cap reached before split", 0, 0, 4, 0},
		{"one split allowed", 1, 4, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDeliverer{}
			ectx := domaintest.NewRecorder()

			rep := New(2048, d, nil, WithMaxSplitDepth(tt.depth)).
				Send(context.Background(), request(randomItems(4, 600)), ectx)

			if rep.Delivered != tt.wantDelivered || rep.Dropped != tt.wantDropped || rep.Splits != tt.wantSplits {
				t.Fatalf("report=%+v, want delivered=%d dropped=%d splits=%d",
					rep, tt.wantDelivered, tt.wantDropped, tt.wantSplits)
			}
			capped := ectx.HasError(domain.ErrMaxDepthExceeded.Error())
			if capped != (tt.wantDropped > 0) {
				t.Fatalf("depth error logged=%v, errors=%v", capped, ectx.Errors())
			}
		})
	}
}
