package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/oriys/azlogforwarder/internal/domain/domaintest"
)

const recordsMessage = `{"records":[{"category":"a"},{"category":"b"},{"category":"c"}]}`

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name  string
		batch any
		want  int
		shape Shape
	}{
		{
			name:  "records object",
			batch: recordsMessage,
			want:  3,
			shape: ShapeRecordsObject,
		},
		{
			name:  "plain object",
			batch: []byte(`{"time":"2024-01-01T00:00:00Z","message":"hi"}`),
			want:  1,
			shape: ShapeJSONObject,
		},
		{
			name:  "decoded plain object",
			batch: map[string]any{"message": "hi"},
			want:  1,
			shape: ShapeJSONObject,
		},
		{
			name:  "records array",
			batch: []string{recordsMessage, recordsMessage},
			want:  6,
			shape: ShapeRecordsArray,
		},
		{
			name:  "json array",
			batch: []string{`{"a":1}`, `{"a":2}`, `{"a":3}`},
			want:  3,
			shape: ShapeJSONArray,
		},
		{
			name:  "string array",
			batch: []any{"line one", "line two"},
			want:  2,
			shape: ShapeStringArray,
		},
		{
			name:  "binary event hub messages",
			batch: [][]byte{[]byte(recordsMessage), []byte(recordsMessage)},
			want:  6,
			shape: ShapeRecordsArray,
		},
		{
			name:  "newline delimited text",
			batch: "{\"a\":1}\n{\"a\":2}\n",
			want:  2,
			shape: ShapeJSONArray,
		},
		{
			name:  "numbers are not logs",
			batch: []any{1, 2, 3},
			want:  0,
			shape: ShapeUnknown,
		},
		{
			name:  "empty collection",
			batch: []string{},
			want:  0,
			shape: ShapeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := domaintest.NewRecorder()
			decoded := Decode(tt.batch, rec)
			got, shape := Classify(decoded)
			if len(got) != tt.want {
				t.Fatalf("len=%d, want %d (%v)", len(got), tt.want, got)
			}
			if shape != tt.shape {
				t.Fatalf("shape=%q, want %q", shape, tt.shape)
			}
		})
	}
}

func TestNormalizeKeepsUndecodableElements(t *testing.T) {
	rec := domaintest.NewRecorder()
	got := Normalize([]string{`{"a":1}`, `not json`}, rec)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	if got[1]["message"] != "not json" {
		t.Fatalf("got[1]=%v, want message wrapper", got[1])
	}
}

func TestNormalizeTextFallback(t *testing.T) {
	rec := domaintest.NewRecorder()
	got := Normalize("plain text line", rec)
	if len(got) != 1 || got[0]["message"] != "plain text line" {
		t.Fatalf("got=%v", got)
	}
	if !rec.HasWarning("Cannot parse logs to JSON") {
		t.Fatalf("expected parse warning, got %v", rec.Warnings())
	}
}

func TestNormalizePreservesNumbers(t *testing.T) {
	rec := domaintest.NewRecorder()
	got := Normalize(`{"records":[{"id":12345678901234567890}]}`, rec)
	if len(got) != 1 {
		t.Fatalf("len=%d, want 1", len(got))
	}
	n, ok := got[0]["id"].(json.Number)
	if !ok || n.String() != "12345678901234567890" {
		t.Fatalf("id=%#v, want exact json.Number", got[0]["id"])
	}
}

func TestNormalizeOrder(t *testing.T) {
	rec := domaintest.NewRecorder()
	got := Normalize(`{"records":[{"n":"1"},{"n":"2"},{"n":"3"}]}`, rec)
	for i, r := range got {
		if want := string(rune('1' + i)); r["n"] != want {
			t.Fatalf("got[%d].n=%v, want %s", i, r["n"], want)
		}
	}
}
