package tracing

import (
	"testing"

	"github.com/oriys/azlogforwarder/internal/config"
	"github.com/oriys/azlogforwarder/internal/domain"
	"github.com/oriys/azlogforwarder/internal/domain/domaintest"
	"github.com/oriys/azlogforwarder/internal/processor"
)

func lookup(t *testing.T, sourceType string) processor.Processor {
	t.Helper()
	p, err := processor.Lookup(config.Settings{LicenseKey: "k", SourceServiceType: sourceType})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtractUnsupported(t *testing.T) {
	ectx := domaintest.NewRecorder()
	spans := Extract(lookup(t, processor.TypeFunctionApp), []domain.StructuredLog{{}}, ectx)
	if spans != nil {
		t.Fatalf("spans=%v, want nil", spans)
	}
	if !ectx.HasWarning("Tracing is not allowed for this service type @azure/FunctionApp") {
		t.Fatalf("warnings=%v", ectx.Warnings())
	}
}

func TestExtractNoTerminalRecords(t *testing.T) {
	p := lookup(t, processor.TypeAPIManagementService)
	ectx := domaintest.NewRecorder()
	logs := []domain.StructuredLog{
		p.Process(domain.Record{"kind": "request", "properties": map[string]any{}}, ectx),
	}

	if spans := Extract(p, logs, ectx); len(spans) != 0 {
		t.Fatalf("len(spans)=%d, want 0", len(spans))
	}
	if !ectx.HasWarning("No spans found in the logs.") {
		t.Fatalf("warnings=%v", ectx.Warnings())
	}
}

func TestExtractTerminalRecords(t *testing.T) {
	p := lookup(t, processor.TypeAPIManagementService)
	ectx := domaintest.NewRecorder()
	var logs []domain.StructuredLog
	for _, kind := range []string{"request", "response", "error"} {
		logs = append(logs, p.Process(domain.Record{
			"kind":       kind,
			"traceId":    "t",
			"spanId":     kind,
			"properties": map[string]any{},
		}, ectx))
	}

	spans := Extract(p, logs, ectx)
	if len(spans) != 2 {
		t.Fatalf("len(spans)=%d, want 2", len(spans))
	}
	if spans[0].ID != "response" || spans[1].ID != "error" {
		t.Fatalf("span ids=%q,%q", spans[0].ID, spans[1].ID)
	}
	if len(Items(spans)) != 2 {
		t.Fatalf("Items length mismatch")
	}
	if ectx.HasWarning("No spans found") {
		t.Fatalf("unexpected warning %v", ectx.Warnings())
	}
}
