package telemetry

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func fixedLogger(t *testing.T, buf *bytes.Buffer) *Logger {
	t.Helper()
	logger, err := NewLogger(buf, "wf-123")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return logger
}

func TestLoggerEmitWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedLogger(t, &buf)

	err := logger.Emit(Entry{
		Category: CategoryWorkflow,
		Message:  "scanning layers",
		Step:     "discovery",
		Metadata: map[string]string{"custom": "2"},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}

	var got line
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := line{
		Time:       "2024-03-01T12:00:00Z",
		Severity:   SeverityInfo,
		Category:   CategoryWorkflow,
		Message:    "scanning layers",
		WorkflowID: "wf-123",
		Step:       "discovery",
		Metadata:   map[string]string{"custom": "2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected line (-want +got):\n%s", diff)
	}
}

func TestLoggerEmitEscalatesSeverityOnError(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedLogger(t, &buf)

	err := logger.Emit(Entry{
		Category: CategoryCommand,
		Message:  "application finished",
		Severity: SeverityInfo,
		Command:  "/usr/bin/vkcube --c 100",
		Output:   "vkCreateInstance failed",
		Error:    errors.New("exit status 1"),
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["severity"] != string(SeverityError) || payload["error"] != "exit status 1" {
		t.Fatalf("expected error severity and message, got %v", payload)
	}
	if payload["output"] != "vkCreateInstance failed" {
		t.Fatalf("expected output excerpt, got %v", payload["output"])
	}
	if _, ok := payload["metadata"]; ok {
		t.Fatalf("empty metadata must be omitted, got %v", payload["metadata"])
	}
}

func TestLoggerDoesNotShareMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedLogger(t, &buf)
	metadata := map[string]string{"configuration": "Validation"}

	if err := logger.Emit(Entry{Message: "saved", Metadata: metadata}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	metadata["configuration"] = "changed"
	if !strings.Contains(buf.String(), `"configuration":"Validation"`) {
		t.Fatalf("unexpected line %s", buf.String())
	}
}

func TestLoggerRequiresWriterAndWorkflowID(t *testing.T) {
	if _, err := NewLogger(io.Discard, "  "); err == nil {
		t.Fatalf("expected error when workflow ID missing")
	}
	if _, err := NewLogger(nil, "wf"); err == nil {
		t.Fatalf("expected error when writer missing")
	}
	var nilLogger *Logger
	if err := nilLogger.Emit(Entry{}); err == nil {
		t.Fatalf("expected error from nil logger")
	}
}

func TestNewWorkflowIDIsUnique(t *testing.T) {
	a, b := NewWorkflowID(), NewWorkflowID()
	if a == b || len(a) != 36 {
		t.Fatalf("expected distinct uuids, got %q and %q", a, b)
	}
	logger, err := NewLogger(io.Discard, a)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.WorkflowID() != a {
		t.Fatalf("expected workflow id %q, got %q", a, logger.WorkflowID())
	}
}

func TestDiscardDropsEntries(t *testing.T) {
	var logger StructuredLogger = Discard{}
	if err := logger.Emit(Entry{Message: "ignored"}); err != nil {
		t.Fatalf("discard returned error: %v", err)
	}
}
