// Package telemetry records what the configurator does: JSON log lines for
// every operation and phase events for tooling that follows a run.
package telemetry

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// StructuredLogger receives the configurator's log entries.
type StructuredLogger interface {
	Emit(Entry) error
}

// Severity of an entry.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Category groups entries by their origin.
type Category string

const (
	// CategoryWorkflow marks facade operations.
	CategoryWorkflow Category = "workflow"
	// CategoryCommand marks launched applications.
	CategoryCommand Category = "command"
	// CategoryDiagnostic marks discovery warnings and setup findings.
	CategoryDiagnostic Category = "diagnostic"
)

// Entry is one log event before it is encoded.
type Entry struct {
	Category Category
	Message  string
	Severity Severity
	Step     string
	// Command is the launched command line.
	Command string
	// Output is a short excerpt of what a launched application printed.
	Output   string
	Metadata map[string]string
	Error    error
}

// line is the JSON shape of an entry.
type line struct {
	Time       string            `json:"time"`
	Severity   Severity          `json:"severity"`
	Category   Category          `json:"category"`
	Message    string            `json:"message"`
	WorkflowID string            `json:"workflowId"`
	Step       string            `json:"step,omitempty"`
	Command    string            `json:"command,omitempty"`
	Output     string            `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Logger writes entries as JSON lines stamped with a workflow ID.
type Logger struct {
	mu         sync.Mutex
	enc        *json.Encoder
	workflowID string
	now        func() time.Time
}

// NewWorkflowID returns an identifier correlating the entries of one run.
func NewWorkflowID() string {
	return uuid.NewString()
}

// NewLogger returns a Logger writing to w.
func NewLogger(w io.Writer, workflowID string) (*Logger, error) {
	if w == nil {
		return nil, errors.New("logger writer is required")
	}
	id := strings.TrimSpace(workflowID)
	if id == "" {
		return nil, errors.New("workflow ID is required")
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Logger{enc: enc, workflowID: id, now: time.Now}, nil
}

// WorkflowID returns the identifier stamped on every entry.
func (l *Logger) WorkflowID() string { return l.workflowID }

// Emit encodes entry as one line. An attached error forces error severity.
func (l *Logger) Emit(entry Entry) error {
	if l == nil {
		return errors.New("logger is nil")
	}
	out := line{
		Severity:   entry.Severity,
		Category:   entry.Category,
		Message:    entry.Message,
		WorkflowID: l.workflowID,
		Step:       entry.Step,
		Command:    entry.Command,
		Output:     entry.Output,
	}
	if out.Severity == "" {
		out.Severity = SeverityInfo
	}
	if entry.Error != nil {
		out.Severity = SeverityError
		out.Error = entry.Error.Error()
	}
	if len(entry.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			out.Metadata[k] = v
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out.Time = l.now().UTC().Format(time.RFC3339Nano)
	return l.enc.Encode(out)
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Emit(Entry) error { return nil }
