package telemetry

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Phase is a configurator operation reported through events.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseLoad       Phase = "load"
	PhaseSave       Phase = "save"
	PhaseActivate   Phase = "activate"
	PhaseDeactivate Phase = "deactivate"
	PhaseLaunch     Phase = "launch"
)

// Outcome of a phase.
type Outcome string

const (
	OutcomeStart   Outcome = "start"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one JSON line of the event stream.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Phase      Phase             `json:"phase"`
	Outcome    Outcome           `json:"outcome"`
	DurationMS int64             `json:"durationMs,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Emitter writes events as JSON lines. A nil *Emitter is valid and drops
// every event.
type Emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewEmitter returns an emitter writing to w.
func NewEmitter(w io.Writer) (*Emitter, error) {
	if w == nil {
		return nil, errors.New("emitter writer is required")
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Emitter{enc: enc, now: time.Now}, nil
}

// Emit writes ev, stamping it when no timestamp is set.
func (e *Emitter) Emit(ev Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	return e.enc.Encode(ev)
}

// EmitPhase runs fn between a start event and a success or failure event.
// fn's error is returned unchanged; event write failures are reported only
// when fn succeeded.
func (e *Emitter) EmitPhase(phase Phase, metadata map[string]string, fn func() error) error {
	if err := e.Emit(Event{Phase: phase, Outcome: OutcomeStart, Metadata: metadata}); err != nil {
		return fmt.Errorf("emit %s start: %w", phase, err)
	}
	started := time.Now()
	err := fn()

	done := Event{Phase: phase, Outcome: OutcomeSuccess, DurationMS: time.Since(started).Milliseconds(), Metadata: metadata}
	if err != nil {
		done.Outcome = OutcomeFailure
		done.Error = err.Error()
	}
	if emitErr := e.Emit(done); emitErr != nil && err == nil {
		return fmt.Errorf("emit %s completion: %w", phase, emitErr)
	}
	return err
}
