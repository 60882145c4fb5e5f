// Package trace writes an append-only JSONL record of a verification run.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the trace event types.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventRunComplete    EventType = "run_complete"
	EventTestStart      EventType = "test_start"
	EventTestComplete   EventType = "test_complete"
	EventScriptComplete EventType = "script_complete"
	EventStepComplete   EventType = "step_complete"
)

// Redacted replaces secret values in trace output.
const Redacted = "<REDACTED>"

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream. It is safe for
// concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	runID   string
	enc     *json.Encoder
	secrets []string
	now     func() time.Time
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
		now:   time.Now,
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f, runID), nil
}

// RunID returns the run identifier stamped on every event.
func (tw *Writer) RunID() string {
	if tw == nil {
		return ""
	}
	return tw.runID
}

// SetSecrets registers literal values (connection strings, passwords) that
// must never appear in the trace.
func (tw *Writer) SetSecrets(secrets ...string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	for _, s := range secrets {
		if s != "" {
			tw.secrets = append(tw.secrets, s)
		}
	}
}

func (tw *Writer) redact(s string) string {
	for _, secret := range tw.secrets {
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return s
}

func (tw *Writer) redactData(data map[string]any) map[string]any {
	if len(tw.secrets) == 0 || data == nil {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			v = tw.redact(s)
		}
		out[k] = v
	}
	return out
}

// Emit writes a single event. A nil writer discards the event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: tw.now().UTC(),
		RunID:     tw.runID,
		Data:      tw.redactData(data),
	}
	return tw.enc.Encode(evt)
}

// Close closes the underlying writer if it is closable.
func (tw *Writer) Close() error {
	if tw == nil {
		return nil
	}
	if c, ok := tw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// EmitRunStart records the start of a run over the given number of tests.
func (tw *Writer) EmitRunStart(driver string, tests int) error {
	return tw.Emit(EventRunStart, map[string]any{
		"driver": driver,
		"tests":  tests,
	})
}

// EmitTestStart records the start of one test.
func (tw *Writer) EmitTestStart(name, source string) error {
	return tw.Emit(EventTestStart, map[string]any{
		"test":   name,
		"source": source,
	})
}

// EmitScriptComplete records a Before or After batch.
func (tw *Writer) EmitScriptComplete(test, phase string, skipped bool, err error) error {
	data := map[string]any{
		"test":    test,
		"phase":   phase,
		"skipped": skipped,
		"status":  "ok",
	}
	if err != nil {
		data["status"] = "error"
		data["error"] = err.Error()
	}
	return tw.Emit(EventScriptComplete, data)
}

// EmitStepComplete records a verified step.
func (tw *Writer) EmitStepComplete(test, step, command, status string, duration time.Duration) error {
	return tw.Emit(EventStepComplete, map[string]any{
		"test":     test,
		"step":     step,
		"command":  command,
		"status":   status,
		"duration": duration.String(),
	})
}

// EmitTestComplete records the overall verdict of one test.
func (tw *Writer) EmitTestComplete(test, status string, duration time.Duration) error {
	return tw.Emit(EventTestComplete, map[string]any{
		"test":     test,
		"status":   status,
		"duration": duration.String(),
	})
}

// EmitRunComplete records the run totals.
func (tw *Writer) EmitRunComplete(total, passed, failed, errored int, duration time.Duration) error {
	return tw.Emit(EventRunComplete, map[string]any{
		"total":    total,
		"passed":   passed,
		"failed":   failed,
		"errors":   errored,
		"duration": duration.String(),
	})
}

// ReadEvents decodes a JSONL trace stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	dec := json.NewDecoder(r)
	var events []Event
	for dec.More() {
		var evt Event
		if err := dec.Decode(&evt); err != nil {
			return events, fmt.Errorf("decode trace event %d: %w", len(events)+1, err)
		}
		events = append(events, evt)
	}
	return events, nil
}
