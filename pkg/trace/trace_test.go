package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "test-run-1")

	err := tw.Emit(EventTestStart, map[string]any{
		"test": "orders",
	})
	if err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventTestStart {
		t.Errorf("type = %q, want test_start", evt.Type)
	}
	if evt.RunID != "test-run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.Data["test"] != "orders" {
		t.Errorf("test = %v", evt.Data["test"])
	}
}

func TestWriter_NilDiscards(t *testing.T) {
	var tw *Writer
	if err := tw.EmitRunStart("sqlite3", 1); err != nil {
		t.Fatalf("nil writer: %v", err)
	}
	if tw.RunID() != "" {
		t.Errorf("nil writer run id = %q", tw.RunID())
	}
}

func TestWriter_EmitScriptComplete_WithError(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	if err := tw.EmitScriptComplete("orders", "before", false, errors.New("UNIQUE constraint failed")); err != nil {
		t.Fatal(err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Data["status"] != "error" {
		t.Errorf("status = %v", evt.Data["status"])
	}
	if evt.Data["error"] != "UNIQUE constraint failed" {
		t.Errorf("error = %v", evt.Data["error"])
	}
}

func TestWriter_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	tw.SetSecrets("sqlserver://sa:hunter2@db", "")

	if err := tw.Emit(EventRunStart, map[string]any{"connection": "sqlserver://sa:hunter2@db"}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Emit(EventStepComplete, map[string]any{"command": "login failed for sqlserver://sa:hunter2@db"}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), Redacted) {
		t.Errorf("expected redaction marker in %s", buf.String())
	}
}

func TestWriter_MultipleEvents(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	tw.EmitRunStart("sqlite3", 1)
	tw.EmitTestStart("orders", "defs/orders.yml")
	tw.EmitStepComplete("orders", "create", "usp_create @id=1", "pass", 10*time.Millisecond)
	tw.EmitTestComplete("orders", "passed", 12*time.Millisecond)
	tw.EmitRunComplete(1, 1, 0, 0, 15*time.Millisecond)

	events, err := ReadEvents(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := []EventType{EventRunStart, EventTestStart, EventStepComplete, EventTestComplete, EventRunComplete}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, evt := range events {
		if evt.Type != want[i] {
			t.Errorf("event %d type = %q, want %q", i, evt.Type, want[i])
		}
	}
}

func TestWriter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tw.EmitTestStart("t", "f.yml")
		}()
	}
	wg.Wait()

	events, err := ReadEvents(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestNewFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	runID := NewRunID()
	tw, err := NewFileWriter(path, runID)
	if err != nil {
		t.Fatal(err)
	}
	tw.EmitTestStart("orders", "orders.yml")
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), runID) {
		t.Errorf("trace file missing run id: %s", data)
	}
}
