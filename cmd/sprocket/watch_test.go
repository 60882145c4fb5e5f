package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "orders.yml")
	require.NoError(t, os.WriteFile(file, []byte(pingDef), 0o644))

	tests := []struct {
		name  string
		path  string
		event fsnotify.Event
		want  bool
	}{
		{"watched file written", file, fsnotify.Event{Name: file, Op: fsnotify.Write}, true},
		{"other definition beside file", file, fsnotify.Event{Name: filepath.Join(dir, "other.yml"), Op: fsnotify.Write}, false},
		{"definition in folder", dir, fsnotify.Event{Name: filepath.Join(dir, "new.yaml"), Op: fsnotify.Create}, true},
		{"script file", file, fsnotify.Event{Name: filepath.Join(dir, "seed.sql"), Op: fsnotify.Write}, true},
		{"unrelated file", dir, fsnotify.Event{Name: filepath.Join(dir, "README.md"), Op: fsnotify.Write}, false},
		{"chmod only", dir, fsnotify.Event{Name: file, Op: fsnotify.Chmod}, false},
		{"removed definition", dir, fsnotify.Event{Name: file, Op: fsnotify.Remove}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.path, tt.event))
		})
	}
}

func TestWatch_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ping.yml")
	require.NoError(t, os.WriteFile(file, []byte(pingDef), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, dir, func() error {
			runs.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Writes are spaced wider than the debounce window so one of them fires.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(file, []byte(pingDef+"\n"), 0o644)
		return runs.Load() >= 2
	}, 5*time.Second, 2*watchDebounce)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
