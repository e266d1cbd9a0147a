package settings

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	p := New(true)

	writeConfig(t, path, "notes:\n  preserve_content: false\n")
	if err := p.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.PreserveContent() {
		t.Error("preserve_content should be false after reload")
	}

	writeConfig(t, path, "app:\n  log_level: info\n")
	if err := p.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.PreserveContent() {
		t.Error("missing key should leave the flag unchanged")
	}
}

func TestReload_Errors(t *testing.T) {
	p := New(true)
	if err := p.Reload(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, path, "notes: [unclosed")
	if err := p.Reload(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
	if !p.PreserveContent() {
		t.Error("failed reload should not change the flag")
	}
}

func TestWatch_PicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "notes:\n  preserve_content: true\n")

	p := New(true)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Watch(ctx, path, logger)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "notes:\n  preserve_content: false\n")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return !p.PreserveContent()
	}, "watcher did not apply preserve_content=false")
}
