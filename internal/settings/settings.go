// Package settings supplies the user-facing note settings and keeps them in
// sync with the config file.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Provider holds the preserve-content-on-format-switch flag. It is safe for
// concurrent use.
type Provider struct {
	preserve atomic.Bool
}

// New returns a Provider seeded with preserveContent.
func New(preserveContent bool) *Provider {
	p := &Provider{}
	p.preserve.Store(preserveContent)
	return p
}

// PreserveContent reports whether format switches should keep content.
func (p *Provider) PreserveContent() bool {
	return p.preserve.Load()
}

// SetPreserveContent updates the flag.
func (p *Provider) SetPreserveContent(v bool) {
	p.preserve.Store(v)
}

// fileSettings is the subset of the config file this package reads.
type fileSettings struct {
	Notes struct {
		PreserveContent *bool `yaml:"preserve_content"`
	} `yaml:"notes"`
}

// Reload reads path and applies the notes settings found there. A file
// without a notes.preserve_content key leaves the flag unchanged.
func (p *Provider) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("settings: read %s: %w", path, err)
	}
	var fs fileSettings
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fs); err != nil {
		return fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if fs.Notes.PreserveContent != nil {
		p.SetPreserveContent(*fs.Notes.PreserveContent)
	}
	return nil
}

// Watch reloads the provider whenever the file at path is written or
// replaced, until ctx is cancelled. The parent directory is watched so that
// editors which save by rename are picked up.
func (p *Provider) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("settings: resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("settings: watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("settings: watching", slog.String("path", abs))

	// Editors often emit several events per save; coalesce them.
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("settings: watcher stopped")
			return nil

		case <-debounceCh:
			debounceCh = nil
			before := p.PreserveContent()
			if err := p.Reload(abs); err != nil {
				logger.Warn("settings: reload failed", slog.String("error", err.Error()))
				continue
			}
			if after := p.PreserveContent(); after != before {
				logger.Info("settings: reloaded", slog.Bool("preserve_content", after))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(100 * time.Millisecond)
			} else {
				debounce.Reset(100 * time.Millisecond)
			}
			debounceCh = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("settings: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
