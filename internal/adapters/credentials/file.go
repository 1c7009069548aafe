package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// File reads the token from a file and reloads it when the file changes.
type File struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	mu      sync.RWMutex
	token   string
}

var _ ports.CredentialSource = (*File)(nil)

// NewFile creates a token file source. Call Load before use.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &File{
		path:   path,
		logger: logger,
	}, nil
}

// Load reads the token file.
func (f *File) Load(ctx context.Context) error {
	token, err := readToken(f.path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.token = token
	f.mu.Unlock()

	f.logger.Debug("token file loaded", slog.String("path", f.path))
	return nil
}

// Token returns the most recently loaded token.
func (f *File) Token(ctx context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token, nil
}

// Watch reloads the token whenever the file is written or replaced and calls
// onChange, if non-nil, after each successful reload.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	f.mu.Lock()
	f.watcher = watcher
	f.mu.Unlock()

	// Watch the directory so editors that replace the file are still seen.
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	f.logger.Info("watching token file for changes", slog.String("path", f.path))

	target := filepath.Clean(f.path)
	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				f.logger.Debug("token watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if err := f.Load(ctx); err != nil {
					f.logger.Error("failed to reload token file",
						slog.String("error", err.Error()),
						slog.String("path", f.path))
					continue
				}
				f.logger.Info("token file changed, reloaded", slog.String("path", event.Name))

				if onChange != nil {
					onChange()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Error("token watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the token file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher != nil {
		return f.watcher.Close()
	}

	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
