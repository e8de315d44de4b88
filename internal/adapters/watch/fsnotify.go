// Package watch delivers filesystem events through fsnotify.
package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bnema/pihole-sync/internal/ports"
	"github.com/fsnotify/fsnotify"
)

type Watcher struct {
	logger *slog.Logger
}

var _ ports.FileWatcher = (*Watcher)(nil)

func NewWatcher(logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{logger: logger}
}

// Watch reports events for the entries of dir until ctx ends. The returned
// channel is closed once the underlying watcher has stopped.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	events := make(chan ports.FileEvent)
	go func() {
		defer close(events)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case events <- ports.FileEvent{Path: event.Name, Op: event.Op.String()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("file watcher error", "dir", dir, "err", err)
			}
		}
	}()

	return events, nil
}
