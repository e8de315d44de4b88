package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bnema/pihole-sync/internal/ports"
)

// DefaultDebounce coalesces bursts of writes to the watched file.
const DefaultDebounce = 750 * time.Millisecond

// CycleFunc runs one sync cycle. mainConfig is main's configuration when the
// trigger already fetched it, nil otherwise.
type CycleFunc func(ctx context.Context, mainConfig any) error

// Trigger decides when cycles run. Run blocks until ctx ends or, for bounded
// triggers, the bound is reached. A failing cycle never stops a trigger.
type Trigger interface {
	Run(ctx context.Context, cycle CycleFunc) error
}

// IntervalTrigger sleeps Interval, then runs a cycle, forever or MaxIterations times.
type IntervalTrigger struct {
	Interval      time.Duration
	Clock         ports.Clock
	Logger        *slog.Logger
	MaxIterations int
}

func (t *IntervalTrigger) Run(ctx context.Context, cycle CycleFunc) error {
	for i := 0; t.MaxIterations <= 0 || i < t.MaxIterations; i++ {
		if err := t.Clock.Sleep(ctx, t.Interval); err != nil {
			return err
		}
		t.Logger.Debug("interval elapsed, starting sync", "interval", t.Interval)
		if err := cycle(ctx, nil); err != nil {
			t.Logger.Error("sync cycle failed", "err", err)
		}
	}
	return nil
}

// FileWatchTrigger runs a cycle after Path changes. It watches the parent
// directory so that editors replacing the file are noticed too.
type FileWatchTrigger struct {
	Path     string
	Watcher  ports.FileWatcher
	Upgrades ports.UpgradeDetector
	Debounce time.Duration
	Logger   *slog.Logger
	// MaxTriggers stops Run after that many handled changes when positive.
	MaxTriggers int
}

func (t *FileWatchTrigger) Run(ctx context.Context, cycle CycleFunc) error {
	events, err := t.Watcher.Watch(ctx, filepath.Dir(t.Path))
	if err != nil {
		return fmt.Errorf("watch %s: %w", t.Path, err)
	}
	t.Logger.Info("watching config file", "path", t.Path)

	handled := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !t.matches(event.Path) {
				continue
			}

			t.Logger.Debug("config file event", "path", event.Path, "op", event.Op)
			t.drain(ctx, events)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if t.upgradeRunning(ctx) {
				t.Logger.Info("pihole upgrade in progress, skipping triggered sync")
			} else if err := cycle(ctx, nil); err != nil {
				t.Logger.Error("sync cycle failed", "err", err)
			}

			handled++
			if t.MaxTriggers > 0 && handled >= t.MaxTriggers {
				return nil
			}
		}
	}
}

// drain discards whatever arrives during the debounce window.
func (t *FileWatchTrigger) drain(ctx context.Context, events <-chan ports.FileEvent) {
	debounce := t.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
		}
	}
}

func (t *FileWatchTrigger) matches(path string) bool {
	if filepath.Clean(path) == filepath.Clean(t.Path) {
		return true
	}

	target, err := filepath.EvalSymlinks(t.Path)
	if err != nil {
		return false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	return resolved == target
}

func (t *FileWatchTrigger) upgradeRunning(ctx context.Context) bool {
	if t.Upgrades == nil {
		return false
	}
	running, err := t.Upgrades.UpgradeRunning(ctx)
	if err != nil {
		t.Logger.Warn("could not check for a running pihole upgrade", "err", err)
		return false
	}
	return running
}

// APIPollTrigger polls main's configuration and runs a cycle when its hash moves.
// The baseline lives in Tracker under Key and only advances after a successful
// cycle, so a failed cycle is retried on the next poll.
type APIPollTrigger struct {
	Interval time.Duration
	Fetch    func(ctx context.Context) (any, error)
	Tracker  *ChangeTracker
	Key      string
	Clock    ports.Clock
	Logger   *slog.Logger
	MaxPolls int
}

func (t *APIPollTrigger) Run(ctx context.Context, cycle CycleFunc) error {
	for i := 0; t.MaxPolls <= 0 || i < t.MaxPolls; i++ {
		if err := t.Clock.Sleep(ctx, t.Interval); err != nil {
			return err
		}
		if err := t.poll(ctx, cycle); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			t.Logger.Error("config poll failed", "err", err)
		}
	}
	return nil
}

func (t *APIPollTrigger) poll(ctx context.Context, cycle CycleFunc) error {
	config, err := t.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch main config: %w", err)
	}
	hash, err := HashValue(config)
	if err != nil {
		return err
	}
	if !t.Tracker.HasChanged(t.Key, hash) {
		t.Logger.Debug("main config unchanged")
		return nil
	}

	t.Logger.Info("main config changed, starting sync")
	// The baseline only moves on success, so an unreachable secondary makes every
	// poll run the cycle again until it recovers.
	if err := cycle(ctx, config); err != nil {
		return fmt.Errorf("sync cycle: %w", err)
	}
	t.Tracker.Update(t.Key, hash)
	return nil
}

// SeedBaseline records config as the state the secondaries already match.
func (t *APIPollTrigger) SeedBaseline(config any) error {
	hash, err := HashValue(config)
	if err != nil {
		return err
	}
	t.Tracker.Update(t.Key, hash)
	return nil
}
