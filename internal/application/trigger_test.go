package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/pihole-sync/internal/ports"
	"github.com/bnema/pihole-sync/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWatcher struct {
	events chan ports.FileEvent
	dir    string
}

func (w *stubWatcher) Watch(_ context.Context, dir string) (<-chan ports.FileEvent, error) {
	w.dir = dir
	return w.events, nil
}

func bufferedEvents(events ...ports.FileEvent) chan ports.FileEvent {
	ch := make(chan ports.FileEvent, len(events))
	for _, event := range events {
		ch <- event
	}
	close(ch)
	return ch
}

type cycleRecorder struct {
	calls   int
	configs []any
	errs    []error
}

func (r *cycleRecorder) cycle(_ context.Context, mainConfig any) error {
	r.calls++
	r.configs = append(r.configs, mainConfig)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	return nil
}

func TestIntervalTriggerRunsAfterEverySleep(t *testing.T) {
	t.Parallel()

	clock := newSteppingClock()
	recorder := &cycleRecorder{errs: []error{errors.New("secondary down")}}
	trigger := &IntervalTrigger{Interval: time.Minute, Clock: clock, Logger: discardLogger(), MaxIterations: 3}

	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))

	assert.Equal(t, 3, recorder.calls)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, clock.Sleeps())
	assert.Equal(t, []any{nil, nil, nil}, recorder.configs)
}

func TestIntervalTriggerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder := &cycleRecorder{}
	trigger := &IntervalTrigger{Interval: time.Minute, Clock: noSleepClock{}, Logger: discardLogger()}

	err := trigger.Run(ctx, recorder.cycle)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, recorder.calls)
}

func TestFileWatchTriggerCoalescesBurst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pihole.toml")
	watcher := &stubWatcher{events: bufferedEvents(
		ports.FileEvent{Path: path, Op: "WRITE"},
		ports.FileEvent{Path: path, Op: "WRITE"},
		ports.FileEvent{Path: path, Op: "CHMOD"},
		ports.FileEvent{Path: path, Op: "WRITE"},
		ports.FileEvent{Path: path, Op: "RENAME"},
	)}
	recorder := &cycleRecorder{}
	trigger := &FileWatchTrigger{Path: path, Watcher: watcher, Debounce: time.Hour, Logger: discardLogger()}

	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, dir, watcher.dir)
}

func TestFileWatchTriggerIgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pihole.toml")
	watcher := &stubWatcher{events: bufferedEvents(
		ports.FileEvent{Path: filepath.Join(dir, "pihole.toml.bak"), Op: "WRITE"},
		ports.FileEvent{Path: filepath.Join(dir, "dnsmasq.conf"), Op: "CREATE"},
	)}
	recorder := &cycleRecorder{}
	trigger := &FileWatchTrigger{Path: path, Watcher: watcher, Logger: discardLogger()}

	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))
	assert.Zero(t, recorder.calls)
}

func TestFileWatchTriggerFollowsSymlink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	actual := filepath.Join(dir, "real.toml")
	require.NoError(t, os.WriteFile(actual, []byte("[dns]\n"), 0o600))
	link := filepath.Join(dir, "pihole.toml")
	require.NoError(t, os.Symlink(actual, link))

	watcher := &stubWatcher{events: bufferedEvents(ports.FileEvent{Path: actual, Op: "WRITE"})}
	recorder := &cycleRecorder{}
	trigger := &FileWatchTrigger{Path: link, Watcher: watcher, Debounce: time.Millisecond, Logger: discardLogger()}

	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))
	assert.Equal(t, 1, recorder.calls)
}

func TestFileWatchTriggerSkipsDuringUpgrade(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "pihole.toml")
	upgrades := mocks.NewMockUpgradeDetector(t)
	upgrades.EXPECT().UpgradeRunning(mockAnyContext()).Return(true, nil).Once()
	upgrades.EXPECT().UpgradeRunning(mockAnyContext()).Return(false, errors.New("pgrep missing")).Once()

	events := make(chan ports.FileEvent, 2)
	recorder := &cycleRecorder{}
	trigger := &FileWatchTrigger{
		Path:        path,
		Watcher:     &stubWatcher{events: events},
		Upgrades:    upgrades,
		Debounce:    time.Millisecond,
		Logger:      discardLogger(),
		MaxTriggers: 2,
	}

	events <- ports.FileEvent{Path: path, Op: "WRITE"}
	done := make(chan error, 1)
	go func() { done <- trigger.Run(context.Background(), recorder.cycle) }()

	// The second event arrives after the first debounce window closed.
	time.Sleep(50 * time.Millisecond)
	events <- ports.FileEvent{Path: path, Op: "WRITE"}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not stop after two changes")
	}
	// Skipped during the upgrade, then run because a failed check does not block.
	assert.Equal(t, 1, recorder.calls)
}

func TestAPIPollTriggerRunsOnlyWhenConfigMoves(t *testing.T) {
	t.Parallel()

	configs := []any{
		map[string]any{"dns": map[string]any{"port": 53}},
		map[string]any{"dns": map[string]any{"port": 53}},
		map[string]any{"dns": map[string]any{"port": 5353}},
		map[string]any{"dns": map[string]any{"port": 5353}},
	}
	polls := 0
	tracker := NewChangeTracker()
	trigger := &APIPollTrigger{
		Interval: 5 * time.Second,
		Fetch: func(context.Context) (any, error) {
			config := configs[polls]
			polls++
			return config, nil
		},
		Tracker:  tracker,
		Key:      "config:pi.hole:80",
		Clock:    noSleepClock{},
		Logger:   discardLogger(),
		MaxPolls: len(configs),
	}
	require.NoError(t, trigger.SeedBaseline(configs[0]))

	recorder := &cycleRecorder{}
	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))

	assert.Equal(t, 4, polls)
	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, configs[2], recorder.configs[0])
}

func TestAPIPollTriggerRetriesAfterFailedCycle(t *testing.T) {
	t.Parallel()

	changed := map[string]any{"dns": map[string]any{"port": 5353}}
	trigger := &APIPollTrigger{
		Interval: time.Second,
		Fetch:    func(context.Context) (any, error) { return changed, nil },
		Tracker:  NewChangeTracker(),
		Key:      "config:pi.hole:80",
		Clock:    noSleepClock{},
		Logger:   discardLogger(),
		MaxPolls: 3,
	}
	require.NoError(t, trigger.SeedBaseline(map[string]any{"dns": map[string]any{"port": 53}}))

	recorder := &cycleRecorder{errs: []error{errors.New("secondary not ready")}}
	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))

	// Failed, retried and succeeded, then unchanged.
	assert.Equal(t, 2, recorder.calls)
}

func TestAPIPollTriggerSurvivesFetchErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	trigger := &APIPollTrigger{
		Interval: time.Second,
		Fetch: func(context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection refused")
			}
			return map[string]any{"dns": map[string]any{}}, nil
		},
		Tracker:  NewChangeTracker(),
		Key:      "config:pi.hole:80",
		Clock:    noSleepClock{},
		Logger:   discardLogger(),
		MaxPolls: 2,
	}

	recorder := &cycleRecorder{}
	require.NoError(t, trigger.Run(context.Background(), recorder.cycle))
	assert.Equal(t, 1, recorder.calls)
}
