package application

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(h *harness, settings domain.SyncSettings, clock *scriptedClock) *Runner {
	return NewRunner(RunnerConfig{
		Settings:     settings,
		Orchestrator: h.orch,
		Tracker:      h.tracker,
		Clock:        clock,
		Logger:       discardLogger(),
	})
}

func cancelOnSleep(cancel context.CancelFunc, at int, hooks map[int]func()) *scriptedClock {
	return &scriptedClock{onSleep: func(n int) {
		if hook, ok := hooks[n]; ok {
			hook()
		}
		if n >= at {
			cancel()
		}
	}}
}

func TestRunnerOnceReturnsSecondaryFailures(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false), selectiveTarget(nil, true, false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})
	h.secondaries[1].SetDown(true)

	runner := newTestRunner(h, domain.SyncSettings{TriggerMode: domain.TriggerModeInterval, Interval: time.Minute}, &scriptedClock{})
	err := runner.Run(context.Background(), RunOptions{Once: true})

	require.Error(t, err)
	assert.Contains(t, groupNames(h.secondaries[0].Groups()), "A")
}

func TestRunnerOnceSucceeds(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})

	runner := newTestRunner(h, domain.SyncSettings{TriggerMode: domain.TriggerModeInterval, Interval: time.Minute}, &scriptedClock{})
	require.NoError(t, runner.Run(context.Background(), RunOptions{Once: true}))
	assert.Equal(t, 1, h.secondaries[0].Writes())
}

func TestRunnerIntervalSyncsAtStartupThenOnEveryTick(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := cancelOnSleep(cancel, 2, nil)
	runner := newTestRunner(h, domain.SyncSettings{TriggerMode: domain.TriggerModeInterval, Interval: time.Minute}, clock)

	err := runner.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	// Startup cycle and one tick; the second one found nothing to write.
	assert.Equal(t, 2, h.main.Calls("GET /api/groups"))
	assert.Equal(t, 1, h.secondaries[0].Writes())
}

func TestRunnerIntervalSkipsInitialSync(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := newTestRunner(h, domain.SyncSettings{TriggerMode: domain.TriggerModeInterval, Interval: time.Minute}, cancelOnSleep(cancel, 1, nil))

	err := runner.Run(ctx, RunOptions{SkipInitialSync: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.main.Calls("GET /api/groups"))
	assert.Zero(t, h.secondaries[0].Writes())
}

func TestRunnerAPIPollSeedsBaselineWhenSkippingInitialSync(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(&domain.ConfigSyncOptions{
		Mode:  domain.FilterModeInclude,
		Paths: []string{"dns.port"},
	}, false, false))
	h.main.SetConfig(map[string]any{"dns": map[string]any{"port": 53}})
	secondary := h.secondaries[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := cancelOnSleep(cancel, 3, map[int]func(){
		2: func() { h.main.SetConfig(map[string]any{"dns": map[string]any{"port": 5353}}) },
	})
	runner := newTestRunner(h, domain.SyncSettings{
		TriggerMode:      domain.TriggerModeWatchConfigAPI,
		APIPollInterval:  time.Second,
		Interval:         time.Minute,
		ReadinessTimeout: time.Second,
	}, clock)

	err := runner.Run(ctx, RunOptions{SkipInitialSync: true})
	require.ErrorIs(t, err, context.Canceled)

	// The unchanged first poll did not sync; the changed second one did.
	assert.Equal(t, 1, secondary.Calls("PATCH /api/config"))
	assert.Equal(t, map[string]any{"dns": map[string]any{"port": float64(5353)}}, secondary.Config())
}

func TestRunnerAPIPollInitialSyncSetsBaseline(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(&domain.ConfigSyncOptions{
		Mode:  domain.FilterModeExclude,
		Paths: []string{"webserver"},
	}, false, false))
	h.main.SetConfig(map[string]any{"dns": map[string]any{"port": 53}})
	secondary := h.secondaries[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := newTestRunner(h, domain.SyncSettings{
		TriggerMode:      domain.TriggerModeWatchConfigAPI,
		APIPollInterval:  time.Second,
		ReadinessTimeout: time.Second,
	}, cancelOnSleep(cancel, 2, nil))

	err := runner.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	// One initial sync, and the poll after it saw no change.
	assert.Equal(t, 1, secondary.Calls("PATCH /api/config"))
	assert.Equal(t, 2, h.main.Calls("GET /api/config"))
}

func TestRunnerRejectsUnusableTrigger(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false))

	runner := newTestRunner(h, domain.SyncSettings{TriggerMode: domain.TriggerModeWatchConfigFile}, &scriptedClock{})
	require.Error(t, runner.Run(context.Background(), RunOptions{}))

	runner = newTestRunner(h, domain.SyncSettings{TriggerMode: "cron"}, &scriptedClock{})
	require.Error(t, runner.Run(context.Background(), RunOptions{}))
}
