package application

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/pihole-sync/internal/adapters/pihole"
	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
	"github.com/bnema/pihole-sync/internal/testutil/fakepihole"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	main        *fakepihole.Server
	secondaries []*fakepihole.Server
	orch        *Orchestrator
	tracker     *ChangeTracker
}

func newHarness(t *testing.T, clock ports.Clock, specs ...domain.SyncTarget) *harness {
	t.Helper()

	h := &harness{main: fakepihole.New(t, "main-secret"), tracker: NewChangeTracker()}
	targets := make([]Target, 0, len(specs))
	for _, spec := range specs {
		server := fakepihole.New(t, "secondary-secret")
		h.secondaries = append(h.secondaries, server)
		spec.Endpoint = server.Endpoint()
		targets = append(targets, Target{Spec: spec, Instance: newInstance(server.Endpoint(), clock)})
	}

	orch, err := NewOrchestrator(OrchestratorConfig{
		Main:             newInstance(h.main.Endpoint(), clock),
		Targets:          targets,
		Tracker:          h.tracker,
		Clock:            clock,
		Logger:           discardLogger(),
		ReadinessTimeout: 5 * time.Second,
		WriteThrottle:    DefaultWriteThrottle,
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func newInstance(endpoint domain.Endpoint, clock ports.Clock) *pihole.Client {
	return pihole.NewClient(endpoint, pihole.Options{Clock: clock, Logger: discardLogger()})
}

func selectiveTarget(config *domain.ConfigSyncOptions, groups, lists bool) domain.SyncTarget {
	return domain.SyncTarget{
		Mode: domain.SyncModeSelective,
		Selective: domain.SelectiveOptions{
			Config:     config,
			SyncGroups: groups,
			SyncLists:  lists,
		},
	}
}

func snapshotTarget(gravity bool) domain.SyncTarget {
	opts := domain.DefaultSnapshotOptions()
	return domain.SyncTarget{Mode: domain.SyncModeSnapshot, Snapshot: &opts, UpdateGravity: gravity}
}

func (h *harness) cycle(t *testing.T) CycleReport {
	t.Helper()
	report, err := h.orch.RunCycle(context.Background(), nil)
	require.NoError(t, err)
	return report
}

func TestSelectiveConfigSyncAppliesFilteredPayloadOnce(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(&domain.ConfigSyncOptions{
		Mode:  domain.FilterModeInclude,
		Paths: []string{"dns.upstreams"},
	}, false, false))
	h.main.SetConfig(map[string]any{
		"dns": map[string]any{"upstreams": []any{"1.1.1.1"}, "hosts": []any{"x"}},
	})
	secondary := h.secondaries[0]

	report := h.cycle(t)
	require.NoError(t, report.Err())
	assert.Equal(t, map[string]any{"dns": map[string]any{"upstreams": []any{"1.1.1.1"}}}, secondary.Config())
	assert.Equal(t, 1, secondary.Writes())

	report = h.cycle(t)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, secondary.Writes())

	assert.Zero(t, h.main.Calls("GET /api/groups"))
	assert.Zero(t, h.main.Calls("GET /api/lists"))
}

func TestSelectiveConfigSyncUsesProvidedMainConfig(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(&domain.ConfigSyncOptions{
		Mode:  domain.FilterModeExclude,
		Paths: []string{"webserver"},
	}, false, false))

	provided := map[string]any{
		"dns":       map[string]any{"queryLogging": false},
		"webserver": map[string]any{"port": "8080"},
	}
	report, err := h.orch.RunCycle(context.Background(), provided)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Zero(t, h.main.Calls("GET /api/config"))
	assert.Equal(t, map[string]any{"dns": map[string]any{"queryLogging": false}}, h.secondaries[0].Config())
}

func TestGroupSyncCreatesOnceAndUpdatesOnlyChangedGroup(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})
	h.main.AddGroup(domain.Group{Name: "B", Enabled: true})
	secondary := h.secondaries[0]

	h.cycle(t)
	assert.Equal(t, 2, secondary.Writes())
	assert.ElementsMatch(t, []string{"Default", "A", "B"}, groupNames(secondary.Groups()))

	h.cycle(t)
	assert.Equal(t, 2, secondary.Writes())

	h.main.SetGroupEnabled("A", false)
	h.cycle(t)
	assert.Equal(t, 3, secondary.Writes())
	assert.Equal(t, 1, secondary.Calls("PUT /api/groups/A"))
	assert.Zero(t, secondary.Calls("PUT /api/groups/B"))
}

func TestListSyncRemapsGroupIDsByName(t *testing.T) {
	clock := newSteppingClock()
	h := newHarness(t, clock, selectiveTarget(nil, true, true))
	h.main.AddGroup(domain.Group{Name: "Kids", Enabled: true})
	familyOnMain := h.main.AddGroup(domain.Group{Name: "Family", Enabled: true})
	h.main.AddList(domain.ListEntry{Address: "https://example.org/hosts", Type: "block", Enabled: true, Groups: []int{familyOnMain}})

	secondary := h.secondaries[0]
	familyOnSecondary := secondary.AddGroup(domain.Group{Name: "Family", Enabled: true})
	require.NotEqual(t, familyOnMain, familyOnSecondary)

	report := h.cycle(t)
	require.NoError(t, report.Err())

	lists := secondary.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, []int{familyOnSecondary}, lists[0].Groups)

	// One group create plus one list create, spaced by the write throttle.
	assert.Equal(t, []time.Duration{DefaultWriteThrottle}, clock.Sleeps())

	writes := secondary.Writes()
	h.cycle(t)
	assert.Equal(t, writes, secondary.Writes())
}

func TestListSyncResolvesGroupsCreatedInSameCycle(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, true))
	family := h.main.AddGroup(domain.Group{Name: "Family", Enabled: true})
	h.main.AddList(domain.ListEntry{Address: "ads.example", Type: "block", Enabled: true, Groups: []int{0, family}})

	h.cycle(t)

	secondary := h.secondaries[0]
	var secondaryFamily int
	for _, group := range secondary.Groups() {
		if group.Name == "Family" {
			secondaryFamily = group.ID
		}
	}
	require.NotZero(t, secondaryFamily)
	assert.Equal(t, []int{0, secondaryFamily}, secondary.Lists()[0].Groups)
}

func TestGravityRunsOnlyAfterListWrites(t *testing.T) {
	spec := selectiveTarget(nil, false, true)
	spec.UpdateGravity = true
	h := newHarness(t, noSleepClock{}, spec)
	h.main.AddList(domain.ListEntry{Address: "ads.example", Type: "block", Enabled: true})
	secondary := h.secondaries[0]

	h.cycle(t)
	assert.Equal(t, 1, secondary.GravityRuns())

	h.cycle(t)
	assert.Equal(t, 1, secondary.GravityRuns())
}

func TestSnapshotSyncSkipsUnchangedArchive(t *testing.T) {
	h := newHarness(t, noSleepClock{}, snapshotTarget(true))
	h.main.SetArchive(teleporterArchive(t, "[dns]\n"))
	secondary := h.secondaries[0]

	report := h.cycle(t)
	require.NoError(t, report.Err())
	assert.False(t, report.SnapshotSkipped)
	require.Len(t, secondary.Uploads(), 1)
	assert.Equal(t, 1, secondary.GravityRuns())
	assert.Equal(t, true, secondary.Uploads()[0].Import["config"])

	report = h.cycle(t)
	assert.True(t, report.SnapshotSkipped)
	assert.Len(t, secondary.Uploads(), 1)

	h.main.SetArchive(teleporterArchive(t, "[dns]\nqueryLogging = false\n"))
	h.cycle(t)
	assert.Len(t, secondary.Uploads(), 2)
}

func TestSnapshotFailureIsIsolatedAndRetried(t *testing.T) {
	h := newHarness(t, noSleepClock{}, snapshotTarget(false), snapshotTarget(false))
	h.main.SetArchive(teleporterArchive(t, "[dns]\n"))
	healthy, broken := h.secondaries[0], h.secondaries[1]
	broken.SetDown(true)

	report := h.cycle(t)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "snapshot", report.Failures[0].Step)
	assert.Len(t, healthy.Uploads(), 1)
	assert.Empty(t, broken.Uploads())

	broken.SetDown(false)
	report = h.cycle(t)
	require.NoError(t, report.Err())
	assert.Len(t, healthy.Uploads(), 2)
	assert.Len(t, broken.Uploads(), 1)

	report = h.cycle(t)
	assert.True(t, report.SnapshotSkipped)
}

func TestSnapshotDownloadFailureStillRunsSelectiveTargets(t *testing.T) {
	h := newHarness(t, noSleepClock{}, snapshotTarget(false), selectiveTarget(nil, true, false))
	h.main.SetArchive(teleporterArchive(t, "[dns]\n"))
	h.main.SetDownloadBroken(true)
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})
	snapshotSecondary, selectiveSecondary := h.secondaries[0], h.secondaries[1]

	report := h.cycle(t)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, h.main.Endpoint().Host, report.Failures[0].Host)
	assert.Equal(t, "snapshot", report.Failures[0].Step)
	assert.Empty(t, snapshotSecondary.Uploads())
	assert.Contains(t, groupNames(selectiveSecondary.Groups()), "A")
	assert.Equal(t, 1, selectiveSecondary.Writes())

	h.main.SetDownloadBroken(false)
	report = h.cycle(t)
	assert.Empty(t, report.Failures)
	assert.Len(t, snapshotSecondary.Uploads(), 1)
}

func TestReadinessTimeoutAbortsRemainingSteps(t *testing.T) {
	clock := newSteppingClock()
	h := newHarness(t, clock, selectiveTarget(&domain.ConfigSyncOptions{
		Mode:  domain.FilterModeInclude,
		Paths: []string{"dns"},
	}, true, false))
	h.main.SetConfig(map[string]any{"dns": map[string]any{"port": 53}})
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})
	secondary := h.secondaries[0]
	secondary.RestartOnPatch(1 << 20)

	report := h.cycle(t)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "config", report.Failures[0].Step)
	assert.ErrorIs(t, report.Failures[0].Err, domain.ErrReadinessTimeout)
	assert.Equal(t, 1, secondary.Calls("PATCH /api/config"))
	assert.Zero(t, secondary.Calls("POST /api/groups"))

	var total time.Duration
	for _, d := range clock.Sleeps() {
		total += d
	}
	assert.Equal(t, 5*time.Second, total)
}

func TestFailingSecondaryDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false), selectiveTarget(nil, true, false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})
	broken, healthy := h.secondaries[0], h.secondaries[1]
	broken.SetDown(true)

	report := h.cycle(t)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "groups", report.Failures[0].Step)
	assert.Contains(t, groupNames(healthy.Groups()), "A")
}

func TestCycleLogsOutEverySession(t *testing.T) {
	h := newHarness(t, noSleepClock{}, selectiveTarget(nil, true, false), snapshotTarget(false))
	h.main.AddGroup(domain.Group{Name: "A", Enabled: true})
	h.main.SetArchive(teleporterArchive(t, "[dns]\n"))

	h.cycle(t)

	assert.Zero(t, h.main.ActiveSessions())
	for _, secondary := range h.secondaries {
		assert.Zero(t, secondary.ActiveSessions())
		assert.Equal(t, 1, secondary.Logouts())
	}
	assert.Equal(t, 1, h.main.Logouts())
}

func TestMainAuthenticationFailureSurfaces(t *testing.T) {
	clock := noSleepClock{}
	main := fakepihole.New(t, "main-secret")
	endpoint := main.Endpoint()
	endpoint.Credential = "wrong"
	secondary := fakepihole.New(t, "secondary-secret")

	spec := selectiveTarget(nil, true, false)
	spec.Endpoint = secondary.Endpoint()
	orch, err := NewOrchestrator(OrchestratorConfig{
		Main:    newInstance(endpoint, clock),
		Targets: []Target{{Spec: spec, Instance: newInstance(secondary.Endpoint(), clock)}},
		Clock:   clock,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)

	_, err = orch.RunCycle(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, domain.IsAuthenticationError(err))
	assert.Zero(t, secondary.Writes())
}

func TestNewOrchestratorRejectsInvalidTargets(t *testing.T) {
	main := newInstance(domain.Endpoint{Host: "pi.hole", Port: 80}, noSleepClock{})

	_, err := NewOrchestrator(OrchestratorConfig{
		Main: main,
		Targets: []Target{{Spec: selectiveTarget(&domain.ConfigSyncOptions{
			Mode:  domain.FilterModeInclude,
			Paths: []string{"dns..upstreams"},
		}, false, false)}},
	})
	require.Error(t, err)

	_, err = NewOrchestrator(OrchestratorConfig{
		Main:    main,
		Targets: []Target{{Spec: domain.SyncTarget{Mode: "rsync"}}},
	})
	require.Error(t, err)

	_, err = NewOrchestrator(OrchestratorConfig{})
	require.Error(t, err)
}

func TestCycleReportErrJoinsFailures(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CycleReport{}.Err())

	report := CycleReport{}
	report.fail("pi2", "groups", errors.New("boom"))
	report.fail("pi3", "config", domain.ErrReadinessTimeout)
	err := report.Err()
	assert.ErrorContains(t, err, "pi2 groups: boom")
	assert.ErrorIs(t, err, domain.ErrReadinessTimeout)
}

func groupNames(groups []domain.Group) []string {
	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group.Name)
	}
	return names
}

func teleporterArchive(t *testing.T, piholeToml string) []byte {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	entry, err := writer.Create("etc/pihole/pihole.toml")
	require.NoError(t, err)
	_, err = entry.Write([]byte(piholeToml))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf.Bytes()
}
