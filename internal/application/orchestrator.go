package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bnema/pihole-sync/internal/configfilter"
	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
)

const (
	DefaultReadinessTimeout = 60 * time.Second
	logoutTimeout           = 10 * time.Second
)

// Target pairs a secondary's sync policy with the instance it applies to.
type Target struct {
	Spec     domain.SyncTarget
	Instance ports.Instance
}

type OrchestratorConfig struct {
	Main             ports.Instance
	Targets          []Target
	Tracker          *ChangeTracker
	Stager           ports.ArchiveStager
	Clock            ports.Clock
	Logger           *slog.Logger
	ReadinessTimeout time.Duration
	WriteThrottle    time.Duration
}

// Orchestrator runs sync cycles from main to every secondary. Targets are split by
// sync mode once, at construction.
type Orchestrator struct {
	main             ports.Instance
	snapshot         []target
	selective        []target
	needs            selectiveNeeds
	tracker          *ChangeTracker
	stager           ports.ArchiveStager
	reconciler       *Reconciler
	clock            ports.Clock
	logger           *slog.Logger
	readinessTimeout time.Duration
	writeThrottle    time.Duration
}

type target struct {
	spec     domain.SyncTarget
	instance ports.Instance
	// filter is nil when the target does not sync configuration.
	filter *configfilter.Filter
}

func (t target) host() string {
	return t.spec.Host()
}

type selectiveNeeds struct {
	config bool
	groups bool
	lists  bool
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Main == nil {
		return nil, errors.New("main instance is required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewChangeTracker()
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = DefaultReadinessTimeout
	}
	if cfg.WriteThrottle < 0 {
		cfg.WriteThrottle = 0
	}

	o := &Orchestrator{
		main:             cfg.Main,
		tracker:          cfg.Tracker,
		stager:           cfg.Stager,
		reconciler:       NewReconciler(cfg.Logger),
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		readinessTimeout: cfg.ReadinessTimeout,
		writeThrottle:    cfg.WriteThrottle,
	}

	for _, t := range cfg.Targets {
		entry := target{spec: t.Spec, instance: t.Instance}
		switch t.Spec.Mode {
		case domain.SyncModeSnapshot:
			o.snapshot = append(o.snapshot, entry)
		case domain.SyncModeSelective:
			selective := t.Spec.Selective
			if selective.Config != nil {
				filter, err := configfilter.New(selective.Config.Paths, selective.Config.Mode)
				if err != nil {
					return nil, fmt.Errorf("secondary %s: %w", t.Spec.Host(), err)
				}
				entry.filter = filter
				o.needs.config = true
			}
			if selective.SyncGroups || selective.SyncLists {
				o.needs.groups = true
			}
			if selective.SyncLists {
				o.needs.lists = true
			}
			o.selective = append(o.selective, entry)
		default:
			return nil, fmt.Errorf("secondary %s: unknown sync mode %q", t.Spec.Host(), t.Spec.Mode)
		}
	}

	return o, nil
}

// Main is the instance every cycle reads from.
func (o *Orchestrator) Main() ports.Instance {
	return o.main
}

// Instances returns main followed by every secondary.
func (o *Orchestrator) Instances() []ports.Instance {
	instances := []ports.Instance{o.main}
	for _, t := range o.snapshot {
		instances = append(instances, t.instance)
	}
	for _, t := range o.selective {
		instances = append(instances, t.instance)
	}
	return instances
}

// TargetFailure is a step that failed for one secondary.
type TargetFailure struct {
	Host string
	Step string
	Err  error
}

type CycleReport struct {
	SnapshotSkipped bool
	Failures        []TargetFailure
}

func (r *CycleReport) fail(host, step string, err error) {
	r.Failures = append(r.Failures, TargetFailure{Host: host, Step: step, Err: err})
}

// Err joins the per-secondary failures, or returns nil when there were none.
func (r CycleReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, failure := range r.Failures {
		errs = append(errs, fmt.Errorf("%s %s: %w", failure.Host, failure.Step, failure.Err))
	}
	return errors.Join(errs...)
}

// RunCycle syncs every secondary once. mainConfig, when non-nil, is used instead of
// fetching main's configuration again. Failures on one secondary are recorded in
// the report and never stop the others. A snapshot that cannot be fetched or
// staged is reported against main and only skips the snapshot pass. The returned
// error is reserved for main being unreachable or rejecting its credentials.
// Every session is logged out before RunCycle returns.
func (o *Orchestrator) RunCycle(ctx context.Context, mainConfig any) (CycleReport, error) {
	var report CycleReport
	defer o.LogoutAll(ctx)

	if len(o.snapshot) > 0 {
		if err := o.syncSnapshots(ctx, &report); err != nil {
			return report, err
		}
	}
	if len(o.selective) > 0 {
		if err := o.syncSelective(ctx, mainConfig, &report); err != nil {
			return report, err
		}
	}

	for _, failure := range report.Failures {
		o.logger.Error("sync step failed", "host", failure.Host, "step", failure.Step, "err", failure.Err)
	}
	return report, nil
}

// LogoutAll closes the session of main and of every secondary.
func (o *Orchestrator) LogoutAll(ctx context.Context) {
	logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()

	for _, instance := range o.Instances() {
		if err := instance.Logout(logoutCtx); err != nil {
			o.logger.Warn("logout failed", "host", instance.Endpoint().Host, "err", err)
		}
	}
}

func (o *Orchestrator) syncSnapshots(ctx context.Context, report *CycleReport) error {
	mainHost := o.main.Endpoint().Host

	archive, err := o.main.DownloadSnapshot(ctx)
	if err != nil {
		if domain.IsAuthenticationError(err) || ctx.Err() != nil {
			return fmt.Errorf("download snapshot from %s: %w", mainHost, err)
		}
		report.fail(mainHost, "snapshot", fmt.Errorf("download snapshot: %w", err))
		return nil
	}
	if o.stager != nil {
		path, err := o.stager.Stage(ctx, archive)
		if err != nil {
			report.fail(mainHost, "snapshot", fmt.Errorf("stage snapshot: %w", err))
			return nil
		}
		o.logger.Debug("staged snapshot", "path", path, "bytes", len(archive))
	}

	digest, entries := SnapshotDigest(archive)
	key := snapshotKey(o.main.Endpoint())
	if !o.tracker.HasChanged(key, digest) {
		o.logger.Info("snapshot unchanged since last successful upload, skipping", "host", mainHost)
		report.SnapshotSkipped = true
		return nil
	}
	o.logger.Info("downloaded snapshot", "host", mainHost, "bytes", len(archive), "entries", entries)

	allApplied := true
	for _, t := range o.snapshot {
		if err := o.pushSnapshot(ctx, t, archive); err != nil {
			allApplied = false
			report.fail(t.host(), "snapshot", err)
		}
	}
	if allApplied {
		o.tracker.Update(key, digest)
	}
	return nil
}

func (o *Orchestrator) pushSnapshot(ctx context.Context, t target, archive []byte) error {
	files, err := t.instance.UploadSnapshot(ctx, archive, t.spec.Snapshot)
	if err != nil {
		return err
	}
	o.logger.Info("uploaded snapshot", "host", t.host())
	for _, file := range files {
		o.logger.Debug("processed", "host", t.host(), "file", file)
	}

	if t.spec.UpdateGravity {
		if err := t.instance.TriggerGravity(ctx); err != nil {
			return err
		}
		o.logger.Info("triggered gravity update", "host", t.host())
	}
	return nil
}

// mainState is what one cycle read from main for selective targets.
type mainState struct {
	config     any
	groups     []domain.Group
	lists      []domain.ListEntry
	groupsHash uint64
	listsHash  uint64
	hashErr    error
}

func (o *Orchestrator) syncSelective(ctx context.Context, mainConfig any, report *CycleReport) error {
	state, err := o.fetchMain(ctx, mainConfig)
	if err != nil {
		return err
	}

	for _, t := range o.selective {
		o.applySelective(ctx, t, state, report)
	}
	return nil
}

func (o *Orchestrator) fetchMain(ctx context.Context, mainConfig any) (mainState, error) {
	var state mainState
	mainHost := o.main.Endpoint().Host
	o.logger.Debug("selective sync needs", "config", o.needs.config, "groups", o.needs.groups, "lists", o.needs.lists)

	if o.needs.config {
		state.config = mainConfig
		if state.config == nil {
			config, err := o.main.Config(ctx)
			if err != nil {
				return state, fmt.Errorf("fetch config from %s: %w", mainHost, err)
			}
			state.config = config
		}
	}

	if o.needs.groups {
		groups, err := o.main.Groups(ctx)
		if err != nil {
			return state, fmt.Errorf("fetch groups from %s: %w", mainHost, err)
		}
		state.groups = groups
		if state.groupsHash, err = HashValue(normalizeGroups(groups)); err != nil {
			state.hashErr = err
		}
	}

	if o.needs.lists {
		lists, err := o.main.Lists(ctx)
		if err != nil {
			return state, fmt.Errorf("fetch lists from %s: %w", mainHost, err)
		}
		state.lists = lists
		if state.listsHash, err = HashValue(normalizeLists(lists, state.groups)); err != nil {
			state.hashErr = err
		}
	}

	return state, nil
}

func (o *Orchestrator) applySelective(ctx context.Context, t target, state mainState, report *CycleReport) {
	gate := NewWriteGate(o.clock, o.writeThrottle)
	options := t.spec.Selective

	if t.filter != nil {
		if err := o.syncConfig(ctx, t, state.config); err != nil {
			report.fail(t.host(), "config", err)
			if stopsTarget(err) {
				return
			}
		}
	}

	if options.SyncGroups {
		if err := o.syncGroups(ctx, t, gate, state); err != nil {
			report.fail(t.host(), "groups", err)
			if stopsTarget(err) {
				return
			}
		}
	}

	if !options.SyncLists {
		return
	}
	listWrites, err := o.syncLists(ctx, t, gate, state)
	if err != nil {
		report.fail(t.host(), "lists", err)
		return
	}
	if listWrites > 0 && t.spec.UpdateGravity {
		if err := t.instance.TriggerGravity(ctx); err != nil {
			report.fail(t.host(), "gravity", err)
			return
		}
		o.logger.Info("triggered gravity update", "host", t.host())
	}
}

// stopsTarget reports whether err leaves the secondary unusable for the rest of
// the cycle.
func stopsTarget(err error) bool {
	return errors.Is(err, domain.ErrReadinessTimeout) ||
		domain.IsAuthenticationError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) syncConfig(ctx context.Context, t target, mainConfig any) error {
	filtered := t.filter.Apply(mainConfig)
	hash, err := HashValue(filtered)
	if err != nil {
		return err
	}

	key := configKey(t.spec.Endpoint)
	if !o.tracker.HasChanged(key, hash) {
		o.logger.Info("filtered config unchanged since last run, skipping", "host", t.host())
		return nil
	}

	o.logger.Info("syncing config", "host", t.host(), "filter", t.filter.Mode())
	if err := t.instance.PatchConfig(ctx, filtered); err != nil {
		return err
	}
	if err := t.instance.WaitForReady(ctx, o.readinessTimeout); err != nil {
		return err
	}

	o.tracker.Update(key, hash)
	return nil
}

func (o *Orchestrator) syncGroups(ctx context.Context, t target, gate *WriteGate, state mainState) error {
	if state.hashErr != nil {
		return state.hashErr
	}
	key := groupsKey(t.spec.Endpoint)
	if !o.tracker.HasChanged(key, state.groupsHash) {
		o.logger.Info("groups unchanged since last run, skipping", "host", t.host())
		return nil
	}

	secondaryGroups, err := t.instance.Groups(ctx)
	if err != nil {
		return err
	}
	result, err := o.reconciler.ReconcileGroups(ctx, t.instance, gate, t.host(), state.groups, secondaryGroups)
	if err != nil {
		return err
	}
	o.logger.Info("synced groups", "host", t.host(), "created", result.Created, "updated", result.Updated)

	o.tracker.Update(key, state.groupsHash)
	return nil
}

// syncLists returns the number of list writes it issued.
func (o *Orchestrator) syncLists(ctx context.Context, t target, gate *WriteGate, state mainState) (int, error) {
	if state.hashErr != nil {
		return 0, state.hashErr
	}
	key := listsKey(t.spec.Endpoint)
	if !o.tracker.HasChanged(key, state.listsHash) {
		o.logger.Info("lists unchanged since last run, skipping", "host", t.host())
		return 0, nil
	}

	// Fetched after the group pass so groups it created resolve by name.
	secondaryGroups, err := t.instance.Groups(ctx)
	if err != nil {
		return 0, err
	}
	secondaryLists, err := t.instance.Lists(ctx)
	if err != nil {
		return 0, err
	}

	result, err := o.reconciler.ReconcileLists(ctx, t.instance, gate, ListInput{
		Host:            t.host(),
		MainLists:       state.lists,
		MainGroups:      state.groups,
		SecondaryLists:  secondaryLists,
		SecondaryGroups: secondaryGroups,
		GroupsSynced:    t.spec.Selective.SyncGroups,
	})
	if err != nil {
		return result.Writes(), err
	}
	o.logger.Info("synced lists", "host", t.host(), "created", result.Created, "updated", result.Updated, "warnings", len(result.Warnings))

	o.tracker.Update(key, state.listsHash)
	return result.Writes(), nil
}
