package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
	"golang.org/x/sync/errgroup"
)

// KeepaliveStarter is implemented by instances that can keep their session alive
// between cycles.
type KeepaliveStarter interface {
	InitKeepalive(ctx context.Context, syncInterval time.Duration) error
}

type RunOptions struct {
	// Once runs a single cycle and returns its outcome.
	Once bool
	// SkipInitialSync waits for the first trigger instead of syncing at startup.
	SkipInitialSync bool
}

type RunnerConfig struct {
	Settings     domain.SyncSettings
	Secondaries  []domain.SyncTarget
	Orchestrator *Orchestrator
	Tracker      *ChangeTracker
	Watcher      ports.FileWatcher
	Upgrades     ports.UpgradeDetector
	Clock        ports.Clock
	Logger       *slog.Logger
}

type Runner struct {
	settings     domain.SyncSettings
	secondaries  []domain.SyncTarget
	orchestrator *Orchestrator
	tracker      *ChangeTracker
	watcher      ports.FileWatcher
	upgrades     ports.UpgradeDetector
	clock        ports.Clock
	logger       *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Tracker == nil {
		cfg.Tracker = NewChangeTracker()
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Settings.ReadinessTimeout <= 0 {
		cfg.Settings.ReadinessTimeout = DefaultReadinessTimeout
	}

	return &Runner{
		settings:     cfg.Settings,
		secondaries:  cfg.Secondaries,
		orchestrator: cfg.Orchestrator,
		tracker:      cfg.Tracker,
		watcher:      cfg.Watcher,
		upgrades:     cfg.Upgrades,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// Run syncs once, or keeps syncing according to the configured trigger until ctx
// ends. In continuous mode cycle failures are logged and never returned.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	r.logSummary()

	if opts.Once {
		return r.runCycle(ctx, nil)
	}

	r.startKeepalives(ctx)
	trigger, err := r.trigger()
	if err != nil {
		return err
	}
	poll, polling := trigger.(*APIPollTrigger)

	switch {
	case !opts.SkipInitialSync && polling:
		r.initialPolledSync(ctx, poll)
	case !opts.SkipInitialSync:
		if err := r.runCycle(ctx, nil); err != nil {
			r.logger.Error("initial sync failed", "err", err)
		}
	case polling:
		r.seedBaseline(ctx, poll)
	default:
		r.logger.Info("skipping initial sync")
	}

	return trigger.Run(ctx, r.triggeredCycle)
}

func (r *Runner) trigger() (Trigger, error) {
	switch r.settings.TriggerMode {
	case domain.TriggerModeInterval, "":
		return &IntervalTrigger{Interval: r.settings.Interval, Clock: r.clock, Logger: r.logger}, nil
	case domain.TriggerModeWatchConfigFile:
		if r.watcher == nil {
			return nil, fmt.Errorf("trigger mode %s needs a file watcher", r.settings.TriggerMode)
		}
		return &FileWatchTrigger{
			Path:     r.settings.WatchPath,
			Watcher:  r.watcher,
			Upgrades: r.upgrades,
			Debounce: DefaultDebounce,
			Logger:   r.logger,
		}, nil
	case domain.TriggerModeWatchConfigAPI:
		main := r.orchestrator.Main()
		return &APIPollTrigger{
			Interval: r.settings.APIPollInterval,
			Fetch:    main.Config,
			Tracker:  r.tracker,
			Key:      mainConfigKey(main.Endpoint()),
			Clock:    r.clock,
			Logger:   r.logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown trigger mode %q", r.settings.TriggerMode)
	}
}

func (r *Runner) runCycle(ctx context.Context, mainConfig any) error {
	report, err := r.orchestrator.RunCycle(ctx, mainConfig)
	if err != nil {
		return err
	}
	return report.Err()
}

// triggeredCycle waits until every instance answers before syncing; event-driven
// triggers tend to fire while Pi-hole is restarting.
func (r *Runner) triggeredCycle(ctx context.Context, mainConfig any) error {
	if r.settings.TriggerMode != domain.TriggerModeInterval && r.settings.TriggerMode != "" {
		if err := r.waitForReadiness(ctx); err != nil {
			r.orchestrator.LogoutAll(ctx)
			return fmt.Errorf("instances not ready, skipping triggered sync: %w", err)
		}
	}
	return r.runCycle(ctx, mainConfig)
}

func (r *Runner) waitForReadiness(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, instance := range r.orchestrator.Instances() {
		group.Go(func() error {
			return instance.WaitForReady(groupCtx, r.settings.ReadinessTimeout)
		})
	}
	return group.Wait()
}

func (r *Runner) initialPolledSync(ctx context.Context, poll *APIPollTrigger) {
	main := r.orchestrator.Main()
	config, err := main.Config(ctx)
	if err != nil {
		r.logger.Error("initial sync failed", "host", main.Endpoint().Host, "err", err)
		r.orchestrator.LogoutAll(ctx)
		return
	}
	if err := r.runCycle(ctx, config); err != nil {
		r.logger.Error("initial sync failed", "err", err)
		return
	}
	if err := poll.SeedBaseline(config); err != nil {
		r.logger.Warn("could not record config baseline", "err", err)
	}
}

// seedBaseline records main's current config without syncing, so only later
// changes trigger a cycle.
func (r *Runner) seedBaseline(ctx context.Context, poll *APIPollTrigger) {
	main := r.orchestrator.Main()
	defer func() {
		if err := main.Logout(ctx); err != nil {
			r.logger.Warn("logout failed", "host", main.Endpoint().Host, "err", err)
		}
	}()

	config, err := main.Config(ctx)
	if err != nil {
		r.logger.Warn("could not fetch config baseline, first poll will sync", "host", main.Endpoint().Host, "err", err)
		return
	}
	if err := poll.SeedBaseline(config); err != nil {
		r.logger.Warn("could not record config baseline", "err", err)
		return
	}
	r.logger.Info("skipping initial sync, recorded config baseline", "host", main.Endpoint().Host)
}

func (r *Runner) startKeepalives(ctx context.Context) {
	interval := r.settings.Interval
	if r.settings.TriggerMode == domain.TriggerModeWatchConfigAPI {
		interval = r.settings.APIPollInterval
	}

	for _, instance := range r.orchestrator.Instances() {
		starter, ok := instance.(KeepaliveStarter)
		if !ok {
			continue
		}
		if err := starter.InitKeepalive(ctx, interval); err != nil {
			r.logger.Warn("could not start session keepalive", "host", instance.Endpoint().Host, "err", err)
		}
	}
}

func (r *Runner) logSummary() {
	summary := make([]string, 0, len(r.secondaries))
	for _, target := range r.secondaries {
		summary = append(summary, target.Endpoint.Host+":"+strconv.Itoa(target.Endpoint.Port)+" ("+string(target.Mode)+")")
	}
	r.logger.Info("configured secondaries", "count", len(r.secondaries), "instances", strings.Join(summary, ", "))
	r.logger.Info("sync settings",
		"trigger", r.settings.TriggerMode,
		"interval", r.settings.Interval,
		"api_poll_interval", r.settings.APIPollInterval,
		"readiness_timeout", r.settings.ReadinessTimeout)

	for _, target := range r.secondaries {
		attrs := []any{"host", target.Host(), "mode", target.Mode, "update_gravity", target.UpdateGravity}
		switch target.Mode {
		case domain.SyncModeSnapshot:
			if target.Snapshot != nil {
				attrs = append(attrs, "import", fmt.Sprintf("%+v", *target.Snapshot))
			}
		case domain.SyncModeSelective:
			attrs = append(attrs, "sync_groups", target.Selective.SyncGroups, "sync_lists", target.Selective.SyncLists)
			if target.Selective.Config != nil {
				attrs = append(attrs, "config_mode", target.Selective.Config.Mode, "config_paths", target.Selective.Config.Paths)
			}
		}
		r.logger.Debug("secondary options", attrs...)
	}
}
