package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bnema/pihole-sync/internal/adapters/cache"
	"github.com/bnema/pihole-sync/internal/adapters/pihole"
	"github.com/bnema/pihole-sync/internal/adapters/process"
	instancesrender "github.com/bnema/pihole-sync/internal/adapters/render/instances"
	tomlrepo "github.com/bnema/pihole-sync/internal/adapters/repo/toml"
	chainstore "github.com/bnema/pihole-sync/internal/adapters/secrets/chain"
	filestore "github.com/bnema/pihole-sync/internal/adapters/secrets/file"
	"github.com/bnema/pihole-sync/internal/adapters/watch"
	"github.com/bnema/pihole-sync/internal/application"
	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
	"github.com/spf13/viper"
)

type app struct {
	settings         *viper.Viper
	logger           *slog.Logger
	repo             ports.ConfigRepository
	secretStore      ports.SecretStore
	instanceRenderer func(domain.Config, instancesrender.RenderOptions) (string, error)
	httpClient       *http.Client
	clock            ports.Clock
}

func (a *app) wire(logOutput io.Writer) error {
	level, err := parseLogLevel(a.settings.GetString(logLevelKey))
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: level}))

	repo, err := tomlrepo.NewRepository(a.settings)
	if err != nil {
		return fmt.Errorf("wire config repository: %w", err)
	}

	secretsRoot, err := filestore.DefaultRoot()
	if err != nil {
		return fmt.Errorf("wire secret store: %w", err)
	}
	secretStore, err := chainstore.NewPassFirstWithFileFallback(secretsRoot)
	if err != nil {
		return fmt.Errorf("wire secret store chain: %w", err)
	}

	a.repo = repo
	a.secretStore = secretStore
	a.instanceRenderer = instancesrender.Render
	a.httpClient = pihole.NewHTTPClient()
	a.clock = ports.SystemClock{}
	return nil
}

// loadResolved loads the configuration and resolves every credential reference.
func (a *app) loadResolved(ctx context.Context) (domain.Config, error) {
	config, err := a.repo.Load(ctx)
	if err != nil {
		return domain.Config{}, fmt.Errorf("load config: %w", err)
	}
	return application.ResolveCredentials(ctx, config, a.secretStore)
}

func (a *app) newClient(endpoint domain.Endpoint) *pihole.Client {
	return pihole.NewClient(endpoint, pihole.Options{
		HTTPClient: a.httpClient,
		Clock:      a.clock,
		Logger:     a.logger,
	})
}

func (a *app) newRunner(ctx context.Context) (*application.Runner, error) {
	config, err := a.loadResolved(ctx)
	if err != nil {
		return nil, err
	}

	var stager ports.ArchiveStager
	if config.HasMode(domain.SyncModeSnapshot) {
		cacheStager := cache.NewStager(config.Sync.CacheDir)
		if err := cacheStager.Prepare(); err != nil {
			return nil, err
		}
		stager = cacheStager
	}

	targets := make([]application.Target, 0, len(config.Secondaries))
	for _, spec := range config.Secondaries {
		targets = append(targets, application.Target{Spec: spec, Instance: a.newClient(spec.Endpoint)})
	}

	tracker := application.NewChangeTracker()
	orchestrator, err := application.NewOrchestrator(application.OrchestratorConfig{
		Main:             a.newClient(config.Main),
		Targets:          targets,
		Tracker:          tracker,
		Stager:           stager,
		Clock:            a.clock,
		Logger:           a.logger,
		ReadinessTimeout: config.Sync.ReadinessTimeout,
		WriteThrottle:    application.DefaultWriteThrottle,
	})
	if err != nil {
		return nil, fmt.Errorf("build sync engine: %w", err)
	}

	return application.NewRunner(application.RunnerConfig{
		Settings:     config.Sync,
		Secondaries:  config.Secondaries,
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Watcher:      watch.NewWatcher(a.logger),
		Upgrades:     process.NewUpgradeDetector(),
		Clock:        a.clock,
		Logger:       a.logger,
	}), nil
}
