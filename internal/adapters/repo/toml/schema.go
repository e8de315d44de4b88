package toml

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
)

const (
	currentSchemaVersion = 1

	defaultIntervalMinutes  = 60
	defaultReadinessSeconds = 60
	defaultWatchPath        = "/etc/pihole/pihole.toml"
	defaultCacheLocation    = "/var/cache/pihole-sync"
)

var ErrInvalidConfig = errors.New("invalid config")

type fileSchema struct {
	Version   int               `toml:"version"`
	Sync      syncSchema        `toml:"sync"`
	Main      endpointSchema    `toml:"main"`
	Secondary []secondarySchema `toml:"secondary"`
}

type syncSchema struct {
	Interval             int64  `toml:"interval"`
	APIPollInterval      int64  `toml:"api_poll_interval,omitempty"`
	TriggerMode          string `toml:"trigger_mode,omitempty"`
	ConfigPath           string `toml:"config_path,omitempty"`
	CacheLocation        string `toml:"cache_location"`
	ReadinessTimeoutSecs int64  `toml:"trigger_api_readiness_timeout_secs,omitempty"`
}

type endpointSchema struct {
	Host      string `toml:"host"`
	Schema    string `toml:"schema"`
	Port      int    `toml:"port"`
	APIKey    string `toml:"api_key,omitempty"`
	APIKeyRef string `toml:"api_key_ref,omitempty"`
}

type secondarySchema struct {
	Host              string            `toml:"host"`
	Schema            string            `toml:"schema"`
	Port              int               `toml:"port"`
	APIKey            string            `toml:"api_key,omitempty"`
	APIKeyRef         string            `toml:"api_key_ref,omitempty"`
	UpdateGravity     bool              `toml:"update_gravity"`
	SyncMode          string            `toml:"sync_mode,omitempty"`
	TeleporterOptions *teleporterSchema `toml:"teleporter_options,omitempty"`
	APISyncOptions    *apiSyncSchema    `toml:"api_sync_options,omitempty"`
}

type teleporterSchema struct {
	Config     bool          `toml:"config"`
	DHCPLeases bool          `toml:"dhcp_leases"`
	Gravity    gravitySchema `toml:"gravity"`
}

type gravitySchema struct {
	Group             bool `toml:"group"`
	Adlist            bool `toml:"adlist"`
	AdlistByGroup     bool `toml:"adlist_by_group"`
	Domainlist        bool `toml:"domainlist"`
	DomainlistByGroup bool `toml:"domainlist_by_group"`
	Client            bool `toml:"client"`
	ClientByGroup     bool `toml:"client_by_group"`
}

type apiSyncSchema struct {
	SyncGroups bool              `toml:"sync_groups"`
	SyncLists  bool              `toml:"sync_lists"`
	SyncConfig *configSyncSchema `toml:"sync_config,omitempty"`
}

type configSyncSchema struct {
	Mode       string   `toml:"mode,omitempty"`
	FilterKeys []string `toml:"filter_keys"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
	if s.Sync.Interval == 0 {
		s.Sync.Interval = defaultIntervalMinutes
	}
	if s.Sync.APIPollInterval == 0 {
		s.Sync.APIPollInterval = s.Sync.Interval
	}
	if s.Sync.TriggerMode == "" {
		s.Sync.TriggerMode = string(domain.TriggerModeInterval)
	}
	if s.Sync.ConfigPath == "" {
		s.Sync.ConfigPath = defaultWatchPath
	}
	if s.Sync.CacheLocation == "" {
		s.Sync.CacheLocation = defaultCacheLocation
	}
	if s.Sync.ReadinessTimeoutSecs == 0 {
		s.Sync.ReadinessTimeoutSecs = defaultReadinessSeconds
	}
	for i := range s.Secondary {
		if s.Secondary[i].SyncMode == "" {
			s.Secondary[i].SyncMode = string(domain.SyncModeSnapshot)
		}
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported config schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

// toDomain validates a defaulted schema and converts it. Every problem is reported,
// not only the first.
func (s fileSchema) toDomain() (domain.Config, error) {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if s.Sync.Interval < 0 {
		invalid("sync.interval must be positive")
	}
	if s.Sync.APIPollInterval < 0 {
		invalid("sync.api_poll_interval must be positive")
	}
	if s.Sync.ReadinessTimeoutSecs < 0 {
		invalid("sync.trigger_api_readiness_timeout_secs must be positive")
	}
	trigger := domain.TriggerMode(s.Sync.TriggerMode)
	if !trigger.Valid() {
		invalid("sync.trigger_mode %q is not one of interval, watch_config_file, watch_config_api", s.Sync.TriggerMode)
	}

	config := domain.Config{
		Sync: domain.SyncSettings{
			Interval:         time.Duration(s.Sync.Interval) * time.Minute,
			APIPollInterval:  time.Duration(s.Sync.APIPollInterval) * time.Minute,
			ReadinessTimeout: time.Duration(s.Sync.ReadinessTimeoutSecs) * time.Second,
			TriggerMode:      trigger,
			WatchPath:        s.Sync.ConfigPath,
			CacheDir:         s.Sync.CacheLocation,
		},
	}

	main, err := s.Main.toDomain("main")
	if err != nil {
		errs = append(errs, err)
	}
	config.Main = main

	for i, secondary := range s.Secondary {
		target, err := secondary.toDomain(fmt.Sprintf("secondary[%d]", i))
		if err != nil {
			errs = append(errs, err)
		}
		config.Secondaries = append(config.Secondaries, target)
	}

	if err := errors.Join(errs...); err != nil {
		return domain.Config{}, err
	}
	return config, nil
}

func (e endpointSchema) toDomain(label string) (domain.Endpoint, error) {
	return endpointFromSchema(label, e.Host, e.Schema, e.Port, e.APIKey, e.APIKeyRef)
}

func endpointFromSchema(label, host, scheme string, port int, apiKey, apiKeyRef string) (domain.Endpoint, error) {
	var errs []error
	if host == "" {
		errs = append(errs, fmt.Errorf("%w: %s.host is required", ErrInvalidConfig, label))
	}
	if scheme != "http" && scheme != "https" {
		errs = append(errs, fmt.Errorf("%w: %s.schema must be http or https, got %q", ErrInvalidConfig, label, scheme))
	}
	if port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %s.port %d is out of range", ErrInvalidConfig, label, port))
	}
	if apiKey == "" && apiKeyRef == "" {
		errs = append(errs, fmt.Errorf("%w: %s needs api_key or api_key_ref", ErrInvalidConfig, label))
	}

	endpoint := domain.Endpoint{
		Scheme:        scheme,
		Host:          host,
		Port:          port,
		Credential:    apiKey,
		CredentialRef: apiKeyRef,
	}
	return endpoint, errors.Join(errs...)
}

func (s secondarySchema) toDomain(label string) (domain.SyncTarget, error) {
	endpoint, err := endpointFromSchema(label, s.Host, s.Schema, s.Port, s.APIKey, s.APIKeyRef)
	errs := []error{err}

	target := domain.SyncTarget{
		Endpoint:      endpoint,
		Mode:          domain.SyncMode(s.SyncMode),
		UpdateGravity: s.UpdateGravity,
	}
	if !target.Mode.Valid() {
		errs = append(errs, fmt.Errorf("%w: %s.sync_mode %q is not one of teleporter, api", ErrInvalidConfig, label, s.SyncMode))
	}

	if s.TeleporterOptions != nil {
		opts := s.TeleporterOptions.toDomain()
		target.Snapshot = &opts
	}

	if s.APISyncOptions != nil {
		target.Selective.SyncGroups = s.APISyncOptions.SyncGroups
		target.Selective.SyncLists = s.APISyncOptions.SyncLists
		if sc := s.APISyncOptions.SyncConfig; sc != nil {
			mode := domain.FilterMode(sc.Mode)
			if mode == "" {
				mode = domain.FilterModeInclude
			}
			if !mode.Valid() {
				errs = append(errs, fmt.Errorf("%w: %s.api_sync_options.sync_config.mode %q is not one of include, exclude", ErrInvalidConfig, label, sc.Mode))
			}
			target.Selective.Config = &domain.ConfigSyncOptions{Mode: mode, Paths: append([]string(nil), sc.FilterKeys...)}
		}
	}

	return target, errors.Join(errs...)
}

func (t teleporterSchema) toDomain() domain.SnapshotOptions {
	return domain.SnapshotOptions{
		Config:     t.Config,
		DHCPLeases: t.DHCPLeases,
		Gravity: domain.GravityImportOptions{
			Group:             t.Gravity.Group,
			Adlist:            t.Gravity.Adlist,
			AdlistByGroup:     t.Gravity.AdlistByGroup,
			Domainlist:        t.Gravity.Domainlist,
			DomainlistByGroup: t.Gravity.DomainlistByGroup,
			Client:            t.Gravity.Client,
			ClientByGroup:     t.Gravity.ClientByGroup,
		},
	}
}

func toSchema(config domain.Config) fileSchema {
	file := fileSchema{
		Version: currentSchemaVersion,
		Sync: syncSchema{
			Interval:             int64(config.Sync.Interval / time.Minute),
			APIPollInterval:      int64(config.Sync.APIPollInterval / time.Minute),
			TriggerMode:          string(config.Sync.TriggerMode),
			ConfigPath:           config.Sync.WatchPath,
			CacheLocation:        config.Sync.CacheDir,
			ReadinessTimeoutSecs: int64(config.Sync.ReadinessTimeout / time.Second),
		},
		Main: endpointSchema{
			Host:      config.Main.Host,
			Schema:    config.Main.Scheme,
			Port:      config.Main.Port,
			APIKey:    storedKey(config.Main),
			APIKeyRef: config.Main.CredentialRef,
		},
	}

	for _, target := range config.Secondaries {
		entry := secondarySchema{
			Host:          target.Endpoint.Host,
			Schema:        target.Endpoint.Scheme,
			Port:          target.Endpoint.Port,
			APIKey:        storedKey(target.Endpoint),
			APIKeyRef:     target.Endpoint.CredentialRef,
			UpdateGravity: target.UpdateGravity,
			SyncMode:      string(target.Mode),
		}
		if target.Snapshot != nil {
			entry.TeleporterOptions = &teleporterSchema{
				Config:     target.Snapshot.Config,
				DHCPLeases: target.Snapshot.DHCPLeases,
				Gravity: gravitySchema{
					Group:             target.Snapshot.Gravity.Group,
					Adlist:            target.Snapshot.Gravity.Adlist,
					AdlistByGroup:     target.Snapshot.Gravity.AdlistByGroup,
					Domainlist:        target.Snapshot.Gravity.Domainlist,
					DomainlistByGroup: target.Snapshot.Gravity.DomainlistByGroup,
					Client:            target.Snapshot.Gravity.Client,
					ClientByGroup:     target.Snapshot.Gravity.ClientByGroup,
				},
			}
		}
		if target.Mode == domain.SyncModeSelective {
			entry.APISyncOptions = &apiSyncSchema{
				SyncGroups: target.Selective.SyncGroups,
				SyncLists:  target.Selective.SyncLists,
			}
			if target.Selective.Config != nil {
				entry.APISyncOptions.SyncConfig = &configSyncSchema{
					Mode:       string(target.Selective.Config.Mode),
					FilterKeys: target.Selective.Config.Paths,
				}
			}
		}
		file.Secondary = append(file.Secondary, entry)
	}

	return file
}

// storedKey keeps resolved secrets out of the file when a reference exists.
func storedKey(endpoint domain.Endpoint) string {
	if endpoint.CredentialRef != "" {
		return ""
	}
	return endpoint.Credential
}
