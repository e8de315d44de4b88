package domain

import "time"

type TriggerMode string

const (
	TriggerModeInterval        TriggerMode = "interval"
	TriggerModeWatchConfigFile TriggerMode = "watch_config_file"
	TriggerModeWatchConfigAPI  TriggerMode = "watch_config_api"
)

func (m TriggerMode) Valid() bool {
	switch m {
	case TriggerModeInterval, TriggerModeWatchConfigFile, TriggerModeWatchConfigAPI:
		return true
	default:
		return false
	}
}

type SyncSettings struct {
	Interval         time.Duration
	APIPollInterval  time.Duration
	ReadinessTimeout time.Duration
	TriggerMode      TriggerMode
	// WatchPath is the Pi-hole config file watched in watch_config_file mode.
	WatchPath string
	// CacheDir stages the teleporter archive.
	CacheDir string
}

type Config struct {
	Sync        SyncSettings
	Main        Endpoint
	Secondaries []SyncTarget
}

// Endpoints returns main followed by every secondary.
func (c Config) Endpoints() []Endpoint {
	endpoints := make([]Endpoint, 0, len(c.Secondaries)+1)
	endpoints = append(endpoints, c.Main)
	for _, target := range c.Secondaries {
		endpoints = append(endpoints, target.Endpoint)
	}
	return endpoints
}

func (c Config) HasMode(mode SyncMode) bool {
	for _, target := range c.Secondaries {
		if target.Mode == mode {
			return true
		}
	}
	return false
}
