package ports

import "context"

// FileEvent is a filesystem notification for one path.
type FileEvent struct {
	Path string
	Op   string
}

// FileWatcher delivers events for the entries of one directory. The events
// channel is closed when the watcher stops.
type FileWatcher interface {
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)
}

// UpgradeDetector reports whether an external "pihole -up" is running.
type UpgradeDetector interface {
	UpgradeRunning(ctx context.Context) (bool, error)
}
