package application

import (
	"sync"

	"github.com/bnema/pihole-sync/internal/domain"
)

// ChangeTracker remembers the last successfully synced hash per key. A key that was
// never recorded always counts as changed.
type ChangeTracker struct {
	mu     sync.Mutex
	hashes map[string]uint64
}

func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{hashes: make(map[string]uint64)}
}

func (t *ChangeTracker) HasChanged(key string, hash uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, ok := t.hashes[key]
	return !ok || previous != hash
}

func (t *ChangeTracker) Update(key string, hash uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hashes[key] = hash
}

// Keys use the endpoint address, so two instances on one host stay apart.
func configKey(e domain.Endpoint) string   { return "config:" + e.Address() }
func groupsKey(e domain.Endpoint) string   { return "groups:" + e.Address() }
func listsKey(e domain.Endpoint) string    { return "lists:" + e.Address() }
func snapshotKey(e domain.Endpoint) string { return "snapshot:" + e.Address() }

// mainConfigKey holds the API poll baseline of main's full configuration.
func mainConfigKey(main domain.Endpoint) string {
	return configKey(main)
}
