package ports

import (
	"context"
	"time"

	"github.com/bnema/pihole-sync/internal/domain"
)

// SessionManager owns the authenticated session of one endpoint.
type SessionManager interface {
	EnsureAuthenticated(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Logout(ctx context.Context) error
}

type GroupStore interface {
	Groups(ctx context.Context) ([]domain.Group, error)
	CreateGroup(ctx context.Context, group domain.Group) error
	UpdateGroup(ctx context.Context, name string, group domain.Group) error
}

type ListStore interface {
	Lists(ctx context.Context) ([]domain.ListEntry, error)
	CreateList(ctx context.Context, list domain.ListEntry) error
	UpdateList(ctx context.Context, list domain.ListEntry) error
}

// Instance is everything the sync engine needs from one Pi-hole.
type Instance interface {
	SessionManager
	GroupStore
	ListStore

	Endpoint() domain.Endpoint
	DownloadSnapshot(ctx context.Context) ([]byte, error)
	UploadSnapshot(ctx context.Context, archive []byte, opts *domain.SnapshotOptions) ([]string, error)
	TriggerGravity(ctx context.Context) error
	// Config returns the payload under the "config" field of GET /config.
	Config(ctx context.Context) (any, error)
	PatchConfig(ctx context.Context, config any) error
}
