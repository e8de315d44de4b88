// Package cache keeps the last downloaded teleporter archive on disk.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/pihole-sync/internal/adapters/fsutil"
	"github.com/bnema/pihole-sync/internal/adapters/pihole"
	"github.com/bnema/pihole-sync/internal/ports"
)

const (
	dirMode         = 0o755
	archiveFileMode = 0o644
	tempFilePattern = ".pihole_backup-*.zip.tmp"
)

type Stager struct {
	dir string
}

var _ ports.ArchiveStager = (*Stager)(nil)

func NewStager(dir string) *Stager {
	return &Stager{dir: filepath.Clean(dir)}
}

// Prepare creates the cache directory.
func (s *Stager) Prepare() error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("create cache directory %s: %w", s.dir, err)
	}
	return nil
}

// Stage writes archive to {dir}/pihole_backup.zip and returns that path.
func (s *Stager) Stage(ctx context.Context, archive []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, pihole.ArchiveName)
	if err := fsutil.WriteFileAtomic(path, archive, archiveFileMode, tempFilePattern); err != nil {
		return "", fmt.Errorf("stage archive: %w", err)
	}
	return path, nil
}
