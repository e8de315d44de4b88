package ports

import "context"

// ArchiveStager keeps a local copy of the last downloaded teleporter archive.
type ArchiveStager interface {
	Stage(ctx context.Context, archive []byte) (string, error)
}
