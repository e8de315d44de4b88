// Package file keeps secrets as one 0600 file per key below a root directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/pihole-sync/internal/adapters/fsutil"
	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
)

const (
	storeDirMode      = 0o700
	secretFileMod     = 0o600
	secretTempPattern = ".secret-*"
)

var errEmptyKey = errors.New("secret key is empty")

// Store maps a key such as "pihole/main" to {root}/pihole/main. Writes are
// atomic, so concurrent readers never see a partial secret.
type Store struct {
	root string
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// DefaultRoot is $XDG_CONFIG_HOME/pihole-sync/secrets, or its platform equivalent.
func DefaultRoot() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(configDir, "pihole-sync", "secrets"), nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	path, err := s.secretPath(ctx, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return fmt.Errorf("create secret directory for %q: %w", key, err)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(value), secretFileMod, secretTempPattern); err != nil {
		return fmt.Errorf("write secret %q: %w", key, err)
	}
	return nil
}

// Get returns the file content without a trailing newline, as left by editors.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	path, err := s.secretPath(ctx, key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("secret %q: %w", key, domain.ErrSecretNotFound)
	case err != nil:
		return "", fmt.Errorf("read secret %q: %w", key, err)
	}

	return strings.TrimRight(string(data), "\r\n"), nil
}

// Delete succeeds when the secret is already gone.
func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.secretPath(ctx, key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete secret %q: %w", key, err)
	}
	return nil
}

// secretPath confines key below the store root.
func (s *Store) secretPath(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := strings.TrimSpace(key)
	if name == "" {
		return "", errEmptyKey
	}

	local, err := filepath.Localize(name)
	if err != nil || !filepath.IsLocal(local) {
		return "", fmt.Errorf("invalid secret key %q", key)
	}
	return filepath.Join(s.root, local), nil
}
