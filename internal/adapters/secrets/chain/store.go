// Package chain resolves credential references against two secret backends.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	filestore "github.com/bnema/pihole-sync/internal/adapters/secrets/file"
	passstore "github.com/bnema/pihole-sync/internal/adapters/secrets/pass"
	"github.com/bnema/pihole-sync/internal/ports"
)

// Reference prefixes pin a key to one backend. A bare key tries the primary
// backend first and falls back to the other one.
const (
	PassPrefix = "pass:"
	FilePrefix = "file:"
)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

type Store struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

func New(primary ports.SecretStore, fallback ports.SecretStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}
	return &Store{primary: primary, fallback: fallback}, nil
}

// NewPassFirstWithFileFallback routes "pass:" keys to pass and "file:" keys to
// files under fileRoot.
func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return New(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	return s.route(ctx, "put", key, func(store ports.SecretStore, name string) error {
		return store.Put(ctx, name, value)
	})
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.route(ctx, "get", key, func(store ports.SecretStore, name string) error {
		var err error
		value, err = store.Get(ctx, name)
		return err
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.route(ctx, "delete", key, func(store ports.SecretStore, name string) error {
		return store.Delete(ctx, name)
	})
}

// route runs call against the pinned backend, or against the primary and then
// the fallback for a bare key.
func (s *Store) route(ctx context.Context, op, key string, call func(store ports.SecretStore, name string) error) error {
	if name, ok := strings.CutPrefix(key, PassPrefix); ok {
		return call(s.primary, name)
	}
	if name, ok := strings.CutPrefix(key, FilePrefix); ok {
		return call(s.fallback, name)
	}

	primaryErr := call(s.primary, key)
	if primaryErr == nil || ctx.Err() != nil || isContextError(primaryErr) {
		return primaryErr
	}

	fallbackErr := call(s.fallback, key)
	if fallbackErr == nil {
		return nil
	}
	return fmt.Errorf("primary backend %s failed: %w; fallback backend %s failed: %w", op, primaryErr, op, fallbackErr)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
