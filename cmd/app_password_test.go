package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errReadOnlyConfig = errors.New("config is read-only")

type failingSaveRepo struct {
	saved int
}

func (r *failingSaveRepo) Load(context.Context) (domain.Config, error) {
	return domain.Config{}, nil
}

func (r *failingSaveRepo) Save(context.Context, domain.Config) error {
	r.saved++
	return errReadOnlyConfig
}

func (r *failingSaveRepo) Path() string { return "/etc/pihole-sync/config.toml" }

func appPasswordTestConfig() (domain.Config, domain.Endpoint) {
	main := domain.Endpoint{Host: "pi1.lan", Scheme: "http", Port: 80, Credential: "web-password"}
	return domain.Config{Main: main}, main
}

func TestStoreAppPasswordRollsBackSecretWhenSaveFails(t *testing.T) {
	t.Parallel()

	store := mocks.NewMockSecretStore(t)
	store.EXPECT().Put(context.Background(), "file:pihole/main", "app-secret").Return(nil).Once()
	store.EXPECT().Delete(context.Background(), "file:pihole/main").Return(nil).Once()
	repo := &failingSaveRepo{}
	app := &app{repo: repo, secretStore: store}

	config, endpoint := appPasswordTestConfig()
	err := storeAppPassword(context.Background(), app, config, endpoint, "file:pihole/main", "app-secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, errReadOnlyConfig)
	assert.Equal(t, 1, repo.saved)
}

func TestStoreAppPasswordJoinsRollbackFailure(t *testing.T) {
	t.Parallel()

	rollbackErr := errors.New("pass rm failed")
	store := mocks.NewMockSecretStore(t)
	store.EXPECT().Put(context.Background(), "pass:pihole/main", "app-secret").Return(nil).Once()
	store.EXPECT().Delete(context.Background(), "pass:pihole/main").Return(rollbackErr).Once()
	app := &app{repo: &failingSaveRepo{}, secretStore: store}

	config, endpoint := appPasswordTestConfig()
	err := storeAppPassword(context.Background(), app, config, endpoint, "pass:pihole/main", "app-secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, errReadOnlyConfig)
	assert.ErrorIs(t, err, rollbackErr)
	assert.ErrorContains(t, err, "roll back stored app password")
}

func TestStoreAppPasswordSkipsSaveWhenPutFails(t *testing.T) {
	t.Parallel()

	putErr := errors.New("store unavailable")
	store := mocks.NewMockSecretStore(t)
	store.EXPECT().Put(context.Background(), "pihole/main", "app-secret").Return(putErr).Once()
	repo := &failingSaveRepo{}
	app := &app{repo: repo, secretStore: store}

	config, endpoint := appPasswordTestConfig()
	err := storeAppPassword(context.Background(), app, config, endpoint, "pihole/main", "app-secret")
	require.ErrorIs(t, err, putErr)
	assert.Zero(t, repo.saved)
}
