package application

import (
	"context"
	"fmt"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
)

// ResolveCredentials fills Credential from the secret store for every endpoint
// that only carries a CredentialRef.
func ResolveCredentials(ctx context.Context, config domain.Config, store ports.SecretStore) (domain.Config, error) {
	main, err := resolveEndpoint(ctx, config.Main, store)
	if err != nil {
		return domain.Config{}, err
	}
	config.Main = main

	secondaries := make([]domain.SyncTarget, len(config.Secondaries))
	for i, target := range config.Secondaries {
		endpoint, err := resolveEndpoint(ctx, target.Endpoint, store)
		if err != nil {
			return domain.Config{}, err
		}
		target.Endpoint = endpoint
		secondaries[i] = target
	}
	config.Secondaries = secondaries

	return config, nil
}

func resolveEndpoint(ctx context.Context, endpoint domain.Endpoint, store ports.SecretStore) (domain.Endpoint, error) {
	if endpoint.Credential != "" || endpoint.CredentialRef == "" {
		return endpoint, nil
	}
	if store == nil {
		return endpoint, fmt.Errorf("resolve credential for %s: no secret store configured", endpoint.Host)
	}

	secret, err := store.Get(ctx, endpoint.CredentialRef)
	if err != nil {
		return endpoint, fmt.Errorf("resolve credential for %s: %w", endpoint.Host, err)
	}
	endpoint.Credential = secret
	return endpoint, nil
}
