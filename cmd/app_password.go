package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/spf13/cobra"
)

const appPasswordDocsURL = "https://ftl.pi-hole.net/master/docs/#get-/auth/app"

func newAppPasswordCmd(app *app) *cobra.Command {
	var host string
	var password string
	var storeKey string

	cmd := &cobra.Command{
		Use:   "app-password",
		Short: "Fetch a new API app password from an instance",
		Long:  "Logs in with the web interface password and asks the instance for a new application password. The password is read from stdin when --password is not set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			config, err := app.repo.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			endpoint, err := findEndpoint(config, host)
			if err != nil {
				return err
			}

			if password == "" {
				password, err = readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			client := app.newClient(endpoint)
			defer func() {
				if err := client.Logout(context.WithoutCancel(ctx)); err != nil {
					app.logger.Warn("logout failed", "host", endpoint.Host, "err", err)
				}
			}()

			var appPassword domain.AppPassword
			label := "Fetching app password from " + endpoint.Host + "..."
			err = runWithSpinner(ctx, cmd.ErrOrStderr(), label, func(ctx context.Context) error {
				var fetchErr error
				appPassword, fetchErr = client.AppPassword(ctx, password)
				return fetchErr
			})
			if err != nil {
				return err
			}

			if storeKey != "" {
				if err := storeAppPassword(ctx, app, config, endpoint, storeKey, appPassword.Password); err != nil {
					return err
				}
			}

			return printAppPassword(cmd.OutOrStdout(), endpoint, appPassword, storeKey)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Instance host (defaults to the main instance)")
	cmd.Flags().StringVar(&password, "password", "", "Web interface password")
	cmd.Flags().StringVar(&storeKey, "store", "", "Secret-store key to save the app password under, e.g. pass:pihole/main")

	return cmd
}

func findEndpoint(config domain.Config, host string) (domain.Endpoint, error) {
	if host == "" {
		return config.Main, nil
	}
	for _, endpoint := range config.Endpoints() {
		if endpoint.Host == host {
			return endpoint, nil
		}
	}
	return domain.Endpoint{}, fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, host)
}

func readPassword(input io.Reader) (string, error) {
	line, err := bufio.NewReader(input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("read password: empty password")
	}
	return password, nil
}

// storeAppPassword saves the secret, then points the instance's api_key_ref at it.
// The secret is deleted again when the config cannot be saved.
func storeAppPassword(ctx context.Context, app *app, config domain.Config, endpoint domain.Endpoint, key, secret string) error {
	if err := app.secretStore.Put(ctx, key, secret); err != nil {
		return fmt.Errorf("store app password: %w", err)
	}

	if config.Main.SameAs(endpoint) {
		config.Main.Credential = ""
		config.Main.CredentialRef = key
	}
	for i := range config.Secondaries {
		if config.Secondaries[i].Endpoint.SameAs(endpoint) {
			config.Secondaries[i].Endpoint.Credential = ""
			config.Secondaries[i].Endpoint.CredentialRef = key
		}
	}

	if err := app.repo.Save(ctx, config); err != nil {
		if rollbackErr := app.secretStore.Delete(ctx, key); rollbackErr != nil {
			return fmt.Errorf("save config and roll back stored app password: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func printAppPassword(out io.Writer, endpoint domain.Endpoint, appPassword domain.AppPassword, storeKey string) error {
	lines := []string{
		"Fetched API app password for " + endpoint.Host,
		"Password (add to pihole-sync config): " + appPassword.Password,
		"Hash (add to Pi-hole): " + appPassword.Hash,
		"",
		"Hint:",
	}
	if storeKey != "" {
		lines = append(lines, fmt.Sprintf("The password was stored under %q and api_key_ref now points to it.", storeKey))
	} else {
		lines = append(lines, "Add the password to the pihole-sync configuration for "+endpoint.Host+".")
	}
	lines = append(lines,
		"Add the hash to Settings > Webserver and API > webserver.api.app_pwhash in the Pi-hole web interface.",
		"See "+appPasswordDocsURL,
	)

	_, err := fmt.Fprintln(out, strings.Join(lines, "\n"))
	return err
}
