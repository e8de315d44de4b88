package cmd

import (
	"fmt"
	"strconv"

	instancesrender "github.com/bnema/pihole-sync/internal/adapters/render/instances"
	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/spf13/cobra"
)

func newInstancesCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Manage configured Pi-hole instances",
	}

	cmd.AddCommand(
		newInstancesListCmd(app),
		newInstancesAddCmd(app),
		newInstancesRemoveCmd(app),
	)

	return cmd
}

func newInstancesListCmd(app *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the main instance and every secondary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := app.repo.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			output, err := app.instanceRenderer(config, instancesrender.RenderOptions{
				ConfigPath: app.repo.Path(),
				Verbose:    verbose,
			})
			if err != nil {
				return fmt.Errorf("render instances: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show import options and config filter keys")

	return cmd
}

func newInstancesAddCmd(app *app) *cobra.Command {
	var updateGravity bool
	var syncMode string
	var syncGroups bool
	var syncLists bool

	cmd := &cobra.Command{
		Use:   "add HOST SCHEMA PORT API_KEY",
		Short: "Add a secondary instance",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[2])
			}
			mode := domain.SyncMode(syncMode)
			if !mode.Valid() {
				return fmt.Errorf("unsupported sync mode %q", syncMode)
			}

			config, err := app.repo.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			endpoint := domain.Endpoint{Host: args[0], Scheme: args[1], Port: port, Credential: args[3]}
			for _, existing := range config.Endpoints() {
				if existing.SameAs(endpoint) {
					return fmt.Errorf("instance %s is already configured", endpoint.Address())
				}
			}

			target := domain.SyncTarget{Endpoint: endpoint, Mode: mode, UpdateGravity: updateGravity}
			if mode == domain.SyncModeSelective {
				target.Selective = domain.SelectiveOptions{SyncGroups: syncGroups, SyncLists: syncLists}
			}
			config.Secondaries = append(config.Secondaries, target)

			if err := app.repo.Save(cmd.Context(), config); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			app.logger.Info("instance added", "host", endpoint.Host, "port", endpoint.Port, "mode", mode)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&updateGravity, "update-gravity", "u", false, "Run gravity on the secondary after each sync")
	cmd.Flags().StringVar(&syncMode, "sync-mode", string(domain.SyncModeSnapshot), "Sync mode (teleporter|api)")
	cmd.Flags().BoolVar(&syncGroups, "sync-groups", false, "Sync groups (api mode)")
	cmd.Flags().BoolVar(&syncLists, "sync-lists", false, "Sync lists (api mode)")

	return cmd
}

func newInstancesRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove HOST",
		Short: "Remove every secondary instance with the given hostname",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]

			config, err := app.repo.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			kept := config.Secondaries[:0]
			for _, target := range config.Secondaries {
				if target.Host() != host {
					kept = append(kept, target)
				}
			}
			if len(kept) == len(config.Secondaries) {
				app.logger.Info("no instance found", "host", host)
				return nil
			}
			removed := len(config.Secondaries) - len(kept)
			config.Secondaries = kept

			if err := app.repo.Save(cmd.Context(), config); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			app.logger.Info("instance removed", "host", host, "count", removed)
			return nil
		},
	}
}
