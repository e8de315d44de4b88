package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	tomlrepo "github.com/bnema/pihole-sync/internal/adapters/repo/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "PIHOLE_SYNC"
	logLevelKey = "log.level"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	settings := newSettings()
	app := &app{settings: settings}

	rootCmd := &cobra.Command{
		Use:           "pihole-sync",
		Short:         "Keep secondary Pi-hole v6 instances in sync with a main instance",
		Long:          "pihole-sync copies teleporter archives or selected configuration, groups and lists from a main Pi-hole to its secondaries, on an interval or when the main configuration changes.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.wire(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().String("config", tomlrepo.DefaultConfigPath, "Path to the pihole-sync configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	_ = settings.BindPFlag(tomlrepo.ConfigPathKey, rootCmd.PersistentFlags().Lookup("config"))
	_ = settings.BindPFlag(logLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newSyncCmd(app),
		newInstancesCmd(app),
		newAppPasswordCmd(app),
	)

	return rootCmd
}

// newSettings reads PIHOLE_SYNC_CONFIG_PATH and PIHOLE_SYNC_LOG_LEVEL from the
// environment; flags take precedence.
func newSettings() *viper.Viper {
	settings := viper.New()
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	settings.AutomaticEnv()
	settings.SetDefault(tomlrepo.ConfigPathKey, tomlrepo.DefaultConfigPath)
	settings.SetDefault(logLevelKey, "info")
	return settings
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
	return level, nil
}
