package version

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/version"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout

	parseSettings = config.ParseSettings
)

// New creates a new `version` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the datadock version and the server app state.",
		Long: "Print the local version of datadock, and whether the MyTardis\n" +
			"server runs the companion app that datadock registers with.",
		Run: func(_ *cobra.Command, _ []string) {
			path, err := util.ResolveSettingsPath(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "resolve settings path"))
			}

			if err := run(path); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the datadock settings file")
	return cmd
}

func run(settingsPath string) error {
	fmt.Fprintf(stdout, "local version: %s\n", version.Version)

	settings, err := parseSettings(settingsPath)
	if err != nil {
		// Without settings there's no server to ask. The local version is
		// still useful on its own.
		log.WithError(err).Debug("Skipping the server check without settings")
		return nil
	}

	client := mytardis.New(settings.Server.URL, settings.Server.Username,
		settings.Server.APIKey, settings.ConnectionTimeout())
	fmt.Fprintf(stdout, "server:        %s\n", settings.Server.URL)
	fmt.Fprintf(stdout, "server app:    %s\n", serverAppState(client, settings.UUID))
	return nil
}

// serverAppState asks the server for this instance's uploader record, which
// doubles as a check that the companion app is installed at all.
func serverAppState(client *mytardis.Client, uuid string) string {
	_, err := client.GetUploader(context.Background(), uuid)
	switch {
	case err == nil:
		return "installed, this instance is registered"
	case errors.IsNotFound(err):
		return "installed, this instance is not registered (run `datadock setup`)"
	default:
		if _, ok := errors.RootCause(err).(errors.Friendly); ok {
			return "missing (the server doesn't run the mydata app)"
		}
		return fmt.Sprintf("unknown (%s)", err)
	}
}
