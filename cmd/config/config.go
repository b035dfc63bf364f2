package config

import (
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout io.Writer = os.Stdout

	parseSettings = config.ParseSettings
)

// New creates a new `config` command.
func New() *cobra.Command {
	var configPath string
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved datadock settings.",
		Long: "Parse and validate the settings file, then print the resolved\n" +
			"settings with every default filled in. A broken file fails with\n" +
			"the same error the upload commands would report.",
		Run: func(_ *cobra.Command, _ []string) {
			path, err := util.ResolveSettingsPath(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "resolve settings path"))
			}

			if err := run(path, showSecrets); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the datadock settings file")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false,
		"Print the API key instead of masking it")

	// Setup the commands for querying single settings from scripts.
	type getterSpec struct {
		use, short string
		fn         func(config.Settings) string
	}

	getters := []getterSpec{
		{
			use:   "get-directory",
			short: "Get the configured data directory",
			fn:    func(cfg config.Settings) string { return cfg.Data.Directory },
		},
		{
			use:   "get-server",
			short: "Get the configured MyTardis server URL",
			fn:    func(cfg config.Settings) string { return cfg.Server.URL },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				path, err := util.ResolveSettingsPath(configPath)
				if err != nil {
					util.HandleFatalError(errors.WithContext(err, "resolve settings path"))
				}

				settings, err := parseSettings(path)
				if err != nil {
					util.HandleFatalError(err)
				}
				fmt.Fprintln(stdout, getter.fn(settings))
			},
		})
	}
	return cmd
}

func run(path string, showSecrets bool) error {
	settings, err := parseSettings(path)
	if err != nil {
		return err
	}

	if !showSecrets && settings.Server.APIKey != "" {
		settings.Server.APIKey = "<hidden>"
	}

	yamlBytes, err := yaml.Marshal(settings)
	if err != nil {
		return errors.WithContext(err, "marshal settings")
	}

	fmt.Fprintf(stdout, "# %s\n%s", path, yamlBytes)
	return nil
}
