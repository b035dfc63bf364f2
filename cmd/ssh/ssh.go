package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/staging"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout

	parseSettings = config.ParseSettings
	dial          = func(config staging.SSHConfig) (staging.Transport, error) {
		return staging.Dial(config)
	}
)

// New creates a new `ssh` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "ssh",
		Short: "Check the connection to the staging host.",
		Long: "Connect to the approved staging host and run each transfer\n" +
			"primitive once against a scratch directory. Use it after\n" +
			"`setup` approval, or when staged uploads start failing.",
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
	settings, err := parseSettings(settingsPath)
	if err != nil {
		return err
	}

	if settings.Staging.Host == "" {
		return errors.NewFriendlyError("No staging host is configured. Run " +
			"`datadock setup` to request staged upload access first.")
	}

	fmt.Fprintf(stdout, "Connecting to %s@%s:%s.. ", settings.Staging.Username,
		settings.Staging.Host, settings.Staging.Port)
	transport, err := dial(staging.SSHConfig{
		Host:     settings.Staging.Host,
		Port:     settings.Staging.Port,
		Username: settings.Staging.Username,
		KeyPath:  settings.Staging.KeyPath,
		Timeout:  settings.ConnectionTimeout(),
	})
	if err != nil {
		fmt.Fprintln(stdout, "failed")
		return err
	}
	defer transport.Close()
	fmt.Fprintln(stdout, "ok")

	return probe(context.Background(), transport, settings.Staging.Location, stdout)
}

// probe runs each transfer primitive once under a scratch directory so a
// permission problem is pinned to the exact operation that fails.
func probe(ctx context.Context, transport staging.Transport, location string,
	out io.Writer) error {

	scratch := path.Join(location, ".datadock-probe")
	payload := "datadock staging probe\n"
	tmpPath := path.Join(scratch, "probe.tmp")
	finalPath := path.Join(scratch, "probe")

	steps := []struct {
		name string
		run  func() error
	}{
		{"create directory", func() error {
			return transport.EnsureDir(ctx, scratch)
		}},
		{"stage chunk", func() error {
			return transport.PutTemp(ctx, tmpPath, strings.NewReader(payload))
		}},
		{"splice chunk", func() error {
			return transport.AppendAndCleanup(ctx, tmpPath, finalPath, true)
		}},
		{"query size", func() error {
			size, err := transport.QuerySize(ctx, finalPath)
			if err != nil {
				return err
			}
			if size != int64(len(payload)) {
				return fmt.Errorf("expected %d bytes, found %d", len(payload), size)
			}
			return nil
		}},
		{"clean up", func() error {
			return transport.RemoveTemp(ctx, finalPath)
		}},
	}

	for _, step := range steps {
		fmt.Fprintf(out, "%s.. ", step.name)
		if err := step.run(); err != nil {
			fmt.Fprintln(out, "failed")
			return errors.WithContext(err, step.name)
		}
		fmt.Fprintln(out, "ok")
	}

	fmt.Fprintln(out, "The staging host is ready for uploads.")
	return nil
}
