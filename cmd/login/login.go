package login

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/mytardis"
)

// Mocked out for unit testing.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout

	parseSettings = config.ReadSettings
	writeSettings = config.WriteSettings
)

// New creates a new `login` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the MyTardis server address and API credentials.",
		Long: "Prompt for the MyTardis server URL, username and API key,\n" +
			"check them with one authenticated request, and save them to\n" +
			"the settings file.",
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

func run(path string) error {
	settings, err := parseSettings(path)
	if _, missing := errors.RootCause(err).(errors.FileNotFound); missing {
		settings = config.DefaultSettings()
	} else if err != nil {
		return errors.WithContext(err, "read settings")
	}

	reader := bufio.NewReader(stdin)
	settings.Server.URL, err = prompt(reader, "MyTardis URL", settings.Server.URL)
	if err != nil {
		return err
	}
	settings.Server.Username, err = prompt(reader, "Username", settings.Server.Username)
	if err != nil {
		return err
	}
	settings.Server.APIKey, err = prompt(reader, "API key", settings.Server.APIKey)
	if err != nil {
		return err
	}
	settings.Server.URL = strings.TrimRight(settings.Server.URL, "/")

	if err := checkCredentials(settings); err != nil {
		return err
	}

	if err := writeSettings(settings, path); err != nil {
		return errors.WithContext(err, "write settings")
	}

	fmt.Fprintf(stdout, "Credentials saved to %s.\n", path)
	return nil
}

// prompt asks for one field, keeping the saved value when the user just
// presses enter.
func prompt(reader *bufio.Reader, field, current string) (string, error) {
	if current == "" {
		fmt.Fprintf(stdout, "%s: ", field)
	} else {
		fmt.Fprintf(stdout, "%s [%s]: ", field, current)
	}

	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.WithContext(err, "read "+field)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return current, nil
	}
	return answer, nil
}

// checkCredentials makes one authenticated round-trip so typos get caught at
// login time rather than by the first upload pass.
func checkCredentials(settings config.Settings) error {
	if settings.Server.URL == "" || settings.Server.Username == "" ||
		settings.Server.APIKey == "" {
		return errors.NewFriendlyError(
			"The server URL, username and API key are all required.")
	}

	client := mytardis.New(settings.Server.URL, settings.Server.Username,
		settings.Server.APIKey, settings.ConnectionTimeout())

	pp := util.NewProgressPrinter(stdout, "Checking the credentials..")
	go pp.Run()
	_, err := client.ListFacilities(context.Background())
	pp.StopWithPrint(util.ClearProgress)

	if mytardis.IsStatus(err, http.StatusUnauthorized) {
		return errors.NewFriendlyError("The server rejected these " +
			"credentials. The API key is shown under your account's " +
			"\"API Access\" page on the server.")
	} else if err != nil {
		return errors.WithContext(err, "check credentials")
	}
	return nil
}
