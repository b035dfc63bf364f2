package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/bugtool"
	"github.com/datadock/datadock/cmd/clean"
	configCmd "github.com/datadock/datadock/cmd/config"
	"github.com/datadock/datadock/cmd/login"
	scanCmd "github.com/datadock/datadock/cmd/scan"
	"github.com/datadock/datadock/cmd/setup"
	"github.com/datadock/datadock/cmd/ssh"
	"github.com/datadock/datadock/cmd/update"
	"github.com/datadock/datadock/cmd/upload"
	"github.com/datadock/datadock/cmd/util"
	versionCmd "github.com/datadock/datadock/cmd/version"
	"github.com/datadock/datadock/pkg/analytics"
	"github.com/datadock/datadock/pkg/config"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DATADOCK_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}
	log.AddHook(analytics.NewLogHook())

	rootCmd := &cobra.Command{
		Use:          "datadock",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors:    true,
		PersistentPreRun: setupAnalytics,
	}
	rootCmd.AddCommand(
		bugtool.New(),
		clean.New(),
		configCmd.New(),
		login.New(),
		scanCmd.New(),
		setup.New(),
		ssh.New(),
		update.New(),
		upload.New(),
		versionCmd.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func setupAnalytics(cmd *cobra.Command, _ []string) {
	analytics.SetSource(cmd.CalledAs())

	// The settings are optional here: commands that run before `login` just
	// send unenriched events.
	settingsPath, err := config.GetSettingsPath()
	if err != nil {
		log.WithError(err).Debug("Failed to resolve the settings path for analytics")
		return
	}

	settings, err := config.ReadSettings(settingsPath)
	if err != nil {
		log.WithError(err).Debug("Failed to load the settings for analytics")
		return
	}

	analytics.SetUploader(settings.UUID)
	analytics.SetInstrument(settings.Instrument.Name)
	analytics.SetFacility(settings.Instrument.Facility)
}
