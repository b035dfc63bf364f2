package clean

import (
	"fmt"
	"io"
	"os"

	humanize "github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/history"
	"github.com/datadock/datadock/pkg/update"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout
	fs               = afero.NewOsFs()

	promptYesOrNo = util.PromptYesOrNo
)

// New creates a new `clean` command.
func New() *cobra.Command {
	var configPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clear the upload history and cached state.",
		Long: "Remove the recorded upload passes from the history database\n" +
			"and drop the cached release feed response. Files already on the\n" +
			"server are not touched; the next pass re-checks them there.",
		Run: func(_ *cobra.Command, _ []string) {
			path, err := util.ResolveSettingsPath(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "resolve settings path"))
			}

			if err := run(path, history.DefaultPath, force); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the datadock settings file")
	cmd.Flags().BoolVar(&force, "force", false, "Don't prompt before clearing")
	return cmd
}

func run(settingsPath, historyPath string, force bool) error {
	store, err := history.Open(historyPath)
	if err != nil {
		return errors.WithContext(err, "open history")
	}
	defer store.Close()

	passes, uploadedBytes, err := store.Totals()
	if err != nil {
		return errors.WithContext(err, "read history totals")
	}

	if passes == 0 {
		fmt.Fprintln(stdout, "The upload history is already empty.")
		return removeReleaseCache(settingsPath)
	}

	fmt.Fprintf(stdout, "The history holds %s covering %s of uploads.\n",
		english.Plural(int(passes), "pass", "passes"),
		humanize.Bytes(uint64(uploadedBytes)))
	if !force {
		shouldClear, err := promptYesOrNo("Clear it?")
		if err != nil {
			return errors.WithContext(err, "prompt")
		}
		if !shouldClear {
			fmt.Fprintln(stdout, "Aborting.")
			return nil
		}
	}

	removed, err := store.Clear()
	if err != nil {
		return errors.WithContext(err, "clear history")
	}
	fmt.Fprintf(stdout, "Cleared %s.\n",
		english.Plural(int(removed), "file record", ""))

	return removeReleaseCache(settingsPath)
}

// removeReleaseCache drops the cached release feed response so the next
// update check queries the feed again.
func removeReleaseCache(settingsPath string) error {
	err := fs.Remove(update.CachePath(settingsPath))
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.WithContext(err, "remove release cache")
	}

	fmt.Fprintln(stdout, "Removed the cached release feed response.")
	return nil
}
