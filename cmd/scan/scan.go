package scan

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/scan"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout

	parseSettings = config.ParseSettings
)

// New creates a new `scan` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the dataset folders an upload pass would process.",
		Long: "Run the discovery half of an upload pass: walk the data\n" +
			"directory, resolve folder owners against the server, and print\n" +
			"the dataset folders, without transferring anything.",
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
	if err != nil {
		return err
	}

	schema, err := scan.ParseSchema(settings.Data.Structure)
	if err != nil {
		return err
	}

	client := mytardis.New(settings.Server.URL, settings.Server.Username,
		settings.Server.APIKey, settings.ConnectionTimeout())
	scanner := scan.New(client, ScanConfig(settings, schema))

	pp := util.NewProgressPrinter(stdout,
		fmt.Sprintf("Scanning %s..", settings.Data.Directory))
	go pp.Run()
	folders, err := scanner.Scan(context.Background(), nil)
	pp.StopWithPrint(util.ClearProgress)
	if err != nil {
		return err
	}

	printFolders(stdout, folders)
	return nil
}

// ScanConfig maps the settings onto the configuration for one scan pass.
// The upload command builds its passes the same way.
func ScanConfig(settings config.Settings, schema scan.Schema) scan.Config {
	return scan.Config{
		Root:           settings.Data.Directory,
		Schema:         schema,
		InstrumentName: settings.Instrument.Name,
		GroupPrefix:    settings.Data.GroupPrefix,
		Filters: scan.Filters{
			User:       settings.Data.UserFilter,
			Experiment: settings.Data.ExperimentFilter,
			Dataset:    settings.Data.DatasetFilter,
		},
		Age: scan.AgeFilter{
			Enabled: settings.Data.IgnoreOldDatasets,
			Number:  settings.Data.IgnoreIntervalNumber,
			Unit:    settings.Data.IgnoreIntervalUnit,
		},
		ValidateStructure:        settings.Data.ValidateStructure,
		UploadInvalidUserFolders: settings.Data.UploadInvalidUserFolders,
	}
}

// printFolders writes one line per dataset folder, in discovery order.
func printFolders(w io.Writer, folders []scan.Folder) {
	if len(folders) == 0 {
		fmt.Fprintln(w, "No dataset folders found.")
		return
	}

	out := tabwriter.NewWriter(w, 0, 10, 5, ' ', 0)
	fmt.Fprintf(out, "FOLDER\tOWNER\tEXPERIMENT\tFILES\tSIZE\n")

	var files int
	var bytes int64
	for _, folder := range folders {
		fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%s\n",
			folder.Name, folder.Owner.Name, folder.Experiment,
			len(folder.Files), humanize.Bytes(uint64(folder.TotalBytes())))
		files += len(folder.Files)
		bytes += folder.TotalBytes()
	}
	out.Flush()

	fmt.Fprintf(w, "\n%d dataset folders, %d files, %s.\n",
		len(folders), files, humanize.Bytes(uint64(bytes)))
}
