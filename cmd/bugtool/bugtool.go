package bugtool

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/history"
	"github.com/datadock/datadock/pkg/logs"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/version"
)

// Mocked out for unit testing.
var (
	fs = afero.NewOsFs()

	parseSettings = config.ReadSettings
	homedirExpand = homedir.Expand
)

// New creates a new `bug-tool` command.
func New() *cobra.Command {
	var out string
	var configPath string
	cmd := &cobra.Command{
		Use:   "bug-tool",
		Short: "Generate an archive for datadock debugging",
		Run: func(_ *cobra.Command, _ []string) {
			path, err := util.ResolveSettingsPath(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "resolve settings path"))
			}
			main(out, path)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path for archive")
	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the datadock settings file")
	return cmd
}

func main(out, settingsPath string) {
	tmpdir, err := afero.TempDir(fs, "", "datadock-bug-tool")
	if err != nil {
		err = errors.NewFriendlyError("Failed to create out directory:\n%s", err)
		util.HandleFatalError(err)
	}

	// Wrap defer in a function to handle errors from fs.RemoveAll().
	defer func() {
		err := fs.RemoveAll(tmpdir)
		if err != nil {
			util.HandleFatalError(err)
		}
	}()

	setupInfo(tmpdir, settingsPath)

	if out == "" {
		out = fmt.Sprintf("datadock-bug-info-%s.tar.gz",
			time.Now().Format("Jan_02_2006-15-04-05"))
	}
	if err := tarDirectory(tmpdir, out); err != nil {
		err = errors.NewFriendlyError("Failed to tar:\n%s", err)
		util.HandleFatalError(err)
	}

	msg := `Created bug information archive at '%s'.
Please attach it when reporting a problem.
You may want to edit the archive if your settings contain sensitive information.
The archive contains:
 * The datadock settings with the API key redacted.
 * The datadock log file.
 * The upload history database.
 * The datadock version and platform.
 * The server URL and the registration state of this instance.
`
	fmt.Printf(msg, out)
}

// setupInfo collects each section on a best effort basis. A section that
// can't be collected is logged and skipped so the rest of the archive still
// helps.
func setupInfo(root, settingsPath string) {
	if err := setupSettings(root, settingsPath); err != nil {
		log.WithError(err).Warn("Failed to include the settings")
	}

	if err := setupLogFile(root, settingsPath); err != nil {
		log.WithError(err).Warn("Failed to include the log file")
	}

	if err := setupHistory(root); err != nil {
		log.WithError(err).Warn("Failed to include the upload history")
	}

	if err := setupVersions(root); err != nil {
		log.WithError(err).Warn("Failed to include version info")
	}

	if err := setupServerInfo(root, settingsPath); err != nil {
		log.WithError(err).Warn("Failed to include server info")
	}
}

func setupSettings(root, settingsPath string) error {
	settings, err := parseSettings(settingsPath)
	if err != nil {
		return errors.WithContext(err, "read settings")
	}

	if settings.Server.APIKey != "" {
		settings.Server.APIKey = "<redacted>"
	}

	yamlBytes, err := yaml.Marshal(settings)
	if err != nil {
		return errors.WithContext(err, "marshal settings")
	}
	return afero.WriteFile(fs, filepath.Join(root, "settings.yaml"), yamlBytes, 0644)
}

func setupLogFile(root, settingsPath string) error {
	logPath := filepath.Join(filepath.Dir(settingsPath), logs.FileName)
	return copyFile(logPath, filepath.Join(root, logs.FileName))
}

func setupHistory(root string) error {
	historyPath, err := homedirExpand(history.DefaultPath)
	if err != nil {
		return errors.WithContext(err, "expand history path")
	}
	return copyFile(historyPath, filepath.Join(root, "history.db"))
}

func setupVersions(root string) error {
	out, err := fs.Create(filepath.Join(root, "versions.txt"))
	if err != nil {
		return errors.WithContext(err, "create")
	}
	defer out.Close()

	fmt.Fprintf(out, "datadock version: %s\n", version.Version)
	fmt.Fprintf(out, "platform:         %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "go runtime:       %s\n", runtime.Version())
	return nil
}

func setupServerInfo(root, settingsPath string) error {
	settings, err := parseSettings(settingsPath)
	if err != nil {
		return errors.WithContext(err, "read settings")
	}
	if settings.Server.URL == "" {
		return errors.New("no server configured")
	}

	out, err := fs.Create(filepath.Join(root, "server.txt"))
	if err != nil {
		return errors.WithContext(err, "create")
	}
	defer out.Close()

	fmt.Fprintf(out, "server:   %s\n", settings.Server.URL)
	fmt.Fprintf(out, "uploader: %s\n", settings.UUID)

	client := mytardis.New(settings.Server.URL, settings.Server.Username,
		settings.Server.APIKey, settings.ConnectionTimeout())
	if _, err := client.GetUploader(context.Background(), settings.UUID); err != nil {
		fmt.Fprintf(out, "registration: %s\n", err)
	} else {
		fmt.Fprintln(out, "registration: registered")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer in.Close()

	out, err := fs.Create(dst)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

func tarDirectory(src, outPath string) error {
	out, err := fs.Create(outPath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tw := tar.NewWriter(gzw)
	defer tw.Close()

	return afero.Walk(fs, src, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("make header %s", file))
		}

		relPath, err := filepath.Rel(src, file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("get relative path of %s to %s", file, src))
		}

		header.Name = filepath.Join("datadock-bug-info", relPath)
		if err := tw.WriteHeader(header); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s header", file))
		}

		// Only write contents if it's a file (i.e. not a directory).
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(file)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("open %s", file))
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return errors.WithContext(err, fmt.Sprintf("copy %s", file))
		}
		return nil
	})
}
