package update

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/update"
	"github.com/datadock/datadock/pkg/version"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout

	latestRelease = func(settingsPath string) (update.Release, error) {
		return update.NewChecker(settingsPath).LatestRelease()
	}
	download      = update.Download
	promptYesOrNo = util.PromptYesOrNo
	executable    = os.Executable
)

// New creates a new `update` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download a newer datadock release.",
		Long: "Check the release feed for a newer datadock build, download\n" +
			"it into the current directory, and print the command that\n" +
			"installs it over the running binary.",
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
	pp := util.NewProgressPrinter(stdout,
		"Checking for updates to the datadock CLI..")
	go pp.Run()
	release, err := latestRelease(settingsPath)
	pp.StopWithPrint(util.ClearProgress)
	if err != nil {
		return errors.WithContext(err, "check release feed")
	}

	fmt.Fprintf(stdout, "Your datadock CLI is at version: %s\n", version.Version)
	fmt.Fprintf(stdout, "The newest release is: %s\n\n", release.TagName)

	if !release.NewerThan(version.Version) {
		fmt.Fprintln(stdout, "datadock is up to date.")
		return nil
	}

	if notes := release.Notes(); notes != "" {
		fmt.Fprintln(stdout, notes)
		fmt.Fprintln(stdout)
	}

	shouldInstall, err := promptYesOrNo(fmt.Sprintf(
		"Would you like to download release %s?", release.TagName))
	if err != nil {
		return errors.WithContext(err, "prompt")
	}
	if !shouldInstall {
		fmt.Fprintln(stdout, "Update aborted.")
		return nil
	}

	pp = util.NewProgressPrinter(stdout, fmt.Sprintf(
		"Downloading datadock release: %s", release.TagName))
	go pp.Run()
	downloaded, err := download(release, ".")
	pp.Stop()
	if err != nil {
		return errors.WithContext(err, "download release")
	}
	fmt.Fprintln(stdout, "Release successfully downloaded.")
	fmt.Fprintln(stdout)

	installedPath, writableByUser, err := getInstalledPath()
	if err != nil {
		return errors.WithContext(err, "get installed path")
	}

	command := fmt.Sprintf("cp %s %s", downloaded, installedPath)
	if !writableByUser {
		command = "sudo " + command
	}

	fmt.Fprintf(stdout, "Please execute the following command in your shell "+
		"to install it:\n\n\t %s \n\n", command)
	return nil
}

func getInstalledPath() (string, bool, error) {
	path, err := executable()
	if err != nil {
		return "", false, errors.WithContext(err, "get executable path")
	}

	// Resolve path with symlinks
	path, err = resolveLinks(path)
	if err != nil {
		return "", false, errors.WithContext(err, "resolve links")
	}

	isWritable, err := checkWritable(path)
	if err != nil {
		return "", false, errors.WithContext(err, "check permissions")
	}

	return path, isWritable, nil
}

// resolveLinks takes a path and resolves symlinks up to a depth of 5.
func resolveLinks(path string) (string, error) {
	maxDepth := 5

	for i := 0; i < maxDepth; i++ {
		info, err := os.Lstat(path)
		if err != nil {
			return "", errors.WithContext(err, "get lstat")
		}

		if info.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}

		path, err = os.Readlink(path)
		if err != nil {
			return "", errors.WithContext(err, "follow link")
		}
	}

	return "", errors.New("maximum symlink traversal depth exceeded")
}

// checkWritable returns true if the user has write permissions to the file.
// This is Unix-only due to syscall dependency.
func checkWritable(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	uid := os.Getuid()
	uGids, err := os.Getgroups()
	if err != nil {
		return false, err
	}
	fStat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, errors.New("couldn't get stat_t")
	}
	mode := fi.Mode()

	writable := isWritable(mode, fStat, uid, uGids)
	return writable, nil
}

func isWritable(fMode os.FileMode, fStat *syscall.Stat_t, uid int, uGids []int) bool {
	// Check if user owns the file (uids are equal) and has write permission
	// The permissions check is done by bit-shifting a `1` to the correct
	// position in `rwxrwxrwx` and performing an AND.
	if fStat.Uid == uint32(uid) {
		return fMode&(1<<7) != 0
	}

	// Check if group has write permissions and user is in group.
	fileGID := fStat.Gid
	for _, gid := range uGids {
		if uint32(gid) == fileGID {
			return fMode&(1<<4) != 0
		}
	}

	// Check if all others have write permissions.
	return fMode&(1<<1) != 0
}
