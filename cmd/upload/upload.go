package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	scanCmd "github.com/datadock/datadock/cmd/scan"
	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/analytics"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/events"
	"github.com/datadock/datadock/pkg/fswatch"
	"github.com/datadock/datadock/pkg/history"
	"github.com/datadock/datadock/pkg/logs"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/scan"
	"github.com/datadock/datadock/pkg/staging"
	"github.com/datadock/datadock/pkg/uploads"
)

// watchQuietPeriod is how long the data directory has to stay quiet after a
// change before the next pass starts, so a file that's still being written
// isn't picked up mid-copy.
const watchQuietPeriod = 5 * time.Second

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout

	parseSettings = config.ParseSettings
	findKeyPair   = staging.FindKeyPair
	dial          = func(config staging.SSHConfig) (staging.Transport, error) {
		return staging.Dial(config)
	}
)

type uploadCmd struct {
	settings config.Settings
	watch    bool

	client    *mytardis.Client
	scanner   *scan.Scanner
	transport staging.Transport
	config    uploads.Config
	watcher   *fswatch.Watcher
	gui       uploadGUI

	mu     sync.Mutex
	totals events.PassSummary
}

// chanWriter provides an io.Writer interface for writing to a channel.
type chanWriter chan []byte

func (w chanWriter) Write(p []byte) (int, error) {
	cpy := make([]byte, len(p))
	copy(cpy, p)
	w <- cpy
	return len(p), nil
}

// New creates a new `upload` command.
func New() *cobra.Command {
	var configPath string
	var disableGUI bool
	var watch bool
	var submitLogs bool
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Scan the data directory and upload every dataset folder.",
		Long: "Run a full pass: walk the data directory, resolve folder\n" +
			"owners against the server, and transfer every file the server\n" +
			"doesn't already have. Interrupted transfers resume from where\n" +
			"they stopped.",
		Run: func(_ *cobra.Command, _ []string) {
			path, err := util.ResolveSettingsPath(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "resolve settings path"))
			}

			if err := run(path, watch, disableGUI, submitLogs); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "",
		"Path to the datadock settings file")
	cmd.Flags().BoolVar(&disableGUI, "no-gui", false,
		"Run without the terminal status display")
	cmd.Flags().BoolVar(&watch, "watch", false,
		"Keep running, and start a new pass whenever the data directory changes")
	cmd.Flags().BoolVar(&submitLogs, "submit-logs", false,
		"Submit the session log to the datadock team when the run ends")
	return cmd
}

func run(settingsPath string, watch, disableGUI, submitLogs bool) error {
	settings, err := parseSettings(settingsPath)
	if err != nil {
		return err
	}

	schema, err := scan.ParseSchema(settings.Data.Structure)
	if err != nil {
		return err
	}

	logFile, err := openLogFile(settingsPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	uc := &uploadCmd{settings: settings, watch: watch}
	if disableGUI {
		uc.gui = newNoOutputGUI()
	} else {
		uc.gui = newUploadGUI(settings)
	}
	logger := uc.gui.GetLogger()

	var capture *logs.Capture
	if submitLogs {
		capture = logs.Install(logs.DefaultCapacity)

		// The GUI logger is separate from the process-wide logger, so it
		// needs its own hook to be captured.
		if logger != logrus.StandardLogger() {
			logger.AddHook(capture)
		}
	}

	client := mytardis.New(settings.Server.URL, settings.Server.Username,
		settings.Server.APIKey, settings.ConnectionTimeout())
	uc.client = client
	uc.scanner = scan.New(client, scanCmd.ScanConfig(settings, schema))

	pp := util.NewProgressPrinter(stdout, "Preparing the upload pass..")
	go pp.Run()
	instrument, err := ensureInstrument(client, settings)
	if err != nil {
		pp.StopWithPrint(util.ClearProgress)
		return err
	}
	transport, fingerprint := connectStaging(settings, logger)
	pp.StopWithPrint(util.ClearProgress)

	if transport != nil {
		defer transport.Close()
	}
	uc.transport = transport
	uc.config = uploadConfig(settings, instrument, fingerprint)

	if watch {
		watcher, err := fswatch.Watch(settings.Data.Directory)
		if err != nil {
			return errors.WithContext(err, "watch data directory")
		}
		defer watcher.Close()
		uc.watcher = watcher
	}

	closeHistory := attachHistory()
	defer closeHistory()

	if err := uc.run(); err != nil {
		return err
	}

	if capture != nil {
		submitCapture(capture)
	}
	return nil
}

// openLogFile routes the process-wide logger to a file next to the settings,
// because the status view owns the terminal while the passes run.
func openLogFile(settingsPath string) (*os.File, error) {
	logrus.SetFormatter(&logrus.TextFormatter{
		// Show the full timestamp rather than the time elapsed since the
		// process started. This makes correlating entries with the server's
		// logs easier.
		FullTimestamp: true,

		// Disable colors since we'll be logging to a file.
		DisableColors: true,
	})

	logPath := filepath.Join(filepath.Dir(settingsPath), logs.FileName)
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.WithContext(err, "open log file")
	}
	logrus.SetOutput(logFile)
	return logFile, nil
}

// ensureInstrument resolves the configured facility and instrument, creating
// the instrument on first contact.
func ensureInstrument(client *mytardis.Client, settings config.Settings) (
	mytardis.Instrument, error) {

	if settings.Instrument.Facility == "" {
		return mytardis.Instrument{}, errors.NewFriendlyError(
			"instrument.facility is not set. Run `datadock setup` to register " +
				"this instance before uploading.")
	}

	ctx := context.Background()
	facility, err := client.GetFacilityByName(ctx, settings.Instrument.Facility)
	if err != nil {
		if errors.IsNotFound(err) {
			return mytardis.Instrument{}, errors.NewFriendlyError(
				"The server has no facility named %q. Check `instrument.facility` "+
					"in the settings.", settings.Instrument.Facility)
		}
		return mytardis.Instrument{}, err
	}

	instrument, err := client.EnsureInstrument(ctx, facility, settings.Instrument.Name)
	if err != nil {
		return mytardis.Instrument{}, errors.WithContext(err, "ensure instrument")
	}
	return instrument, nil
}

// connectStaging dials the approved staging host. Any failure downgrades the
// pass to direct uploads rather than stopping it.
func connectStaging(settings config.Settings,
	logger *logrus.Logger) (staging.Transport, string) {

	if settings.Staging.Host == "" {
		return nil, ""
	}

	keyPath := settings.Staging.KeyPath
	if keyPath == "" {
		keyPath = staging.DefaultKeyPath
	}
	pair, err := findKeyPair(keyPath)
	if err != nil {
		logger.WithError(err).Warn("Failed to load the staging key. " +
			"Uploading directly instead.")
		return nil, ""
	}

	transport, err := dial(staging.SSHConfig{
		Host:     settings.Staging.Host,
		Port:     settings.Staging.Port,
		Username: settings.Staging.Username,
		KeyPath:  keyPath,
		Timeout:  settings.ConnectionTimeout(),
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to the staging host. " +
			"Uploading directly instead.")
		return nil, ""
	}
	return transport, pair.Fingerprint
}

// uploadConfig maps the settings onto the configuration for the pass workers.
func uploadConfig(settings config.Settings, instrument mytardis.Instrument,
	fingerprint string) uploads.Config {

	return uploads.Config{
		MaxUploadWorkers:       settings.Advanced.MaxUploadWorkers,
		MaxVerificationWorkers: settings.Advanced.MaxVerificationWorkers,
		MaxRetries:             settings.Advanced.MaxUploadRetries,
		LargeFileSize:          settings.Advanced.LargeFileSize,
		DefaultChunkSize:       settings.Advanced.DefaultChunkSize,
		MaxChunkSize:           settings.Advanced.MaxChunkSize,
		VerificationDelay:      settings.VerificationDelay(),
		FakeMd5Sum:             settings.Advanced.FakeMd5Sum,
		UploaderUUID:           settings.UUID,
		KeyFingerprint:         fingerprint,
		Instrument:             instrument,
		StagingLocation:        settings.Staging.Location,
	}
}

// attachHistory subscribes the pass recorder. History is best effort: a
// broken database logs a warning and the uploads proceed without it.
func attachHistory() func() {
	store, err := history.Open(history.DefaultPath)
	if err != nil {
		logrus.WithError(err).Warn("Failed to open the upload history. " +
			"This run won't be recorded.")
		return func() {}
	}

	recorder := history.NewRecorder(store)
	if err := recorder.Subscribe(); err != nil {
		logrus.WithError(err).Warn("Failed to subscribe the history recorder")
	}
	return func() {
		recorder.Unsubscribe()
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close the upload history")
		}
	}
}

func (uc *uploadCmd) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer util.HandlePanic()
		defer close(done)
		uc.runPasses(ctx)
		uc.gui.Stop()
	}()

	err := uc.gui.Run()

	// The GUI is gone. Stop the pass loop; in-flight transfers stop at their
	// next chunk boundary and stay resumable.
	cancel()
	<-done

	uc.printTotals(stdout)
	return err
}

func (uc *uploadCmd) runPasses(ctx context.Context) {
	logger := uc.gui.GetLogger()
	for {
		summary, err := uc.runPass(ctx)
		switch {
		case errors.IsCanceled(err):
			return
		case err != nil:
			logger.WithError(err).Error("Upload pass failed")
		default:
			uc.addTotals(summary)
		}

		if !uc.watch {
			return
		}

		logger.Info("Watching for changes. Press Ctrl-C to stop.")
		if !uc.watcher.WaitIdle(ctx, watchQuietPeriod) {
			return
		}
	}
}

func (uc *uploadCmd) runPass(ctx context.Context) (events.PassSummary, error) {
	logger := uc.gui.GetLogger()

	logger.Infof("Scanning %s.", uc.settings.Data.Directory)
	folders, err := uc.scanner.Scan(ctx, nil)
	if err != nil {
		return events.PassSummary{}, err
	}
	if len(folders) == 0 {
		logger.Info("No dataset folders to upload.")
		return events.PassSummary{}, nil
	}

	coordinator := uploads.New(uc.client, uc.transport, uc.config)
	summary := coordinator.Run(ctx, folders)
	logger.Infof("Pass complete: %d files sent, %d already verified, %d failed.",
		summary.Uploaded, summary.Verified, summary.Failed)

	analytics.Log.WithField("event", logrus.Fields{
		"uploaded":  summary.Uploaded,
		"verified":  summary.Verified,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"canceled":  summary.Canceled,
	}).Info("Upload pass complete")
	return summary, nil
}

func (uc *uploadCmd) addTotals(summary events.PassSummary) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.totals.Uploaded += summary.Uploaded
	uc.totals.Verified += summary.Verified
	uc.totals.Completed += summary.Completed
	uc.totals.Failed += summary.Failed
	uc.totals.Canceled += summary.Canceled
}

func (uc *uploadCmd) printTotals(out io.Writer) {
	uc.mu.Lock()
	totals := uc.totals
	uc.mu.Unlock()

	fmt.Fprintf(out, "%s sent, %d already verified, %d completed, "+
		"%d failed, %d canceled.\n",
		english.Plural(totals.Uploaded, "file", ""),
		totals.Verified, totals.Completed, totals.Failed, totals.Canceled)
}

func submitCapture(capture *logs.Capture) {
	pp := util.NewProgressPrinter(stdout, "Submitting the session log..")
	go pp.Run()
	err := capture.Submit(logs.DropURL)
	pp.StopWithPrint(util.ClearProgress)

	if err != nil {
		fmt.Fprintf(stdout, "Failed to submit the session log: %s\n", err)
		return
	}
	fmt.Fprintln(stdout, "Session log submitted.")
}
