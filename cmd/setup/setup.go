package setup

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/datadock/datadock/cmd/util"
	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/mytardis"
	"github.com/datadock/datadock/pkg/staging"
	"github.com/datadock/datadock/pkg/version"
)

// Mocked out for unit testing.
var (
	stdout io.Writer = os.Stdout

	parseSettings = config.ReadSettings
	writeSettings = config.WriteSettings
	ensureKeyPair = staging.EnsureKeyPair
	promptYesOrNo = util.PromptYesOrNo
	newUUID       = uuid.NewUUID
	hostname      = os.Hostname
)

// New creates a new `setup` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register this instrument PC with the MyTardis server.",
		Long: "Create the server-side uploader record for this machine and\n" +
			"request staged upload access. Until an administrator approves\n" +
			"the request, uploads go through the server API instead of the\n" +
			"staging host. Run `setup` again after approval to save the\n" +
			"staging details.",
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
	settings, err := loadSettings(path)
	if err != nil {
		return err
	}

	// The UUID is how the server tells uploader records apart, so it's
	// saved before anything else. Later runs must reuse it.
	if settings.UUID == "" {
		id, err := newUUID()
		if err != nil {
			return errors.WithContext(err, "generate uploader ID")
		}
		settings.UUID = id.String()
		if err := writeSettings(settings, path); err != nil {
			return errors.WithContext(err, "save uploader ID")
		}
		fmt.Fprintf(stdout, "Generated uploader ID %s.\n", settings.UUID)
	}

	ctx := context.Background()
	client := mytardis.New(settings.Server.URL, settings.Server.Username,
		settings.Server.APIKey, settings.ConnectionTimeout())

	uploader, err := register(ctx, client, settings)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Registered uploader %q with %s.\n", uploader.Name,
		settings.Server.URL)

	keyPath := settings.Staging.KeyPath
	if keyPath == "" {
		keyPath = staging.DefaultKeyPath
	}
	key, err := ensureKeyPair(keyPath)
	if err != nil {
		return errors.WithContext(err, "prepare staging key")
	}

	return requestStagingAccess(ctx, client, settings, path, uploader, key)
}

// loadSettings reads the settings leniently and then checks that the
// sections `setup` needs are filled in, pointing at the fix for each gap.
func loadSettings(path string) (config.Settings, error) {
	settings, err := parseSettings(path)
	if _, missing := errors.RootCause(err).(errors.FileNotFound); missing {
		return config.Settings{}, errors.NewFriendlyError("There is no "+
			"settings file at %q yet. Please run `datadock login` first.", path)
	} else if err != nil {
		return config.Settings{}, errors.WithContext(err, "read settings")
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, errors.NewFriendlyError("The settings at %s "+
			"are incomplete (%s). Please fill in the instrument and data "+
			"sections before running `datadock setup`.", path, err)
	}
	if settings.Instrument.Facility == "" {
		return config.Settings{}, errors.NewFriendlyError("instrument.facility "+
			"must be set in %s so the instrument can be filed under the "+
			"right facility.", path)
	}
	return settings, nil
}

// register ensures the facility and instrument records exist, then creates
// or updates the uploader record describing this machine.
func register(ctx context.Context, client *mytardis.Client,
	settings config.Settings) (mytardis.Uploader, error) {

	pp := util.NewProgressPrinter(stdout, fmt.Sprintf(
		"Registering instrument %q..", settings.Instrument.Name))
	go pp.Run()
	defer pp.StopWithPrint(util.ClearProgress)

	facility, err := client.GetFacilityByName(ctx, settings.Instrument.Facility)
	if errors.IsNotFound(err) {
		return mytardis.Uploader{}, errors.NewFriendlyError("The server has "+
			"no facility named %q. Facilities are created by the server "+
			"administrator; check the spelling under `instrument.facility`.",
			settings.Instrument.Facility)
	} else if err != nil {
		return mytardis.Uploader{}, err
	}

	instrument, err := client.EnsureInstrument(ctx, facility, settings.Instrument.Name)
	if err != nil {
		return mytardis.Uploader{}, err
	}

	params, err := uploaderParams(settings, instrument)
	if err != nil {
		return mytardis.Uploader{}, err
	}
	return client.RegisterUploader(ctx, params)
}

// uploaderParams describes this machine the way the server's uploader
// records expect.
func uploaderParams(settings config.Settings,
	instrument mytardis.Instrument) (mytardis.UploaderParams, error) {

	host, err := hostname()
	if err != nil {
		return mytardis.UploaderParams{}, errors.WithContext(err, "get hostname")
	}

	dataPath, err := homedir.Expand(settings.Data.Directory)
	if err != nil {
		return mytardis.UploaderParams{}, errors.WithContext(err, "expand data directory")
	}

	return mytardis.UploaderParams{
		UUID:             settings.UUID,
		Name:             host,
		ContactName:      settings.Instrument.ContactName,
		ContactEmail:     settings.Instrument.ContactEmail,
		UserAgentName:    version.UserAgentName,
		UserAgentVersion: version.Version,
		OsPlatform:       fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH),
		OsSystem:         runtime.GOOS,
		Machine:          runtime.GOARCH,
		Hostname:         host,
		DataPath:         dataPath,
		DefaultUser:      settings.Server.Username,
		Instruments:      []string{instrument.ResourceURI},
	}, nil
}

// requestStagingAccess drives the approval workflow. The first run creates
// the access request; later runs report the pending state or save the
// approved staging host into the settings.
func requestStagingAccess(ctx context.Context, client *mytardis.Client,
	settings config.Settings, path string, uploader mytardis.Uploader,
	key staging.KeyPair) error {

	request, err := client.GetRegistrationRequest(ctx, settings.UUID, key.Fingerprint)
	switch {
	case errors.IsNotFound(err):
		return createRequest(ctx, client, uploader, settings, key)
	case err != nil:
		return err
	case !request.Approved:
		fmt.Fprintln(stdout, "The staged upload request is still waiting for "+
			"an administrator to approve it. Run `datadock setup` again later.")
		return nil
	}

	if request.ApprovedStorageBox == nil {
		return errors.NewFriendlyError("The staged upload request was " +
			"approved but no storage box is assigned to it. Please ask the " +
			"server administrator to attach one.")
	}

	stagingConf, err := stagingSettings(*request.ApprovedStorageBox, key)
	if err != nil {
		return errors.WithContext(err, "read approved storage box")
	}

	settings.Staging = stagingConf
	if err := writeSettings(settings, path); err != nil {
		return errors.WithContext(err, "save staging settings")
	}

	fmt.Fprintf(stdout, "Approved. Uploads will be staged to %s@%s:%s.\n",
		stagingConf.Username, stagingConf.Host, stagingConf.Location)
	fmt.Fprintln(stdout, "Run `datadock ssh` to check the connection.")
	return nil
}

func createRequest(ctx context.Context, client *mytardis.Client,
	uploader mytardis.Uploader, settings config.Settings,
	key staging.KeyPair) error {

	shouldRequest, err := promptYesOrNo(
		"Request staged upload access for this machine?")
	if err != nil {
		return errors.WithContext(err, "prompt")
	}
	if !shouldRequest {
		fmt.Fprintln(stdout, "Aborting.")
		return nil
	}

	_, err = client.CreateRegistrationRequest(ctx, mytardis.RegistrationParams{
		Uploader:                uploader.ResourceURI,
		Name:                    uploader.Name,
		RequesterName:           settings.Instrument.ContactName,
		RequesterEmail:          settings.Instrument.ContactEmail,
		RequesterPublicKey:      key.PublicKey,
		RequesterKeyFingerprint: key.Fingerprint,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Access requested. An administrator now needs to "+
		"approve it and install the public key on the staging host; run "+
		"`datadock setup` again once that's done.")
	return nil
}

// stagingSettings maps an approved storage box onto the staging section of
// the settings file.
func stagingSettings(box mytardis.StorageBox, key staging.KeyPair) (config.Staging, error) {
	username, err := box.ScpUsername()
	if err != nil {
		return config.Staging{}, err
	}
	host, err := box.ScpHostname()
	if err != nil {
		return config.Staging{}, err
	}
	location, err := box.Location()
	if err != nil {
		return config.Staging{}, err
	}

	return config.Staging{
		Host:     host,
		Port:     box.ScpPort(),
		Username: username,
		KeyPath:  key.PrivateKeyPath,
		Location: location,
	}, nil
}
