package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/datadock/datadock/pkg/errors"
)

const (
	// SettingsPath is the default path to the datadock settings file.
	SettingsPath = "~/.datadock.yaml"

	// InitialSettingsVersion is the version assumed for settings files that
	// don't specify one.
	InitialSettingsVersion = "v1alpha1"

	// SupportedSettingsVersion is the settings version supported by the
	// current datadock binary.
	SupportedSettingsVersion = "v1alpha1"
)

// Default transfer tuning. These match the server-side expectations for
// staged uploads and only need overriding for unusual deployments.
const (
	DefaultLargeFileSize          = 10 * 1024 * 1024
	DefaultChunkSize              = 1024 * 1024
	DefaultMaxChunkSize           = 256 * 1024 * 1024
	DefaultMaxUploadWorkers       = 5
	DefaultMaxVerificationWorkers = 5
	DefaultMaxUploadRetries       = 1
	DefaultVerificationDelaySecs  = 3
	DefaultConnectionTimeoutSecs  = 30
)

// Settings is the top-level datadock configuration.
type Settings struct {
	Version    string     `json:"version,omitempty"`
	Server     Server     `json:"server"`
	Instrument Instrument `json:"instrument"`
	Data       Data       `json:"data"`
	Advanced   Advanced   `json:"advanced,omitempty"`
	Staging    Staging    `json:"staging,omitempty"`

	// UUID identifies this datadock instance in uploader records on the
	// server. It's generated during `datadock setup` and must not change
	// afterwards.
	UUID string `json:"uuid,omitempty"`
}

func (s Settings) getVersion() string {
	return s.Version
}

// Server identifies the repository server and the account used for API calls.
type Server struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	APIKey   string `json:"apiKey"`
}

// Instrument describes the instrument PC this datadock instance runs on.
type Instrument struct {
	Name         string `json:"name"`
	Facility     string `json:"facility,omitempty"`
	ContactName  string `json:"contactName,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

// Data configures the local directory hierarchy to scan.
type Data struct {
	Directory string `json:"directory"`

	// Structure selects the folder schema, e.g. "Username / Dataset" or
	// "User Group / Instrument / Full Name / Dataset".
	Structure string `json:"structure"`

	// ValidateStructure makes datasets whose hierarchy doesn't match the
	// schema a hard error rather than a logged warning.
	ValidateStructure bool `json:"validateStructure"`

	// UploadInvalidUserFolders keeps scanning folders whose owner can't be
	// matched to a server account, attributing them to a placeholder owner.
	UploadInvalidUserFolders bool `json:"uploadInvalidUserFolders"`

	GroupPrefix      string `json:"groupPrefix,omitempty"`
	UserFilter       string `json:"userFilter,omitempty"`
	ExperimentFilter string `json:"experimentFilter,omitempty"`
	DatasetFilter    string `json:"datasetFilter,omitempty"`

	IgnoreOldDatasets    bool   `json:"ignoreOldDatasets,omitempty"`
	IgnoreIntervalNumber int    `json:"ignoreIntervalNumber,omitempty"`
	IgnoreIntervalUnit   string `json:"ignoreIntervalUnit,omitempty"`
}

// Advanced tunes worker pools and the transfer protocol.
type Advanced struct {
	MaxUploadWorkers         int   `json:"maxUploadWorkers,omitempty"`
	MaxVerificationWorkers   int   `json:"maxVerificationWorkers,omitempty"`
	MaxUploadRetries         int   `json:"maxUploadRetries,omitempty"`
	LargeFileSize            int64 `json:"largeFileSize,omitempty"`
	DefaultChunkSize         int64 `json:"defaultChunkSize,omitempty"`
	MaxChunkSize             int64 `json:"maxChunkSize,omitempty"`
	VerificationDelaySeconds int   `json:"verificationDelaySeconds,omitempty"`
	ConnectionTimeoutSeconds int   `json:"connectionTimeoutSeconds,omitempty"`

	// FakeMd5Sum skips checksum computation and sends a placeholder instead.
	// Only useful for benchmarking transfers of large files.
	FakeMd5Sum bool `json:"fakeMd5Sum,omitempty"`
}

// Staging holds the approved staging host details. Normally filled in by
// `datadock setup` from the server's approval response, but it can be set by
// hand for deployments without the registration workflow.
type Staging struct {
	Host     string `json:"host,omitempty"`
	Port     string `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	KeyPath  string `json:"keyPath,omitempty"`
	Location string `json:"location,omitempty"`
}

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

// DefaultSettings returns a Settings with every tunable at its default.
func DefaultSettings() Settings {
	return Settings{
		Version: InitialSettingsVersion,
		Data: Data{
			ValidateStructure:        true,
			UploadInvalidUserFolders: true,
			IgnoreIntervalNumber:     6,
			IgnoreIntervalUnit:       "months",
		},
		Advanced: Advanced{
			MaxUploadWorkers:         DefaultMaxUploadWorkers,
			MaxVerificationWorkers:   DefaultMaxVerificationWorkers,
			MaxUploadRetries:         DefaultMaxUploadRetries,
			LargeFileSize:            DefaultLargeFileSize,
			DefaultChunkSize:         DefaultChunkSize,
			MaxChunkSize:             DefaultMaxChunkSize,
			VerificationDelaySeconds: DefaultVerificationDelaySecs,
			ConnectionTimeoutSeconds: DefaultConnectionTimeoutSecs,
		},
		Staging: Staging{
			Port: "22",
		},
	}
}

// ReadSettings loads the settings file at path without validating it.
// Commands that build the file up a section at a time read it this way; a
// missing file surfaces as errors.FileNotFound so they can start from the
// defaults instead.
func ReadSettings(path string) (Settings, error) {
	config := DefaultSettings()
	if err := parseConfig(path, &config, SupportedSettingsVersion); err != nil {
		return Settings{}, err
	}
	return config, nil
}

// ParseSettings reads and validates the settings file at path. An empty path
// means the default location.
func ParseSettings(path string) (Settings, error) {
	var err error
	if path == "" {
		path, err = GetSettingsPath()
		if err != nil {
			return Settings{}, errors.WithContext(err, "expand settings path")
		}
	}

	config, err := ReadSettings(path)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Settings{}, errors.NewFriendlyError("The datadock settings "+
				"file doesn't exist at %q. Please run `datadock login` to "+
				"create it.", path)
		}
		return Settings{}, errors.WithContext(err, "parse")
	}

	config.Data.Directory, err = homedirExpand(config.Data.Directory)
	if err != nil {
		return Settings{}, errors.WithContext(err, "expand data directory")
	}

	if err := config.Validate(); err != nil {
		return Settings{}, err
	}
	return config, nil
}

// WriteSettings writes the given settings to path, or the default location if
// path is empty.
func WriteSettings(cfg Settings, path string) error {
	var err error
	if path == "" {
		path, err = GetSettingsPath()
		if err != nil {
			return errors.WithContext(err, "expand settings path")
		}
	}

	cfg.Version = SupportedSettingsVersion
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetSettingsPath returns the expanded default settings path.
func GetSettingsPath() (string, error) {
	return homedirExpand(SettingsPath)
}

// Validate checks the required fields and numeric sanity of the settings.
func (s Settings) Validate() error {
	required := []struct {
		value, field string
	}{
		{s.Server.URL, "server.url"},
		{s.Server.Username, "server.username"},
		{s.Server.APIKey, "server.apiKey"},
		{s.Instrument.Name, "instrument.name"},
		{s.Data.Directory, "data.directory"},
		{s.Data.Structure, "data.structure"},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			return errors.MissingFieldError{Field: req.field}
		}
	}

	adv := s.Advanced
	if adv.DefaultChunkSize <= 0 {
		return errors.New("advanced.defaultChunkSize must be positive")
	}
	if adv.MaxChunkSize < adv.DefaultChunkSize {
		return fmt.Errorf("advanced.maxChunkSize (%d) must be at least "+
			"advanced.defaultChunkSize (%d)", adv.MaxChunkSize, adv.DefaultChunkSize)
	}
	if adv.MaxUploadWorkers < 1 || adv.MaxVerificationWorkers < 1 {
		return errors.New("worker pool sizes must be at least 1")
	}
	if adv.MaxUploadRetries < 0 {
		return errors.New("advanced.maxUploadRetries must not be negative")
	}

	if s.Data.IgnoreOldDatasets && s.Data.IgnoreIntervalNumber <= 0 {
		return errors.New("data.ignoreIntervalNumber must be positive when " +
			"ignoring old datasets")
	}
	return nil
}

// VerificationDelay returns the delay between a successful upload and the
// verification request.
func (s Settings) VerificationDelay() time.Duration {
	return time.Duration(s.Advanced.VerificationDelaySeconds) * time.Second
}

// ConnectionTimeout returns the per-call timeout for remote operations.
func (s Settings) ConnectionTimeout() time.Duration {
	return time.Duration(s.Advanced.ConnectionTimeoutSeconds) * time.Second
}
