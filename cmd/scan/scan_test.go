package scan

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datadock/datadock/pkg/config"
	"github.com/datadock/datadock/pkg/identity"
	"github.com/datadock/datadock/pkg/scan"
)

func TestPrintFolders(t *testing.T) {
	folders := []scan.Folder{
		{
			ID:         1,
			Name:       "Dataset 001",
			Owner:      identity.Owner{Name: "Jordan Smith"},
			Experiment: "Test Microscope - Jordan Smith",
			Files: []scan.File{
				{Name: "frame001.tif", Size: 2048},
				{Name: "frame002.tif", Size: 1024},
			},
		},
		{
			ID:         2,
			Name:       "Dataset 002",
			Owner:      identity.Owner{Name: "Casey Wu"},
			Experiment: "Test Microscope - Casey Wu",
			Files: []scan.File{
				{Name: "calibration.csv", Size: 512},
			},
		},
	}

	var output bytes.Buffer
	printFolders(&output, folders)

	assert.Contains(t, output.String(), "Dataset 001")
	assert.Contains(t, output.String(), "Jordan Smith")
	assert.Contains(t, output.String(), "Test Microscope - Casey Wu")
	assert.Contains(t, output.String(), "2 dataset folders, 3 files, 3.6 kB.")
}

func TestPrintFoldersEmpty(t *testing.T) {
	var output bytes.Buffer
	printFolders(&output, nil)
	assert.Equal(t, "No dataset folders found.\n", output.String())
}

func TestScanConfig(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Instrument.Name = "Test Microscope"
	settings.Data.Directory = "/data/instrument"
	settings.Data.Structure = "Username / Dataset"
	settings.Data.UserFilter = "smith"
	settings.Data.IgnoreOldDatasets = true
	settings.Data.IgnoreIntervalNumber = 2
	settings.Data.IgnoreIntervalUnit = "weeks"

	cfg := ScanConfig(settings, scan.SchemaUserDataset)
	assert.Equal(t, "/data/instrument", cfg.Root)
	assert.Equal(t, scan.SchemaUserDataset, cfg.Schema)
	assert.Equal(t, "Test Microscope", cfg.InstrumentName)
	assert.Equal(t, "smith", cfg.Filters.User)
	assert.True(t, cfg.Age.Enabled)

	threshold, err := cfg.Age.Threshold()
	assert.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, threshold)
}
