package uploads

import (
	"context"
	"io"

	"github.com/datadock/datadock/pkg/mytardis"
)

//go:generate mockery -name Repository

// Repository is the slice of the repository server API the upload machinery
// drives. The mytardis client implements it.
type Repository interface {
	EnsureExperiment(ctx context.Context, query mytardis.ExperimentQuery,
		description string) (mytardis.Experiment, error)
	EnsureDataset(ctx context.Context, experiment mytardis.Experiment,
		instrument mytardis.Instrument, description string) (mytardis.Dataset, error)
	LookupDataFile(ctx context.Context, datasetID int,
		filename, directory string) (mytardis.DataFile, error)
	CreateStagingRecord(ctx context.Context,
		params mytardis.DataFileParams) (mytardis.StagingRecord, error)
	UploadDirect(ctx context.Context, params mytardis.DataFileParams,
		content io.Reader) (int, error)
	RequestVerification(ctx context.Context, dataFileID int) error
}
