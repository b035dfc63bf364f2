package mytardis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/datadock/datadock/pkg/errors"
)

type datasetList struct {
	Meta    listMeta  `json:"meta"`
	Objects []Dataset `json:"objects"`
}

// GetDataset returns the dataset with the given description within an
// experiment.
func (c *Client) GetDataset(ctx context.Context, experimentID int,
	description string) (Dataset, error) {

	params := url.Values{}
	params.Set("experiments__id", strconv.Itoa(experimentID))
	params.Set("description", description)

	var list datasetList
	err := c.getJSON(ctx, "get dataset", "/api/v1/dataset/", params, &list)
	if err != nil {
		return Dataset{}, err
	}

	if list.Meta.TotalCount == 0 {
		return Dataset{}, errors.NotFoundError{Kind: "dataset", Key: description}
	}
	return list.Objects[0], nil
}

// CreateDataset creates a dataset within the experiment, attributed to the
// given instrument.
func (c *Client) CreateDataset(ctx context.Context, experiment Experiment,
	instrument Instrument, description string) (Dataset, error) {

	request := struct {
		Description string   `json:"description"`
		Experiments []string `json:"experiments"`
		Immutable   bool     `json:"immutable"`
		Instrument  string   `json:"instrument,omitempty"`
	}{
		Description: description,
		Experiments: []string{experiment.ResourceURI},
		Instrument:  instrument.ResourceURI,
	}

	var created Dataset
	resp, err := c.sendJSON(ctx, "create dataset", http.MethodPost,
		"/api/v1/dataset/", request, &created)
	if err != nil {
		return Dataset{}, err
	}

	if created.ID == 0 {
		created.ID, err = idFromLocation(resp)
		if err != nil {
			return Dataset{}, errors.WithContext(err, "create dataset")
		}
	}
	if created.Description == "" {
		created.Description = description
	}
	if created.ResourceURI == "" {
		created.ResourceURI = fmt.Sprintf("/api/v1/dataset/%d/", created.ID)
	}
	return created, nil
}

// EnsureDataset returns the dataset with the given description in the
// experiment, creating it if it doesn't exist yet.
func (c *Client) EnsureDataset(ctx context.Context, experiment Experiment,
	instrument Instrument, description string) (Dataset, error) {

	dataset, err := c.GetDataset(ctx, experiment.ID, description)
	if err == nil {
		return dataset, nil
	}
	if !errors.IsNotFound(err) {
		return Dataset{}, err
	}
	return c.CreateDataset(ctx, experiment, instrument, description)
}
