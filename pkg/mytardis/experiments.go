package mytardis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/datadock/datadock/pkg/errors"
)

type experimentList struct {
	Meta    listMeta     `json:"meta"`
	Objects []Experiment `json:"objects"`
}

// ExperimentQuery identifies the experiment a scanned folder belongs to.
// Experiments are scoped to the uploader instance so two instruments scanning
// identically-named folders never share one.
type ExperimentQuery struct {
	Title           string
	UploaderUUID    string
	UserFolderName  string
	GroupFolderName string
}

func (q ExperimentQuery) params() url.Values {
	params := url.Values{}
	params.Set("title", q.Title)
	params.Set("uploader", q.UploaderUUID)
	if q.UserFolderName != "" {
		params.Set("user_folder_name", q.UserFolderName)
	}
	if q.GroupFolderName != "" {
		params.Set("group_folder_name", q.GroupFolderName)
	}
	return params
}

// GetExperiment returns the experiment matching the query.
func (c *Client) GetExperiment(ctx context.Context, query ExperimentQuery) (Experiment, error) {
	var list experimentList
	err := c.getJSON(ctx, "get experiment", "/api/v1/mydata_experiment/",
		query.params(), &list)
	if err != nil {
		return Experiment{}, err
	}

	if list.Meta.TotalCount == 0 {
		return Experiment{}, errors.NotFoundError{Kind: "experiment", Key: query.Title}
	}
	return list.Objects[0], nil
}

// CreateExperiment creates a new experiment for the query.
func (c *Client) CreateExperiment(ctx context.Context, query ExperimentQuery,
	description string) (Experiment, error) {

	request := struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		Immutable       bool   `json:"immutable"`
		Uploader        string `json:"uploader"`
		UserFolderName  string `json:"user_folder_name,omitempty"`
		GroupFolderName string `json:"group_folder_name,omitempty"`
	}{
		Title:           query.Title,
		Description:     description,
		Uploader:        query.UploaderUUID,
		UserFolderName:  query.UserFolderName,
		GroupFolderName: query.GroupFolderName,
	}

	var created Experiment
	resp, err := c.sendJSON(ctx, "create experiment", http.MethodPost,
		"/api/v1/mydata_experiment/", request, &created)
	if err != nil {
		return Experiment{}, err
	}

	if created.ID == 0 {
		created.ID, err = idFromLocation(resp)
		if err != nil {
			return Experiment{}, errors.WithContext(err, "create experiment")
		}
	}
	if created.Title == "" {
		created.Title = query.Title
	}
	if created.ResourceURI == "" {
		created.ResourceURI = fmt.Sprintf("/api/v1/experiment/%d/", created.ID)
	}
	return created, nil
}

// EnsureExperiment returns the experiment for the query, creating it if it
// doesn't exist yet.
func (c *Client) EnsureExperiment(ctx context.Context, query ExperimentQuery,
	description string) (Experiment, error) {

	experiment, err := c.GetExperiment(ctx, query)
	if err == nil {
		return experiment, nil
	}
	if !errors.IsNotFound(err) {
		return Experiment{}, err
	}
	return c.CreateExperiment(ctx, query, description)
}
