package mytardis

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/datadock/datadock/pkg/errors"
)

type facilityList struct {
	Meta    listMeta   `json:"meta"`
	Objects []Facility `json:"objects"`
}

type instrumentList struct {
	Meta    listMeta     `json:"meta"`
	Objects []Instrument `json:"objects"`
}

// ListFacilities returns the facilities the API user manages. An empty list
// usually means the account is missing its facility manager role.
func (c *Client) ListFacilities(ctx context.Context) ([]Facility, error) {
	var list facilityList
	err := c.getJSON(ctx, "list facilities", "/api/v1/facility/", nil, &list)
	if err != nil {
		return nil, err
	}
	return list.Objects, nil
}

// GetFacilityByName returns the managed facility with the given name.
func (c *Client) GetFacilityByName(ctx context.Context, name string) (Facility, error) {
	facilities, err := c.ListFacilities(ctx)
	if err != nil {
		return Facility{}, err
	}

	for _, facility := range facilities {
		if facility.Name == name {
			return facility, nil
		}
	}
	return Facility{}, errors.NotFoundError{Kind: "facility", Key: name}
}

// GetInstrument looks up an instrument by name within a facility.
func (c *Client) GetInstrument(ctx context.Context, facilityID int,
	name string) (Instrument, error) {

	params := url.Values{}
	params.Set("facility__id", strconv.Itoa(facilityID))
	params.Set("name", name)

	var list instrumentList
	err := c.getJSON(ctx, "get instrument", "/api/v1/instrument/", params, &list)
	if err != nil {
		return Instrument{}, err
	}

	if list.Meta.TotalCount == 0 {
		return Instrument{}, errors.NotFoundError{Kind: "instrument", Key: name}
	}
	return list.Objects[0], nil
}

// CreateInstrument registers a new instrument under the given facility.
func (c *Client) CreateInstrument(ctx context.Context, facility Facility,
	name string) (Instrument, error) {

	request := struct {
		Name     string `json:"name"`
		Facility string `json:"facility"`
	}{
		Name:     name,
		Facility: facility.ResourceURI,
	}

	var created Instrument
	resp, err := c.sendJSON(ctx, "create instrument", http.MethodPost,
		"/api/v1/instrument/", request, &created)
	if err != nil {
		return Instrument{}, err
	}

	if created.ID == 0 {
		created.ID, err = idFromLocation(resp)
		if err != nil {
			return Instrument{}, errors.WithContext(err, "create instrument")
		}
	}
	created.Name = name
	return created, nil
}

// EnsureInstrument returns the instrument with the given name in the
// facility, creating it if it doesn't exist yet.
func (c *Client) EnsureInstrument(ctx context.Context, facility Facility,
	name string) (Instrument, error) {

	instrument, err := c.GetInstrument(ctx, facility.ID, name)
	if err == nil {
		return instrument, nil
	}
	if !errors.IsNotFound(err) {
		return Instrument{}, err
	}
	return c.CreateInstrument(ctx, facility, name)
}
