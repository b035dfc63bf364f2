package mytardis

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/datadock/datadock/pkg/errors"
)

// Uploader is the server-side record of one datadock instance.
type Uploader struct {
	ID          int    `json:"id"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	ResourceURI string `json:"resource_uri"`
}

// UploaderParams describes this datadock instance when registering it.
type UploaderParams struct {
	UUID             string   `json:"uuid"`
	Name             string   `json:"name"`
	ContactName      string   `json:"contact_name"`
	ContactEmail     string   `json:"contact_email"`
	UserAgentName    string   `json:"user_agent_name"`
	UserAgentVersion string   `json:"user_agent_version"`
	OsPlatform       string   `json:"os_platform"`
	OsSystem         string   `json:"os_system"`
	OsRelease        string   `json:"os_release"`
	Machine          string   `json:"machine"`
	Hostname         string   `json:"hostname"`
	DataPath         string   `json:"data_path"`
	DefaultUser      string   `json:"default_user"`
	Instruments      []string `json:"instruments,omitempty"`
}

// RegistrationRequest is a request for staged-upload access, together with
// the approval state the server has recorded for it.
type RegistrationRequest struct {
	ID                 int         `json:"id"`
	Approved           bool        `json:"approved"`
	ApprovedStorageBox *StorageBox `json:"approved_storage_box"`
	ResourceURI        string      `json:"resource_uri"`
}

// RegistrationParams creates a staged-upload access request. The public key
// is installed on the staging host by an administrator during approval.
type RegistrationParams struct {
	Uploader                string `json:"uploader"`
	Name                    string `json:"name"`
	RequesterName           string `json:"requester_name"`
	RequesterEmail          string `json:"requester_email"`
	RequesterPublicKey      string `json:"requester_public_key"`
	RequesterKeyFingerprint string `json:"requester_key_fingerprint"`
}

type uploaderList struct {
	Meta    listMeta   `json:"meta"`
	Objects []Uploader `json:"objects"`
}

type registrationRequestList struct {
	Meta    listMeta              `json:"meta"`
	Objects []RegistrationRequest `json:"objects"`
}

// missingServerApp translates the 404 this endpoint returns when the server
// doesn't run the companion app that datadock talks to.
func missingServerApp(err error) error {
	if IsStatus(err, http.StatusNotFound) {
		return errors.NewFriendlyError("The MyTardis server doesn't have " +
			"the mydata app installed, so datadock can't register with it. " +
			"Please ask the server administrator to enable it.")
	}
	return err
}

// GetUploader finds the uploader record with this instance's UUID.
func (c *Client) GetUploader(ctx context.Context, uuid string) (Uploader, error) {
	params := url.Values{}
	params.Set("uuid", uuid)

	var list uploaderList
	err := c.getJSON(ctx, "get uploader", "/api/v1/mydata_uploader/", params, &list)
	if err != nil {
		return Uploader{}, missingServerApp(err)
	}

	if list.Meta.TotalCount == 0 {
		return Uploader{}, errors.NotFoundError{Kind: "uploader", Key: uuid}
	}
	return list.Objects[0], nil
}

// RegisterUploader creates or updates this instance's uploader record and
// returns it.
func (c *Client) RegisterUploader(ctx context.Context,
	params UploaderParams) (Uploader, error) {

	existing, err := c.GetUploader(ctx, params.UUID)
	switch {
	case err == nil:
		path := fmt.Sprintf("/api/v1/mydata_uploader/%d/", existing.ID)
		_, err = c.sendJSON(ctx, "update uploader", http.MethodPut, path, params, nil)
		if err != nil {
			return Uploader{}, err
		}
		existing.Name = params.Name
		return existing, nil

	case errors.IsNotFound(err):
		var created Uploader
		resp, err := c.sendJSON(ctx, "create uploader", http.MethodPost,
			"/api/v1/mydata_uploader/", params, &created)
		if err != nil {
			return Uploader{}, missingServerApp(err)
		}
		if created.ID == 0 {
			created.ID, err = idFromLocation(resp)
			if err != nil {
				return Uploader{}, errors.WithContext(err, "create uploader")
			}
		}
		if created.ResourceURI == "" {
			created.ResourceURI = fmt.Sprintf("/api/v1/mydata_uploader/%d/", created.ID)
		}
		created.UUID = params.UUID
		created.Name = params.Name
		return created, nil

	default:
		return Uploader{}, err
	}
}

// GetRegistrationRequest finds the staged-upload access request previously
// created for this uploader and key fingerprint.
func (c *Client) GetRegistrationRequest(ctx context.Context, uploaderUUID,
	fingerprint string) (RegistrationRequest, error) {

	params := url.Values{}
	params.Set("uploader__uuid", uploaderUUID)
	params.Set("requester_key_fingerprint", fingerprint)

	var list registrationRequestList
	err := c.getJSON(ctx, "get registration request",
		"/api/v1/mydata_uploaderregistrationrequest/", params, &list)
	if err != nil {
		return RegistrationRequest{}, missingServerApp(err)
	}

	if list.Meta.TotalCount == 0 {
		return RegistrationRequest{}, errors.NotFoundError{
			Kind: "registration request", Key: fingerprint}
	}
	return list.Objects[0], nil
}

// CreateRegistrationRequest asks the server for staged-upload access. The
// request starts unapproved; an administrator approves it and assigns a
// storage box out-of-band.
func (c *Client) CreateRegistrationRequest(ctx context.Context,
	params RegistrationParams) (RegistrationRequest, error) {

	var created RegistrationRequest
	_, err := c.sendJSON(ctx, "create registration request", http.MethodPost,
		"/api/v1/mydata_uploaderregistrationrequest/", params, &created)
	if err != nil {
		return RegistrationRequest{}, missingServerApp(err)
	}
	return created, nil
}
