package mytardis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadock/datadock/pkg/errors"
)

func TestGetUploaderMissingServerApp(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
	defer server.Close()

	_, err := client.GetUploader(context.Background(), "uuid-1")
	require.Error(t, err)

	friendly, ok := err.(errors.Friendly)
	require.True(t, ok)
	assert.Contains(t, friendly.FriendlyMessage(), "mydata app")
}

func TestRegisterUploaderCreates(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				fmt.Fprint(w, `{"meta": {"total_count": 0}, "objects": []}`)
			case http.MethodPost:
				var params UploaderParams
				require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
				assert.Equal(t, "uuid-1", params.UUID)
				assert.Equal(t, "Test Microscope", params.Name)

				w.Header().Set("Location", "/api/v1/mydata_uploader/7/")
				w.WriteHeader(http.StatusCreated)
			default:
				t.Errorf("unexpected method %s", r.Method)
			}
		}))
	defer server.Close()

	uploader, err := client.RegisterUploader(context.Background(), UploaderParams{
		UUID: "uuid-1",
		Name: "Test Microscope",
	})
	assert.NoError(t, err)
	assert.Equal(t, Uploader{
		ID:          7,
		UUID:        "uuid-1",
		Name:        "Test Microscope",
		ResourceURI: "/api/v1/mydata_uploader/7/",
	}, uploader)
}

func TestRegisterUploaderUpdates(t *testing.T) {
	var putPath string
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				fmt.Fprint(w, `{
					"meta": {"total_count": 1},
					"objects": [{
						"id": 7,
						"uuid": "uuid-1",
						"name": "Old Name",
						"resource_uri": "/api/v1/mydata_uploader/7/"
					}]
				}`)
			case http.MethodPut:
				putPath = r.URL.Path
				w.WriteHeader(http.StatusNoContent)
			default:
				t.Errorf("unexpected method %s", r.Method)
			}
		}))
	defer server.Close()

	uploader, err := client.RegisterUploader(context.Background(), UploaderParams{
		UUID: "uuid-1",
		Name: "New Name",
	})
	assert.NoError(t, err)
	assert.Equal(t, "/api/v1/mydata_uploader/7/", putPath)
	assert.Equal(t, 7, uploader.ID)
	assert.Equal(t, "New Name", uploader.Name)
}

func TestRegistrationRequestFlow(t *testing.T) {
	created := false
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/mydata_uploaderregistrationrequest/", r.URL.Path)
			switch r.Method {
			case http.MethodGet:
				assert.Equal(t, "uuid-1", r.URL.Query().Get("uploader__uuid"))
				assert.Equal(t, "aa:bb:cc", r.URL.Query().Get("requester_key_fingerprint"))
				if !created {
					fmt.Fprint(w, `{"meta": {"total_count": 0}, "objects": []}`)
					return
				}
				fmt.Fprint(w, `{
					"meta": {"total_count": 1},
					"objects": [{
						"id": 25,
						"approved": true,
						"approved_storage_box": {
							"id": 10,
							"name": "staging",
							"attributes": [
								{"key": "scp_username", "value": "mydata"},
								{"key": "scp_hostname", "value": "staging.example.edu"}
							],
							"options": [
								{"key": "location", "value": "/var/staging"}
							]
						}
					}]
				}`)
			case http.MethodPost:
				var params RegistrationParams
				require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
				assert.Equal(t, "/api/v1/mydata_uploader/7/", params.Uploader)
				assert.Equal(t, "ssh-rsa AAAA...", params.RequesterPublicKey)
				created = true

				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, `{"id": 25, "approved": false, "approved_storage_box": null}`)
			}
		}))
	defer server.Close()

	ctx := context.Background()

	_, err := client.GetRegistrationRequest(ctx, "uuid-1", "aa:bb:cc")
	assert.True(t, errors.IsNotFound(err))

	request, err := client.CreateRegistrationRequest(ctx, RegistrationParams{
		Uploader:                "/api/v1/mydata_uploader/7/",
		Name:                    "Test Microscope",
		RequesterPublicKey:      "ssh-rsa AAAA...",
		RequesterKeyFingerprint: "aa:bb:cc",
	})
	assert.NoError(t, err)
	assert.False(t, request.Approved)

	request, err = client.GetRegistrationRequest(ctx, "uuid-1", "aa:bb:cc")
	assert.NoError(t, err)
	require.True(t, request.Approved)
	require.NotNil(t, request.ApprovedStorageBox)

	box := *request.ApprovedStorageBox
	username, err := box.ScpUsername()
	assert.NoError(t, err)
	assert.Equal(t, "mydata", username)

	hostname, err := box.ScpHostname()
	assert.NoError(t, err)
	assert.Equal(t, "staging.example.edu", hostname)
	assert.Equal(t, "22", box.ScpPort())

	location, err := box.Location()
	assert.NoError(t, err)
	assert.Equal(t, "/var/staging", location)
}

func TestStorageBoxMissingAttributes(t *testing.T) {
	box := StorageBox{Name: "incomplete"}
	_, err := box.ScpUsername()
	assert.Error(t, err)
	_, err = box.ScpHostname()
	assert.Error(t, err)
	_, err = box.Location()
	assert.Error(t, err)
	assert.Equal(t, "22", box.ScpPort())
}
