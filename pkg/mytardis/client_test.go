package mytardis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadock/datadock/pkg/errors"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := New(server.URL, "instrument-pc", "secret-key", 5*time.Second)
	return client, server
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth, gotAccept string
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotAccept = r.Header.Get("Accept")
			fmt.Fprint(w, `{"meta": {"total_count": 0}, "objects": []}`)
		}))
	defer server.Close()

	_, err := client.GetUserByUsername(context.Background(), "alice")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "ApiKey instrument-pc:secret-key", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestErrorStatusMapping(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no such endpoint", http.StatusNotFound)
		}))
	defer server.Close()

	_, err := client.GetUserByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusUnauthorized))
	assert.False(t, errors.IsNotFound(err))
}

func TestIsStatusIgnoresOtherErrors(t *testing.T) {
	assert.False(t, IsStatus(errors.New("plain"), http.StatusNotFound))
	assert.False(t, IsStatus(
		errors.NotFoundError{Kind: "user", Key: "alice"}, http.StatusNotFound))
}

func TestIDFromLocation(t *testing.T) {
	tests := []struct {
		location string
		expID    int
		expError bool
	}{
		{location: "http://mytardis.example.edu/api/v1/dataset_file/290385/", expID: 290385},
		{location: "/api/v1/mydata_uploader/7/", expID: 7},
		{location: "", expError: true},
		{location: "http://mytardis.example.edu/api/v1/dataset_file/", expError: true},
	}

	for _, test := range tests {
		resp := &http.Response{Header: http.Header{}}
		if test.location != "" {
			resp.Header.Set("Location", test.location)
		}
		id, err := idFromLocation(resp)
		if test.expError {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
			assert.Equal(t, test.expID, id)
		}
	}
}
