package mytardis

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datadock/datadock/pkg/errors"
)

func TestLookupDataFile(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/mydata_dataset_file/", r.URL.Path)
			assert.Equal(t, "17", r.URL.Query().Get("dataset__id"))
			assert.Equal(t, "subdir", r.URL.Query().Get("directory"))
			switch r.URL.Query().Get("filename") {
			case "existing.tif":
				fmt.Fprint(w, `{
					"meta": {"total_count": 1},
					"objects": [{
						"id": 290385,
						"filename": "existing.tif",
						"directory": "subdir",
						"size": "1048576",
						"md5sum": "bogus",
						"replicas": [{"id": 444891, "uri": "Dataset1-17/subdir/existing.tif", "verified": true}]
					}]
				}`)
			case "duplicated.tif":
				fmt.Fprint(w, `{
					"meta": {"total_count": 2},
					"objects": [{"id": 1}, {"id": 2}]
				}`)
			default:
				fmt.Fprint(w, `{"meta": {"total_count": 0}, "objects": []}`)
			}
		}))
	defer server.Close()

	ctx := context.Background()

	dataFile, err := client.LookupDataFile(ctx, 17, "existing.tif", "subdir")
	assert.NoError(t, err)
	assert.Equal(t, 290385, dataFile.ID)
	assert.Equal(t, int64(1048576), dataFile.SizeBytes())
	assert.True(t, dataFile.Verified())

	_, err = client.LookupDataFile(ctx, 17, "missing.tif", "subdir")
	assert.Equal(t, errors.NotFoundError{Kind: "datafile", Key: "missing.tif"},
		errors.RootCause(err))

	_, err = client.LookupDataFile(ctx, 17, "duplicated.tif", "subdir")
	assert.Equal(t,
		errors.AmbiguousError{Kind: "datafile", Key: "duplicated.tif", Count: 2},
		errors.RootCause(err))
}

func TestDataFileSizeAndVerification(t *testing.T) {
	unverified := DataFile{
		Size:     "not-a-number",
		Replicas: []Replica{{Verified: false}},
	}
	assert.Equal(t, int64(-1), unverified.SizeBytes())
	assert.False(t, unverified.Verified())
	assert.False(t, DataFile{}.Verified())
}

func TestCreateStagingRecord(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/api/v1/mydata_dataset_file/", r.URL.Path)

			body, err := ioutil.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"filename":"big.raw"`)
			assert.Contains(t, string(body), `"uploader_uuid":"uuid-1"`)

			w.Header().Set("Location",
				"http://mytardis.example.edu/api/v1/mydata_dataset_file/290386/")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, "Dataset1-17/subdir/big.raw")
		}))
	defer server.Close()

	record, err := client.CreateStagingRecord(context.Background(), DataFileParams{
		Dataset:      "/api/v1/dataset/17/",
		Filename:     "big.raw",
		Directory:    "subdir",
		Md5Sum:       "d41d8cd98f00b204e9800998ecf8427e",
		Size:         "314572800",
		Mimetype:     "application/octet-stream",
		UploaderUUID: "uuid-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, StagingRecord{
		DataFileID: 290386,
		Path:       "Dataset1-17/subdir/big.raw",
	}, record)
}

func TestCreateStagingRecordNoDestination(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "/api/v1/mydata_dataset_file/1/")
			w.WriteHeader(http.StatusCreated)
		}))
	defer server.Close()

	_, err := client.CreateStagingRecord(context.Background(), DataFileParams{})
	assert.Error(t, err)
}

func TestUploadDirect(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/api/v1/dataset_file/", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))

			descriptor := r.FormValue("json_data")
			assert.Contains(t, descriptor, `"filename":"small.txt"`)

			file, header, err := r.FormFile("attached_file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "small.txt", header.Filename)

			content, err := ioutil.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(content))

			w.Header().Set("Location",
				"http://mytardis.example.edu/api/v1/dataset_file/290387/")
			w.WriteHeader(http.StatusCreated)
		}))
	defer server.Close()

	id, err := client.UploadDirect(context.Background(), DataFileParams{
		Dataset:   "/api/v1/dataset/17/",
		Filename:  "small.txt",
		Directory: "",
		Size:      "11",
	}, strings.NewReader("hello world"))
	assert.NoError(t, err)
	assert.Equal(t, 290387, id)
}

func TestRequestVerification(t *testing.T) {
	var gotPath string
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		}))
	defer server.Close()

	err := client.RequestVerification(context.Background(), 290385)
	assert.NoError(t, err)
	assert.Equal(t, "/api/v1/dataset_file/290385/verify/", gotPath)
}

func TestRequestVerificationRejected(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "verification backlog", http.StatusServiceUnavailable)
		}))
	defer server.Close()

	err := client.RequestVerification(context.Background(), 290385)
	assert.True(t, errors.IsTransport(err))
}
