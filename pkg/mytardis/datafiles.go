package mytardis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/datadock/datadock/pkg/errors"
)

type dataFileList struct {
	Meta    listMeta   `json:"meta"`
	Objects []DataFile `json:"objects"`
}

// DataFileParams is the JSON descriptor sent when registering a datafile,
// for both the staged and the direct upload paths.
type DataFileParams struct {
	Dataset          string `json:"dataset"`
	Filename         string `json:"filename"`
	Directory        string `json:"directory"`
	Md5Sum           string `json:"md5sum"`
	Sha512Sum        string `json:"sha512sum,omitempty"`
	Size             string `json:"size"`
	Mimetype         string `json:"mimetype"`
	CreatedTime      string `json:"created_time,omitempty"`
	ModificationTime string `json:"modification_time,omitempty"`

	// Set only on the staging path, so the server can pick the storage box
	// approved for this uploader.
	UploaderUUID            string `json:"uploader_uuid,omitempty"`
	RequesterKeyFingerprint string `json:"requester_key_fingerprint,omitempty"`
}

// StagingRecord is the server's answer to registering a staged upload: the
// new datafile record and where to copy the bytes, relative to the approved
// storage box location.
type StagingRecord struct {
	DataFileID int
	Path       string
}

// LookupDataFile finds the datafile record for filename in the given dataset
// and subdirectory. Returns a NotFoundError when the file has never been
// uploaded and an AmbiguousError when the server holds duplicate records.
func (c *Client) LookupDataFile(ctx context.Context, datasetID int,
	filename, directory string) (DataFile, error) {

	params := url.Values{}
	params.Set("dataset__id", strconv.Itoa(datasetID))
	params.Set("filename", filename)
	params.Set("directory", directory)

	var list dataFileList
	err := c.getJSON(ctx, "lookup datafile", "/api/v1/mydata_dataset_file/",
		params, &list)
	if err != nil {
		return DataFile{}, err
	}

	switch {
	case list.Meta.TotalCount == 0:
		return DataFile{}, errors.NotFoundError{Kind: "datafile", Key: filename}
	case list.Meta.TotalCount > 1:
		return DataFile{}, errors.AmbiguousError{
			Kind: "datafile", Key: filename, Count: list.Meta.TotalCount}
	}
	return list.Objects[0], nil
}

// CreateStagingRecord registers a datafile that will be copied to the staging
// area out-of-band. The response body carries the destination path and the
// Location header the record id.
func (c *Client) CreateStagingRecord(ctx context.Context,
	params DataFileParams) (StagingRecord, error) {

	const op = "create staging record"
	body, err := json.Marshal(params)
	if err != nil {
		return StagingRecord{}, errors.WithContext(err, op)
	}

	req, err := c.newRequest(ctx, http.MethodPost,
		"/api/v1/mydata_dataset_file/", nil, bytes.NewReader(body))
	if err != nil {
		return StagingRecord{}, errors.WithContext(err, op)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(op, req)
	if err != nil {
		return StagingRecord{}, err
	}
	defer resp.Body.Close()

	id, err := idFromLocation(resp)
	if err != nil {
		return StagingRecord{}, errors.WithContext(err, op)
	}

	destination, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return StagingRecord{}, errors.WithContext(err, op)
	}

	record := StagingRecord{
		DataFileID: id,
		Path:       strings.TrimSpace(string(destination)),
	}
	if record.Path == "" {
		return StagingRecord{}, errors.New(
			"staging response carried no destination path")
	}
	return record, nil
}

// UploadDirect registers a datafile and uploads its bytes in one multipart
// POST. The descriptor goes in a json_data part and the content streams as
// attached_file, so arbitrarily large files don't buffer in memory. Returns
// the new record's id.
func (c *Client) UploadDirect(ctx context.Context, params DataFileParams,
	content io.Reader) (int, error) {

	const op = "upload datafile"
	descriptor, err := json.Marshal(params)
	if err != nil {
		return 0, errors.WithContext(err, op)
	}

	bodyReader, bodyWriter := io.Pipe()
	writer := multipart.NewWriter(bodyWriter)
	go func() {
		err := writeUploadBody(writer, string(descriptor), params.Filename, content)
		writer.Close()
		bodyWriter.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/dataset_file/",
		nil, bodyReader)
	if err != nil {
		return 0, errors.WithContext(err, op)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(op, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	id, err := idFromLocation(resp)
	if err != nil {
		return 0, errors.WithContext(err, op)
	}
	return id, nil
}

func writeUploadBody(writer *multipart.Writer, descriptor, filename string,
	content io.Reader) error {

	if err := writer.WriteField("json_data", descriptor); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("attached_file", filename)
	if err != nil {
		return err
	}

	_, err = io.Copy(part, content)
	return err
}

// RequestVerification asks the server to verify the uploaded file's
// integrity. A nil return means the request was accepted; the verification
// itself runs asynchronously on the server and its outcome is not reported
// here.
func (c *Client) RequestVerification(ctx context.Context, dataFileID int) error {
	const op = "request verification"
	path := "/api/v1/dataset_file/" + strconv.Itoa(dataFileID) + "/verify/"

	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return errors.WithContext(err, op)
	}

	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
