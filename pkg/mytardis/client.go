// Package mytardis is a client for the subset of the MyTardis REST API that
// datadock uses: identity lookups, experiment and dataset provisioning,
// datafile records, and uploader registration.
package mytardis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/datadock/datadock/pkg/errors"
	"github.com/datadock/datadock/pkg/version"
)

// Client talks to one MyTardis server. All methods are safe for concurrent
// use.
type Client struct {
	baseURL  string
	username string
	apiKey   string
	http     *http.Client
}

// New creates a client for the server at baseURL, authenticating every
// request with the given API key.
func New(baseURL, username, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// listMeta is the paging envelope MyTardis wraps around every list response.
type listMeta struct {
	TotalCount int `json:"total_count"`
}

// apiError is a non-2xx response from the server.
type apiError struct {
	StatusCode int
	Status     string
	Body       string
}

func (err apiError) Error() string {
	return fmt.Sprintf("server returned %s: %s", err.Status, err.Body)
}

// IsStatus reports whether err was caused by a response with the given HTTP
// status code.
func IsStatus(err error, statusCode int) bool {
	transportErr, ok := errors.RootCause(err).(errors.TransportError)
	if !ok {
		return false
	}
	statusErr, ok := transportErr.Err.(apiError)
	return ok && statusErr.StatusCode == statusCode
}

func (c *Client) newRequest(ctx context.Context, method, path string,
	params url.Values, body io.Reader) (*http.Request, error) {

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("ApiKey %s:%s", c.username, c.apiKey))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgentName+"/"+version.Version)
	return req, nil
}

// do runs the request and enforces a 2xx response. The caller must close the
// response body.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, errors.NewTransportError(op, apiError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		})
	}
	return resp, nil
}

// getJSON runs a GET and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, op, path string,
	params url.Values, out interface{}) error {

	if params == nil {
		params = url.Values{}
	}
	params.Set("format", "json")

	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return errors.WithContext(err, op)
	}

	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WithContext(err, op)
	}
	return nil
}

// sendJSON runs a POST or PUT with a JSON body. If out is non-nil the
// response body is decoded into it. The response is returned so callers can
// read headers such as Location.
func (c *Client) sendJSON(ctx context.Context, op, method, path string,
	in, out interface{}) (*http.Response, error) {

	body, err := json.Marshal(in)
	if err != nil {
		return nil, errors.WithContext(err, op)
	}

	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithContext(err, op)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if out != nil {
		// Create responses often carry no body, just a Location header.
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return nil, errors.WithContext(err, op)
		}
	}
	return resp, nil
}

// idFromLocation extracts the numeric record id from a Location header of the
// form http://host/api/v1/<resource>/<id>/.
func idFromLocation(resp *http.Response) (int, error) {
	location := resp.Header.Get("Location")
	if location == "" {
		return 0, errors.New("response has no Location header")
	}

	parts := strings.Split(strings.TrimRight(location, "/"), "/")
	id, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("unparseable Location header %q", location)
	}
	return id, nil
}
