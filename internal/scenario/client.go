package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Recorder receives the classified outcome of each scripted request.
//
// The metrics engine satisfies this interface.
type Recorder interface {
	RecordRequest(name string, duration time.Duration, success bool, bytes int64, reason string)
}

// Client issues named HTTP requests against the target API and records
// their outcomes.
//
// GET requests are classified automatically: any status below 400 counts
// as success, anything else fails with its status code. POST requests
// return an unrecorded Response so the caller can apply flow-specific
// classification via OK, Fail or Done.
type Client struct {
	base string
	http *http.Client
	rec  Recorder
}

// NewClient creates a client for the given base URL.
func NewClient(httpClient *http.Client, baseURL string, rec Recorder) *Client {
	return &Client{
		base: baseURL,
		http: httpClient,
		rec:  rec,
	}
}

// Get performs a named GET request and records its outcome.
//
// Transport errors are recorded as failures with the error text and
// returned so callers can detect cancellation.
func (c *Client) Get(ctx context.Context, name, path string) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.rec.RecordRequest(name, time.Since(start), false, 0, err.Error())
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	duration := time.Since(start)

	if resp.StatusCode < 400 {
		c.rec.RecordRequest(name, duration, true, int64(len(body)), "")
	} else {
		c.rec.RecordRequest(name, duration, false, int64(len(body)), fmt.Sprintf("Status code: %d", resp.StatusCode))
	}

	return nil
}

// Post performs a named POST request with a JSON body.
//
// On transport errors the failure is recorded and the error returned.
// Otherwise the returned Response is NOT yet recorded: the caller must
// classify it with OK, Fail or Done exactly once.
func (c *Client) Post(ctx context.Context, name, path string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.rec.RecordRequest(name, time.Since(start), false, 0, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	return &Response{
		Name:       name,
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Duration:   time.Since(start),
		rec:        c.rec,
	}, nil
}

// Response is a received response awaiting classification.
type Response struct {
	Name       string
	StatusCode int
	Body       []byte
	Duration   time.Duration

	rec      Recorder
	recorded bool
}

// OK records the response as a success.
func (r *Response) OK() {
	r.record(true, "")
}

// Fail records the response as a failure with the given reason.
func (r *Response) Fail(reason string) {
	r.record(false, reason)
}

// Done applies the default classification: status below 400 is a
// success, anything else fails with its status code.
func (r *Response) Done() {
	if r.StatusCode < 400 {
		r.OK()
	} else {
		r.Fail(fmt.Sprintf("Status code: %d", r.StatusCode))
	}
}

// record sends the outcome to the recorder. At most one classification
// is recorded per response; later calls are ignored.
func (r *Response) record(success bool, reason string) {
	if r.recorded {
		return
	}
	r.recorded = true
	r.rec.RecordRequest(r.Name, r.Duration, success, int64(len(r.Body)), reason)
}

// ValidJSON reports whether the response body is well-formed JSON.
func (r *Response) ValidJSON() bool {
	return gjson.ValidBytes(r.Body)
}

// Field extracts a JSON field from the response body.
func (r *Response) Field(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}
