/*
Package supabase provides a thin HTTP client for the Supabase gateway.

The client knows the project URL and the API key and sends both with every request.
It does not know anything about tables or buckets, that is the job of the data and
storage drivers. Non-2xx responses are turned into *errs.BackendError, so callers can
tell a failure reported by Supabase from a transport failure.
*/
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/profilegate/core/errs"
)

// Service base paths below the project URL
const (
	RestPath    = "/rest/v1"
	StoragePath = "/storage/v1"
	AuthPath    = "/auth/v1"
)

// DefaultTimeout is the request timeout used when none is configured
const DefaultTimeout = 20 * time.Second

// Client is a client for one Supabase project
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient makes the client use httpClient for all requests
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout of the default http client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a new client for the project at projectURL. Both projectURL and apiKey are
// mandatory.
func New(projectURL, apiKey string, options ...Option) (*Client, error) {
	if projectURL == "" || apiKey == "" {
		return nil, fmt.Errorf("project URL and API key must not be empty")
	}
	u, err := url.Parse(strings.TrimSuffix(projectURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("cannot parse project URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("project URL must be http or https, got '%s'", u.Scheme)
	}
	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// URL returns the absolute URL for path below the project URL. The path is used as is,
// segments must already be escaped. rawQuery must be encoded, too.
func (c *Client) URL(path string, rawQuery string) string {
	u := *c.baseURL
	escaped := c.baseURL.EscapedPath() + path
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path = unescaped
		u.RawPath = escaped
	} else {
		u.Path = escaped
		u.RawPath = ""
	}
	u.RawQuery = rawQuery
	return u.String()
}

// NewRequest creates a request for path below the project URL with the API key headers
// set. The query must already be encoded, the order of its parameters is kept. A non-nil body of type []byte or io.Reader is sent as is, everything else is
// encoded as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path, rawQuery string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case io.Reader:
		reader = b
	default:
		j, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("cannot encode request body: %w", err)
		}
		reader = bytes.NewReader(j)
		contentType = "application/json"
	}

	r, err := http.NewRequestWithContext(ctx, method, c.URL(path, rawQuery), reader)
	if err != nil {
		return nil, err
	}
	r.Header.Set("apikey", c.apiKey)
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r, nil
}

// Do executes the request and returns the response body. Responses with a status code
// outside 2xx are returned as *errs.BackendError.
func (c *Client) Do(r *http.Request) ([]byte, http.Header, error) {
	res, err := c.httpClient.Do(r)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.Header, fmt.Errorf("cannot read response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, res.Header, backendError(res.StatusCode, body)
	}
	return body, res.Header, nil
}

// DoJSON executes the request and decodes a JSON response into result. result may be nil.
func (c *Client) DoJSON(r *http.Request, result interface{}) error {
	body, _, err := c.Do(r)
	if err != nil {
		return err
	}
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("cannot decode response: %w", err)
	}
	return nil
}

// backendError maps the different error bodies of the Supabase services onto one type:
// PostgREST uses code/message/details/hint, storage uses statusCode/error/message and
// auth uses error/error_description or code/msg.
func backendError(status int, body []byte) *errs.BackendError {
	be := &errs.BackendError{Status: status}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		be.Message = strings.TrimSpace(string(body))
		if be.Message == "" {
			be.Message = http.StatusText(status)
		}
		return be
	}
	be.Code = firstString(raw, "code", "error_code", "error")
	be.Message = firstString(raw, "message", "msg", "error_description", "error")
	be.Details = firstString(raw, "details")
	be.Hint = firstString(raw, "hint")
	if be.Message == "" {
		be.Message = http.StatusText(status)
	}
	return be
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// EscapePath escapes every segment of a slash separated object path
func EscapePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
