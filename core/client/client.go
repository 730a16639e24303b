// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast access to the profile API

The client either talks directly to the mux router, without marshalling HTTP, or to a
running service at a URL. The in-process variant is perfectly suited for unit tests.

All API responses share the envelope {"code","msg","data"}. The client unwraps it:
data is decoded into the result, a code other than 200 is returned as *Error.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router     http.Handler
	httpClient *http.Client
	url        string
	token      string
	ctx        context.Context

	defaultHeaders map[string]string
}

// Error is an error response of the API
type Error struct {
	Status int
	Code   int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Msg)
}

// envelope is the response envelope with undecoded data
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithToken() adds a bearer token to every request.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithHandler creates a client for any handler, for example a router wrapped into
// middlewares
func NewWithHandler(handler http.Handler) Client {
	return Client{
		router:         handler,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithToken returns a new client which sends token as bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Raw sends a request and returns the status code, the response header and the raw
// body. The path can be extended with query strings. body can be nil, []byte or
// anything which encodes as JSON.
func (c Client) Raw(method, path string, header map[string]string, body interface{}) (int, http.Header, []byte, error) {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		j, err := json.Marshal(b)
		if err != nil {
			return http.StatusBadRequest, nil, nil, fmt.Errorf("%s to %s: %w", method, path, err)
		}
		reader = bytes.NewReader(j)
		contentType = "application/json"
	}

	if reader == nil {
		// handlers may read the body of any request, as with a real server
		reader = http.NoBody
	}
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	for key, value := range c.defaultHeaders {
		r.Header.Set(key, value)
	}
	for key, value := range header {
		r.Header.Set(key, value)
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	return res.StatusCode, res.Header, resBody, err
}

// Do sends a request, unwraps the envelope of the response and decodes its data
// into result. result can be nil. Returns the actual http status code.
func (c Client) Do(method, path string, header map[string]string, body interface{}, result interface{}) (int, error) {
	status, _, resBody, err := c.Raw(method, path, header, body)
	if err != nil {
		return status, err
	}
	var e envelope
	if err := json.Unmarshal(resBody, &e); err != nil {
		return status, fmt.Errorf("%s %s: status %d, cannot decode envelope: %w", method, path, status, err)
	}
	if status != http.StatusOK || e.Code != http.StatusOK {
		return status, &Error{Status: status, Code: e.Code, Msg: e.Msg}
	}
	if result != nil && len(e.Data) > 0 && string(e.Data) != "null" {
		if err := json.Unmarshal(e.Data, result); err != nil {
			return status, fmt.Errorf("%s %s: cannot decode data: %w", method, path, err)
		}
	}
	return status, nil
}

// Get gets the resource from path
func (c Client) Get(path string, result interface{}) (int, error) {
	return c.Do(http.MethodGet, path, nil, nil, result)
}

// Post posts body to path
func (c Client) Post(path string, body interface{}, result interface{}) (int, error) {
	return c.Do(http.MethodPost, path, nil, body, result)
}

// Put puts body to path
func (c Client) Put(path string, body interface{}, result interface{}) (int, error) {
	return c.Do(http.MethodPut, path, nil, body, result)
}

// Delete deletes the resource at path
func (c Client) Delete(path string, result interface{}) (int, error) {
	return c.Do(http.MethodDelete, path, nil, nil, result)
}

// PostMultipart uploads data as form file field with the given file name
func (c Client) PostMultipart(path, field, filename string, data []byte, result interface{}) (int, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		return 0, err
	}
	if _, err = fw.Write(data); err != nil {
		return 0, err
	}
	if err = w.Close(); err != nil {
		return 0, err
	}
	return c.Do(http.MethodPost, path, map[string]string{"Content-Type": w.FormDataContentType()}, b.Bytes(), result)
}
