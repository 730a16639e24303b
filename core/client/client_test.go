package client

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/profilegate/core"
)

func testRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		core.WriteResponse(w, core.Success(map[string]string{
			"authorization": r.Header.Get("Authorization"),
			"content_type":  r.Header.Get("Content-Type"),
			"x_test":        r.Header.Get("X-Test"),
			"body":          string(body),
		}))
	})
	router.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		core.WriteResponse(w, core.Failure(http.StatusNotFound, "profile not found"))
	})
	return router
}

func TestClient_Router(t *testing.T) {
	c := NewWithRouter(testRouter()).WithToken("abc").WithHeader("X-Test", "yes")

	var result map[string]string
	status, err := c.Post("/echo", map[string]string{"name": "jane"}, &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bearer abc", result["authorization"])
	assert.Equal(t, "application/json", result["content_type"])
	assert.Equal(t, "yes", result["x_test"])
	assert.JSONEq(t, `{"name":"jane"}`, result["body"])

	status, err = c.Get("/fail", nil)
	assert.Equal(t, http.StatusNotFound, status)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "profile not found", apiErr.Msg)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestClient_WithHeaderDoesNotLeak(t *testing.T) {
	base := NewWithRouter(testRouter())
	_ = base.WithHeader("X-Test", "yes")

	var result map[string]string
	_, err := base.Get("/echo", &result)
	require.NoError(t, err)
	assert.Empty(t, result["x_test"])
}

func TestClient_RequestWithoutBody(t *testing.T) {
	c := NewWithRouter(testRouter())

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		var result map[string]string
		status, err := c.Do(method, "/echo", nil, nil, &result)
		require.NoError(t, err, method)
		assert.Equal(t, http.StatusOK, status, method)
		assert.Empty(t, result["body"], method)
	}
}

func TestClient_URL(t *testing.T) {
	server := httptest.NewServer(testRouter())
	defer server.Close()

	c := NewWithURL(server.URL).WithToken("abc")
	var result map[string]string
	status, err := c.PostMultipart("/echo", "file", "a.png", []byte("png"), &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bearer abc", result["authorization"])
	assert.Contains(t, result["content_type"], "multipart/form-data; boundary=")
	assert.Contains(t, result["body"], `filename="a.png"`)
}
