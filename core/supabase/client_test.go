package supabase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/profilegate/core/errs"
)

func TestNew_RequiresURLAndKey(t *testing.T) {
	_, err := New("", "key")
	assert.Error(t, err)
	_, err = New("https://x.supabase.co", "")
	assert.Error(t, err)
	_, err = New("ftp://x.supabase.co", "key")
	assert.Error(t, err)

	c, err := New("https://x.supabase.co/", "key")
	require.NoError(t, err)
	assert.Equal(t, "https://x.supabase.co/rest/v1/users?id=eq.1", c.URL(RestPath+"/users", "id=eq.1"))
	assert.Equal(t, "https://x.supabase.co/storage/v1/object/b/a%20b.png",
		c.URL(StoragePath+"/object/b/"+EscapePath("a b.png"), ""))
}

func TestClient_HeadersAndBackendError(t *testing.T) {
	var gotKey, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"PGRST100","message":"failed to parse filter","details":"unexpected","hint":null}`)
	}))
	defer ts.Close()

	c, err := New(ts.URL, "secret-key")
	require.NoError(t, err)

	r, err := c.NewRequest(context.Background(), http.MethodGet, RestPath+"/users", "", nil)
	require.NoError(t, err)
	_, _, err = c.Do(r)

	var be *errs.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Equal(t, "PGRST100", be.Code)
	assert.Equal(t, "failed to parse filter", be.Message)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestBackendError_StorageAndAuthBodies(t *testing.T) {
	be := backendError(404, []byte(`{"statusCode":"404","error":"not_found","message":"Object not found"}`))
	assert.Equal(t, "not_found", be.Code)
	assert.Equal(t, "Object not found", be.Message)

	be = backendError(400, []byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	assert.Equal(t, "invalid_grant", be.Code)
	assert.Equal(t, "Invalid login credentials", be.Message)

	be = backendError(502, []byte(`bad gateway`))
	assert.Equal(t, "bad gateway", be.Message)

	be = backendError(500, nil)
	assert.Equal(t, http.StatusText(500), be.Message)
}

func TestAuth_SignInRefreshSignOut(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		switch r.URL.Path {
		case "/auth/v1/token":
			io.WriteString(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"bearer"}`)
		case "/auth/v1/logout":
			assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	c, err := New(ts.URL, "key")
	require.NoError(t, err)

	session, err := c.SignInWithPassword(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)

	session, err = c.RefreshSession(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "rt", session.RefreshToken)

	require.NoError(t, c.SignOut(context.Background(), "user-token"))

	assert.Equal(t, []string{
		"POST /auth/v1/token?grant_type=password",
		"POST /auth/v1/token?grant_type=refresh_token",
		"POST /auth/v1/logout?",
	}, paths)
}
