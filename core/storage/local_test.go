package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/profilegate/core/errs"
)

func newLocal(t *testing.T) (*Service, *LocalFilesystem, *mux.Router) {
	router := mux.NewRouter()
	u, err := url.Parse("https://files.example.com/base")
	require.NoError(t, err)
	f, err := NewLocalFilesystem(router, t.TempDir(), *u, []string{"avatars"}, nil)
	require.NoError(t, err)
	return New(f, nil), f, router
}

func get(router *mux.Router, rawURL string) *httptest.ResponseRecorder {
	u, _ := url.Parse(rawURL)
	r := httptest.NewRequest(http.MethodGet, strings.TrimPrefix(u.RequestURI(), "/base"), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestLocal_UploadDownloadListDelete(t *testing.T) {
	s, _, _ := newLocal(t)
	ctx := context.Background()

	_, err := s.Upload(ctx, "avatars", "users/b.png", []byte("bbb"), "image/png")
	require.NoError(t, err)
	_, err = s.Upload(ctx, "avatars", "users/a.png", []byte("a"), "image/png")
	require.NoError(t, err)
	_, err = s.Upload(ctx, "avatars", "users/old/c.png", []byte("c"), "image/png")
	require.NoError(t, err)

	data, err := s.Download(ctx, "avatars", "users/b.png")
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(data))

	files, err := s.List(ctx, "avatars", "users", ListOptions{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.png", files[0].Name)
	assert.Equal(t, int64(1), files[0].Metadata["size"])
	assert.Equal(t, "image/png", files[0].Metadata["mimetype"])
	assert.Equal(t, "old", files[2].Name)
	assert.Nil(t, files[2].Metadata)

	files, err = s.List(ctx, "avatars", "users", ListOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.png", files[0].Name)

	files, err = s.List(ctx, "avatars", "nothing/here", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, files)

	ok, err := s.Delete(ctx, "avatars", "users/b.png")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "avatars", "users/b.png")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Download(ctx, "avatars", "users/b.png")
	assert.True(t, errors.Is(err, errs.ErrStorageAccess))
}

func TestLocal_RejectsTraversal(t *testing.T) {
	s, _, _ := newLocal(t)
	ctx := context.Background()

	_, err := s.Upload(ctx, "avatars", "../../etc/passwd", []byte("x"), "")
	assert.True(t, errors.Is(err, errs.ErrStorageAccess))
	_, err = s.Download(ctx, "..", "passwd")
	assert.True(t, errors.Is(err, errs.ErrStorageAccess))
	_, err = s.PublicURL("a/b", "c")
	assert.True(t, errors.Is(err, errs.ErrStorageAccess))
}

func TestLocal_PublicURL(t *testing.T) {
	s, _, router := newLocal(t)
	_, err := s.Upload(context.Background(), "avatars", "users/u1 me.txt", []byte("hello"), "text/plain")
	require.NoError(t, err)

	u, err := s.PublicURL("avatars", "users/u1 me.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/base/storage/local/public/avatars/users/u1%20me.txt", u)

	w := get(router, u)
	assert.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, "hello", string(body))

	w = get(router, "https://files.example.com/base/storage/local/public/avatars/missing.txt")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLocal_PrivateBucketNotPublic(t *testing.T) {
	s, _, router := newLocal(t)
	ctx := context.Background()
	_, err := s.Upload(ctx, "private-docs", "u1/secret.txt", []byte("top secret"), "text/plain")
	require.NoError(t, err)

	_, err = s.PublicURL("private-docs", "u1/secret.txt")
	assert.True(t, errors.Is(err, errs.ErrStorageAccess))

	w := get(router, "https://files.example.com/base/storage/local/public/private-docs/u1/secret.txt")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "top secret")

	// the owner can still hand out a signed URL
	signed, err := s.SignedURL(ctx, "private-docs", "u1/secret.txt", time.Minute)
	require.NoError(t, err)
	w = get(router, signed)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "top secret", w.Body.String())
}

func TestLocal_SignedURL(t *testing.T) {
	s, f, router := newLocal(t)
	ctx := context.Background()
	_, err := s.Upload(ctx, "private", "doc.txt", []byte("secret"), "text/plain")
	require.NoError(t, err)

	signed, err := s.SignedURL(ctx, "private", "doc.txt", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "https://files.example.com/base/storage/local/sign/private/doc.txt?"))

	w := get(router, signed)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "secret", w.Body.String())

	// signature is bound to the object
	tampered := strings.Replace(signed, "doc.txt", "other.txt", 1)
	assert.Equal(t, http.StatusUnauthorized, get(router, tampered).Code)

	// and to the expiry
	f.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, http.StatusUnauthorized, get(router, signed).Code)
}
