package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/profilegate/core/clients"
	"github.com/relabs-tech/profilegate/core/config"
	"github.com/relabs-tech/profilegate/core/errs"
)

func newS3Backend(t *testing.T) (*fakeBackend, *clients.Cache) {
	f := newFakeBackend(t)
	cache := clients.New(&config.Configuration{
		SupabaseURL: f.URL,
		SupabaseKey: "service-key",
		S3Region:    "auto",
	})
	return f, cache
}

func TestUploadViaObjectProtocol(t *testing.T) {
	f, cache := newS3Backend(t)
	f.mutex.Lock()
	f.body = ""
	f.header = map[string]string{
		"ETag":             `"9b2cf535f27731c974343645a3985328"`,
		"x-amz-version-id": "v1",
		"Content-Type":     "application/xml",
	}
	f.mutex.Unlock()

	s := New(NewRestDriver(cache), cache)
	result, err := s.UploadViaObjectProtocol(context.Background(), "avatars", "users/u1.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "avatars", result.Bucket)
	assert.Equal(t, "users/u1.png", result.Key)
	assert.Equal(t, `"9b2cf535f27731c974343645a3985328"`, result.ETag)
	assert.Equal(t, "v1", result.VersionID)

	r := f.last()
	assert.Equal(t, http.MethodPut, r.Method)
	assert.True(t, strings.HasPrefix(r.Path, "/storage/v1/s3/avatars/users/u1.png"), r.Path)
	assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
	assert.Contains(t, r.Header.Get("Authorization"), "Credential=service-key/")
	assert.Equal(t, "png", string(r.Body))
}

func TestUploadViaObjectProtocol_Failure(t *testing.T) {
	f, cache := newS3Backend(t)
	f.mutex.Lock()
	f.status = http.StatusForbidden
	f.body = `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`
	f.header = map[string]string{"Content-Type": "application/xml"}
	f.mutex.Unlock()

	s := New(NewRestDriver(cache), cache)
	_, err := s.UploadViaObjectProtocol(context.Background(), "avatars", "u1.png", []byte("png"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrStorageAccess))
	assert.Equal(t, "Failed to upload file to S3", err.Error())
}

func TestS3Driver_List(t *testing.T) {
	f, cache := newS3Backend(t)
	f.mutex.Lock()
	f.header = map[string]string{"Content-Type": "application/xml"}
	f.body = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>avatars</Name><Prefix>users/</Prefix><KeyCount>3</KeyCount><MaxKeys>1000</MaxKeys>
  <Delimiter>/</Delimiter><IsTruncated>false</IsTruncated>
  <Contents><Key>users/a.png</Key><LastModified>2024-05-01T12:00:00.000Z</LastModified><ETag>"aaa"</ETag><Size>3</Size><StorageClass>STANDARD</StorageClass></Contents>
  <Contents><Key>users/b.png</Key><LastModified>2024-05-01T12:00:00.000Z</LastModified><ETag>"bbb"</ETag><Size>4</Size><StorageClass>STANDARD</StorageClass></Contents>
  <CommonPrefixes><Prefix>users/old/</Prefix></CommonPrefixes>
</ListBucketResult>`
	f.mutex.Unlock()

	s := New(NewS3Driver(cache, f.URL), cache)
	files, err := s.List(context.Background(), "avatars", "users", ListOptions{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "old", files[0].Name)
	assert.Equal(t, "", files[0].ID)
	assert.Equal(t, "a.png", files[1].Name)
	assert.Equal(t, "aaa", files[1].ID)
	assert.Equal(t, "2024-05-01T12:00:00Z", files[1].UpdatedAt)

	files, err = s.List(context.Background(), "avatars", "users/", ListOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.png", files[0].Name)
	assert.Contains(t, f.last().Path, "prefix=users%2F")
}

func TestS3Driver_URLs(t *testing.T) {
	f, cache := newS3Backend(t)
	d := NewS3Driver(cache, f.URL+"/")

	u, err := d.PublicURL("avatars", "users/u1.png")
	require.NoError(t, err)
	assert.Equal(t, f.URL+"/storage/v1/object/public/avatars/users/u1.png", u)

	signed, err := d.SignedURL(context.Background(), "avatars", "users/u1.png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, f.URL+"/storage/v1/s3/avatars/users/u1.png?"), signed)
	assert.Contains(t, signed, "X-Amz-Expires=60")
	assert.Contains(t, signed, "X-Amz-Signature=")

	_, err = NewS3Driver(cache, "").PublicURL("avatars", "u1.png")
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}
