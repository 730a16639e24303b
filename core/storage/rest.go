package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relabs-tech/profilegate/core/supabase"
)

// StorageClientProvider provides the client for the Supabase storage API
type StorageClientProvider interface {
	StorageClient() (*supabase.Client, error)
}

// RestDriver uses the storage API of the Supabase gateway
type RestDriver struct {
	clients StorageClientProvider
}

// NewRestDriver returns a driver which requests the client from provider for every call
func NewRestDriver(provider StorageClientProvider) *RestDriver {
	return &RestDriver{clients: provider}
}

func objectPath(kind, bucket, p string) string {
	s := supabase.StoragePath + "/object"
	if kind != "" {
		s += "/" + kind
	}
	s += "/" + url.PathEscape(bucket)
	if p != "" {
		s += "/" + supabase.EscapePath(p)
	}
	return s
}

// Upload implements Driver
func (d *RestDriver) Upload(ctx context.Context, object *Object) (*UploadResult, error) {
	client, err := d.clients.StorageClient()
	if err != nil {
		return nil, err
	}
	r, err := client.NewRequest(ctx, http.MethodPost, objectPath("", object.Bucket, object.Path), "", bytes.NewReader(object.Data))
	if err != nil {
		return nil, err
	}
	r.ContentLength = int64(len(object.Data))
	contentType := object.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("x-upsert", "false")

	response := struct {
		Key string `json:"Key"`
		ID  string `json:"Id"`
	}{}
	if err := client.DoJSON(r, &response); err != nil {
		return nil, err
	}
	return &UploadResult{Bucket: object.Bucket, Key: object.Path, ID: response.ID}, nil
}

// Download implements Driver
func (d *RestDriver) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	client, err := d.clients.StorageClient()
	if err != nil {
		return nil, err
	}
	r, err := client.NewRequest(ctx, http.MethodGet, objectPath("authenticated", bucket, path), "", nil)
	if err != nil {
		return nil, err
	}
	data, _, err := client.Do(r)
	return data, err
}

// List implements Driver
func (d *RestDriver) List(ctx context.Context, bucket, prefix string, options ListOptions) ([]FileInfo, error) {
	client, err := d.clients.StorageClient()
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"prefix": prefix}
	if options.Limit > 0 {
		body["limit"] = options.Limit
	}
	if options.Offset > 0 {
		body["offset"] = options.Offset
	}
	r, err := client.NewRequest(ctx, http.MethodPost, objectPath("list", bucket, ""), "", body)
	if err != nil {
		return nil, err
	}
	files := []FileInfo{}
	err = client.DoJSON(r, &files)
	return files, err
}

// Delete implements Driver
func (d *RestDriver) Delete(ctx context.Context, bucket, path string) error {
	client, err := d.clients.StorageClient()
	if err != nil {
		return err
	}
	body := map[string][]string{"prefixes": {path}}
	r, err := client.NewRequest(ctx, http.MethodDelete, objectPath("", bucket, ""), "", body)
	if err != nil {
		return err
	}
	return client.DoJSON(r, nil)
}

// PublicURL implements Driver
func (d *RestDriver) PublicURL(bucket, path string) (string, error) {
	client, err := d.clients.StorageClient()
	if err != nil {
		return "", err
	}
	return client.URL(objectPath("public", bucket, path), ""), nil
}

// SignedURL implements Driver
func (d *RestDriver) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	client, err := d.clients.StorageClient()
	if err != nil {
		return "", err
	}
	body := map[string]int64{"expiresIn": int64(expiresIn / time.Second)}
	r, err := client.NewRequest(ctx, http.MethodPost, objectPath("sign", bucket, path), "", body)
	if err != nil {
		return "", err
	}
	response := struct {
		SignedURL string `json:"signedURL"`
	}{}
	if err := client.DoJSON(r, &response); err != nil {
		return "", err
	}
	if response.SignedURL == "" {
		return "", fmt.Errorf("no signed URL in response")
	}
	signed, err := url.Parse(response.SignedURL)
	if err != nil {
		return "", err
	}
	if signed.IsAbs() {
		return signed.String(), nil
	}
	return client.URL(supabase.StoragePath+strings.TrimPrefix(signed.EscapedPath(), supabase.StoragePath), signed.RawQuery), nil
}
