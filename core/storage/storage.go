/*
Package storage provides access to the objects of the storage buckets.

A Service uploads, downloads, lists and deletes objects and creates public and
signed URLs for them. The actual work is done by a Driver:

  - RestDriver uses the storage API of the Supabase gateway
  - S3Driver uses the S3 compatible endpoint of the Supabase storage
  - LocalFilesystem stores objects below a local folder and serves them itself

Independent of the driver, UploadViaObjectProtocol puts objects directly through the
S3 compatible endpoint and reports the ETag and version id assigned by the backend.

All failures are *errs.Error of kind storage access, with the bucket and path as
subject. Download does not tell a missing object from any other failure, the status
reported by the backend is kept in the cause. Missing credentials are passed on as
configuration errors.
*/
package storage

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
)

// Object describes one object of a bucket
type Object struct {
	Bucket      string
	Path        string
	Data        []byte
	ContentType string
}

// ListOptions paginate List. Zero values are not sent to the backend.
type ListOptions struct {
	Limit  int
	Offset int
}

// FileInfo is one entry of a listing. Folders have no ID.
type FileInfo struct {
	Name           string                 `json:"name"`
	ID             string                 `json:"id,omitempty"`
	UpdatedAt      string                 `json:"updated_at,omitempty"`
	CreatedAt      string                 `json:"created_at,omitempty"`
	LastAccessedAt string                 `json:"last_accessed_at,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// UploadResult describes an uploaded object
type UploadResult struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	ID        string `json:"id,omitempty"`
	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"version_id,omitempty"`
}

// Driver executes storage operations against one kind of backend
type Driver interface {
	Upload(ctx context.Context, object *Object) (*UploadResult, error)
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string, options ListOptions) ([]FileInfo, error)
	Delete(ctx context.Context, bucket, path string) error
	PublicURL(bucket, path string) (string, error)
	SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error)
}

// ObjectClientProvider provides the client for the S3 compatible endpoint
type ObjectClientProvider interface {
	ObjectProtocolClient() (*s3.Client, error)
}

// Service is the storage access layer
type Service struct {
	driver  Driver
	objects ObjectClientProvider
	now     func() time.Time
}

// New returns a service which executes its operations with driver. objects is used
// by UploadViaObjectProtocol only and may be nil otherwise.
func New(driver Driver, objects ObjectClientProvider) *Service {
	return &Service{driver: driver, objects: objects, now: time.Now}
}

func subject(bucket, p string) string {
	return bucket + "/" + p
}

func (s *Service) fail(ctx context.Context, bucket, p, message string, err error) error {
	logger.FromContext(ctx).WithError(err).Errorf("storage error on %s: %s", subject(bucket, p), message)
	if errors.Is(err, errs.ErrConfiguration) {
		return err
	}
	return errs.StorageAccess(subject(bucket, p), message, err)
}

// Upload stores data at path in bucket. The data is passed on unmodified.
func (s *Service) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (*UploadResult, error) {
	result, err := s.driver.Upload(ctx, &Object{Bucket: bucket, Path: path, Data: data, ContentType: contentType})
	if err != nil {
		return nil, s.fail(ctx, bucket, path, "Failed to upload file", err)
	}
	logger.FromContext(ctx).Infof("uploaded file to %s", subject(bucket, path))
	return result, nil
}

// UploadText stores text at path in bucket
func (s *Service) UploadText(ctx context.Context, bucket, path, text, contentType string) (*UploadResult, error) {
	return s.Upload(ctx, bucket, path, []byte(text), contentType)
}

// Download returns the data stored at path in bucket
func (s *Service) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	data, err := s.driver.Download(ctx, bucket, path)
	if err != nil {
		return nil, s.fail(ctx, bucket, path, "Failed to download file", err)
	}
	logger.FromContext(ctx).Infof("downloaded file from %s", subject(bucket, path))
	return data, nil
}

// List lists the objects and folders below prefix. An empty prefix lists the root of
// the bucket.
func (s *Service) List(ctx context.Context, bucket, prefix string, options ListOptions) ([]FileInfo, error) {
	files, err := s.driver.List(ctx, bucket, prefix, options)
	if err != nil {
		return nil, s.fail(ctx, bucket, prefix, "Failed to list files", err)
	}
	logger.FromContext(ctx).Infof("listed %d files from %s", len(files), subject(bucket, prefix))
	return files, nil
}

// Delete deletes exactly the object at path in bucket
func (s *Service) Delete(ctx context.Context, bucket, path string) (bool, error) {
	if err := s.driver.Delete(ctx, bucket, path); err != nil {
		return false, s.fail(ctx, bucket, path, "Failed to delete file", err)
	}
	logger.FromContext(ctx).Infof("deleted file from %s", subject(bucket, path))
	return true, nil
}

// PublicURL returns the public URL of the object at path in bucket. It makes no
// request, the object need not exist.
func (s *Service) PublicURL(bucket, path string) (string, error) {
	u, err := s.driver.PublicURL(bucket, path)
	if err != nil {
		return "", s.fail(context.Background(), bucket, path, "Failed to get public URL", err)
	}
	return u, nil
}

// SignedURL returns a URL which grants read access to the object at path in bucket
// for expiresIn
func (s *Service) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	u, err := s.driver.SignedURL(ctx, bucket, path, expiresIn)
	if err != nil {
		return "", s.fail(ctx, bucket, path, "Failed to create signed URL", err)
	}
	return u, nil
}

// UploadViaObjectProtocol puts data at key in bucket through the S3 compatible
// endpoint. The result carries ETag and version id if the backend reports them.
func (s *Service) UploadViaObjectProtocol(ctx context.Context, bucket, key string, data []byte, contentType string) (*UploadResult, error) {
	if s.objects == nil {
		return nil, s.fail(ctx, bucket, key, "Failed to upload file to S3", errs.Configuration("no object protocol client", nil))
	}
	client, err := s.objects.ObjectProtocolClient()
	if err != nil {
		return nil, s.fail(ctx, bucket, key, "Failed to upload file to S3", err)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	output, err := client.PutObject(ctx, input)
	if err != nil {
		return nil, s.fail(ctx, bucket, key, "Failed to upload file to S3", err)
	}
	logger.FromContext(ctx).Infof("uploaded file to S3: %s", subject(bucket, key))
	return &UploadResult{
		Bucket:    bucket,
		Key:       key,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

// GenerateFilename returns a unique file name with the extension of originalName,
// for example 20240501_120000_1a2b3c4d.pdf
func (s *Service) GenerateFilename(originalName string) string {
	return s.now().Format("20060102_150405") + "_" + uuid.NewString()[:8] + Extension(originalName)
}

// Extension returns the extension of the last element of name, including the dot.
// Names without a dot, with a trailing dot or with a single leading dot have no
// extension.
func Extension(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	return base[i:]
}
