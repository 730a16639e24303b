package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Driver uses the S3 compatible endpoint of the Supabase storage. Buckets are S3
// buckets, paths are keys.
type S3Driver struct {
	clients    ObjectClientProvider
	projectURL string
}

// NewS3Driver returns a driver which requests the client from provider for every
// call. projectURL is the Supabase project URL, public URLs are created below it.
func NewS3Driver(provider ObjectClientProvider, projectURL string) *S3Driver {
	return &S3Driver{clients: provider, projectURL: strings.TrimSuffix(projectURL, "/")}
}

// Upload implements Driver
func (d *S3Driver) Upload(ctx context.Context, object *Object) (*UploadResult, error) {
	client, err := d.clients.ObjectProtocolClient()
	if err != nil {
		return nil, err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(object.Bucket),
		Key:    aws.String(object.Path),
		Body:   bytes.NewReader(object.Data),
	}
	if object.ContentType != "" {
		input.ContentType = aws.String(object.ContentType)
	}
	output, err := client.PutObject(ctx, input)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Bucket:    object.Bucket,
		Key:       object.Path,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

// Download implements Driver
func (d *S3Driver) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	client, err := d.clients.ObjectProtocolClient()
	if err != nil {
		return nil, err
	}
	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()
	return io.ReadAll(output.Body)
}

// List implements Driver. S3 has no offset, the skipped entries are read and dropped.
func (d *S3Driver) List(ctx context.Context, bucket, prefix string, options ListOptions) ([]FileInfo, error) {
	client, err := d.clients.ObjectProtocolClient()
	if err != nil {
		return nil, err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	files := []FileInfo{}
	skip := options.Offset
	full := func() bool { return options.Limit > 0 && len(files) >= options.Limit }
	add := func(f FileInfo) {
		if skip > 0 {
			skip--
			return
		}
		if !full() {
			files = append(files, f)
		}
	}

	var continuationToken *string
	for !full() {
		output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range output.CommonPrefixes {
			add(FileInfo{Name: strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), prefix), "/")})
		}
		for _, item := range output.Contents {
			f := FileInfo{
				Name: strings.TrimPrefix(aws.ToString(item.Key), prefix),
				ID:   strings.Trim(aws.ToString(item.ETag), "\""),
				Metadata: map[string]interface{}{
					"size": item.Size,
					"eTag": aws.ToString(item.ETag),
				},
			}
			if item.LastModified != nil {
				f.UpdatedAt = item.LastModified.UTC().Format(time.RFC3339)
			}
			add(f)
		}
		continuationToken = output.NextContinuationToken
		if continuationToken == nil {
			break
		}
	}
	return files, nil
}

// Delete implements Driver
func (d *S3Driver) Delete(ctx context.Context, bucket, path string) error {
	client, err := d.clients.ObjectProtocolClient()
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	return err
}

// PublicURL implements Driver. Public objects are served by the storage API, not by
// the S3 endpoint.
func (d *S3Driver) PublicURL(bucket, path string) (string, error) {
	if d.projectURL == "" {
		return "", errNoProjectURL
	}
	return d.projectURL + objectPath("public", bucket, path), nil
}

// SignedURL implements Driver with a presigned GET request
func (d *S3Driver) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	client, err := d.clients.ObjectProtocolClient()
	if err != nil {
		return "", err
	}
	presigned, err := s3.NewPresignClient(client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", err
	}
	return presigned.URL, nil
}
