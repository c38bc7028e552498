package aws

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
)

// maxDocumentBytes bounds transcript documents read into memory
const maxDocumentBytes = 16 << 20

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ObjectStore keeps media blobs in one S3 bucket and fetches transcript
// documents by s3:// or https:// URI.
type ObjectStore struct {
	client   s3API
	uploader uploaderAPI
	http     *http.Client
	bucket   string
}

// NewObjectStore builds an S3-backed store for bucket.
func NewObjectStore(awsCfg awssdk.Config, cfg Config) *ObjectStore {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.Concurrency = 4
	})
	return newObjectStore(client, uploader, &http.Client{Timeout: 30 * time.Second}, cfg.Bucket)
}

func newObjectStore(client s3API, uploader uploaderAPI, httpClient *http.Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, uploader: uploader, http: httpClient, bucket: bucket}
}

// Bucket returns the bucket objects are written to.
func (s *ObjectStore) Bucket() string {
	return s.bucket
}

// Put uploads body under key and returns its s3:// URI.
func (s *ObjectStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: awssdk.String(s.bucket),
		Key:    awssdk.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = awssdk.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", serviceError("s3", "upload "+key, err)
	}
	return s.URI(key), nil
}

// URI formats the s3:// URI of key in the store's bucket.
func (s *ObjectStore) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Delete removes key. S3 treats deleting a missing key as success.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awssdk.String(s.bucket),
		Key:    awssdk.String(key),
	})
	return serviceError("s3", "delete "+key, err)
}

// Get reads a whole object from bucket.
func (s *ObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return nil, errors.NewNotFoundError("object " + key)
		}
		return nil, serviceError("s3", "get "+key, err)
	}
	defer out.Body.Close()

	return readLimited(out.Body)
}

// Fetch downloads a document by URI. s3:// URIs are read through the SDK,
// http(s) URIs (pre-signed transcript links) with a plain GET.
func (s *ObjectStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.NewMalformedResultError("s3", "invalid document URI").WithCause(err)
	}

	switch u.Scheme {
	case "s3":
		return s.Get(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "http", "https":
		return s.fetchHTTP(ctx, uri)
	default:
		return nil, errors.NewMalformedResultError("s3", fmt.Sprintf("unsupported URI scheme %q", u.Scheme))
	}
}

func (s *ObjectStore) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.NewMalformedResultError("s3", "invalid document URI").WithCause(err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewExternalError("s3", "document download failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalError("s3", fmt.Sprintf("document download returned %d", resp.StatusCode)).
			WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}
	return readLimited(resp.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return nil, errors.NewExternalError("s3", "reading document failed").WithCause(err)
	}
	if len(body) > maxDocumentBytes {
		return nil, errors.NewMalformedResultError("s3", "document exceeds size limit")
	}
	return body, nil
}
