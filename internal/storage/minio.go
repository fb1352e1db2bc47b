package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectAPI is the subset of *minio.Client used by MinIOStore
type objectAPI interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// MinIOStore implements Store on top of an S3-compatible bucket.
// Objects become ACTIVE once they are visible to StatObject.
type MinIOStore struct {
	client objectAPI
	bucket string
	prefix string
}

// NewMinIOStore creates a new S3-compatible store
func NewMinIOStore(cfg Config) (*MinIOStore, error) {
	// Clean and validate endpoint
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

func (s *MinIOStore) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *MinIOStore) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// Upload puts the file under prefix/key. The returned handle is PROCESSING
// until Status observes the object.
func (s *MinIOStore) Upload(ctx context.Context, src Source) (Provisional, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return Provisional{}, fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer f.Close()

	size := src.Size
	if size <= 0 {
		st, err := f.Stat()
		if err != nil {
			return Provisional{}, fmt.Errorf("stat %s: %w", src.Path, err)
		}
		size = st.Size()
	}

	key := s.objectKey(src.Key)
	contentType := DetectMIMEType(src.Path)

	_, err = s.client.PutObject(ctx, s.bucket, key, f, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Provisional{}, err
	}

	return Provisional{
		Name:     key,
		URI:      s.uri(key),
		MIMEType: contentType,
		State:    StateProcessing,
	}, nil
}

// Status stats the object; a missing key is still processing.
func (s *MinIOStore) Status(ctx context.Context, name string) (Provisional, error) {
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Provisional{Name: name, URI: s.uri(name), State: StateProcessing}, nil
		}
		return Provisional{}, err
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = mimeBinary
	}

	return Provisional{
		Name:     name,
		URI:      s.uri(name),
		MIMEType: contentType,
		State:    StateActive,
	}, nil
}
