package artifact

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultRegion is used when S3Config.Region is empty.
const DefaultRegion = "us-east-1"

// S3Config ...
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

func (c S3Config) validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"endpoint", c.Endpoint},
		{"access key", c.AccessKey},
		{"secret key", c.SecretKey},
		{"bucket", c.Bucket},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("s3 mirror: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// S3Store mirrors artifacts into an S3-compatible bucket. The bucket is
// checked, and created if absent, before the first upload.
type S3Store struct {
	client *minio.Client
	cfg    S3Config

	mu    sync.Mutex
	ready bool
}

// NewS3Store ...
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 mirror %s: %w", cfg.Endpoint, err)
	}
	return &S3Store{client: client, cfg: cfg}, nil
}

// prepare makes sure the bucket exists. A failed check is retried on the
// next upload.
func (s *S3Store) prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
		if err != nil && !alreadyOwned(err) {
			return err
		}
	}
	s.ready = true
	return nil
}

func alreadyOwned(err error) bool {
	return minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou"
}

// ObjectName is the key an artifact name is stored under.
func (s *S3Store) ObjectName(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return path.Join(s.cfg.Prefix, name)
}

// Put ...
func (s *S3Store) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := s.prepare(ctx); err != nil {
		return "", fmt.Errorf("bucket %s: %w", s.cfg.Bucket, err)
	}
	object := s.ObjectName(name)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", object, err)
	}
	return object, nil
}
