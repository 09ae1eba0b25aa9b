package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStorage implements Storage on an S3-compatible bucket with
// path-style public addresses: <publicBase>/<bucket>/<key>.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase string
}

func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = scheme + "://" + cfg.Endpoint
	}
	return &MinioStorage{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		publicBase: publicBase,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStorage) List(ctx context.Context, prefix, pattern string) ([]string, error) {
	prefix = normalizePrefix(prefix)
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix + pattern,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	return names, nil
}

func (s *MinioStorage) Put(ctx context.Context, key string, p Pending) error {
	contentType := p.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(p.Data)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(p.Data), int64(len(p.Data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) PublicURL(key string) string {
	return s.publicBase + "/" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

func (s *MinioStorage) Delete(ctx context.Context, addresses []string) error {
	var errs []error
	objects := make(chan minio.ObjectInfo, len(addresses))
	for _, address := range addresses {
		key, ok := s.keyFromAddress(address)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrForeignAddress, address))
			continue
		}
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	for removeErr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("remove object %s: %w", removeErr.ObjectName, removeErr.Err))
	}
	return errors.Join(errs...)
}

func (s *MinioStorage) keyFromAddress(address string) (string, bool) {
	base := s.PublicURL("")
	if !strings.HasPrefix(address, base) {
		return "", false
	}
	key := strings.TrimPrefix(address, base)
	return key, key != ""
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
