package collections

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrCodeEU/facefolio/pkg/logging"
)

// MinioConfig holds connection parameters for an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinioStore keeps collections as key prefixes in a bucket:
// <prefix>/<collection>/<file>.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to the object store and creates the bucket if missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logging.Infof("Created bucket %s", cfg.Bucket)
	}

	return NewMinioStoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *MinioStore) key(collection, fileName string) string {
	return path.Join(s.prefix, collection, fileName)
}

// split turns an object key back into collection and file name.
func (s *MinioStore) split(key string) (string, string, bool) {
	rel := key
	if s.prefix != "" {
		if !strings.HasPrefix(key, s.prefix+"/") {
			return "", "", false
		}
		rel = strings.TrimPrefix(key, s.prefix+"/")
	}
	collection, fileName, ok := strings.Cut(rel, "/")
	if !ok || ValidateName(collection) != nil || ValidateName(fileName) != nil {
		return "", "", false
	}
	return collection, fileName, true
}

// File implements Store.
func (s *MinioStore) File(ctx context.Context, collection, fileName, srcPath string) error {
	if err := ValidateName(collection); err != nil {
		return err
	}
	if err := ValidateName(fileName); err != nil {
		return fmt.Errorf("file name: %w", err)
	}

	key := s.key(collection, fileName)
	if _, err := s.client.FPutObject(ctx, s.bucket, key, srcPath, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logging.Debugf("Filed %s into s3://%s/%s", fileName, s.bucket, key)
	return nil
}

// List implements Store.
func (s *MinioStore) List(ctx context.Context) (map[string][]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	result := make(map[string][]string)
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list collections: %w", obj.Err)
		}
		collection, fileName, ok := s.split(obj.Key)
		if !ok {
			continue
		}
		result[collection] = append(result[collection], fileName)
	}

	for _, files := range result {
		sort.Strings(files)
	}
	return result, nil
}
