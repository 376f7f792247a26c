// Package blob archives original uploads so a dataset's source file can be
// downloaded again. Objects are addressed by key; backends are the local
// filesystem, S3 and MinIO.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/tapfile/tapfile/internal/config"
)

// Common errors for blob operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// Store is an object store for archived uploads.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key. Deleting a missing object
	// succeeds.
	Delete(ctx context.Context, key string) error
}

// DatasetKey returns the object key of a dataset's original upload.
func DatasetKey(projectSlug, datasetID string) string {
	return fmt.Sprintf("datasets/%s/%s.csv", projectSlug, datasetID)
}

// Open builds the Store described by cfg. Relative local directories are
// resolved against dataDir. With Compress set, objects are snappy-encoded
// at rest.
func Open(ctx context.Context, cfg config.BlobSettings, dataDir string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", "local":
		dir := cfg.Dir
		if dir == "" {
			dir = "blobs"
		}
		if !filepath.IsAbs(dir) && dataDir != "" {
			dir = filepath.Join(dataDir, dir)
		}
		store, err = NewLocalStore(dir)
	case "s3":
		store, err = NewS3Store(ctx, cfg.Bucket, S3Config{
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.Endpoint != "",
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
		})
	case "minio":
		store, err = NewMinioStore(MinioConfig{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
		})
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compress {
		store = NewCompressed(store)
	}
	return store, nil
}
