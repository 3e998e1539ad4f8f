// Package blob reads and writes the documents the dashboard works with
// (source tables, boundary files, exported workbooks) on the local
// filesystem, an S3-compatible bucket, or in memory.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem is the local filesystem (default).
	DriverFilesystem Driver = "fs"
	// DriverS3 is an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory (tests).
	DriverMemory Driver = "memory"
)

// Info describes a stored blob.
type Info struct {
	Key          string
	Location     string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the subset of S3-like operations the application needs.
// Get and Head fail with *errors.NotFoundError when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Config selects and configures a driver.
type Config struct {
	Driver            Driver
	FSRoot            string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Open builds the store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// ReadAll fetches the whole content of key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, Info, error) {
	info, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, Info{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}

	return data, info, nil
}
