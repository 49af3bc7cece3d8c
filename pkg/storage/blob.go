// Package storage keeps template backgrounds in an object store.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("blob not found")

// BlobStore stores opaque blobs by key
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Object describes a stored blob
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Config selects and configures a blob store
type Config struct {
	Driver string      `json:"driver"`
	S3     S3Options   `json:"s3"`
	Local  LocalConfig `json:"local"`
}

// LocalConfig configures the filesystem store
type LocalConfig struct {
	Dir string `json:"dir"`
}

// New creates the store named by cfg.Driver
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "local", "":
		return NewLocalStore(cfg.Local.Dir)
	}
	return nil, errors.New("unknown storage driver: " + cfg.Driver)
}
