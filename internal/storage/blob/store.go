package blob

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/common"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store is the uniform blob interface the worker writes artifacts
// through. Keys use forward slashes; the bucket is fixed per store and
// surfaced only so output rows can record it.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// NewStore selects the blob backend from configuration. A configured
// local directory wins over S3; local mode is what tests and
// single-machine deployments run with.
func NewStore(config *common.Config, logger arbor.ILogger) (Store, error) {
	if config.Storage.LocalDir != "" {
		logger.Info().
			Str("dir", config.Storage.LocalDir).
			Msg("Using local blob store")
		return NewLocalStore(config.Storage.LocalDir), nil
	}
	return NewS3Store(S3Config{
		BucketName:      config.Storage.S3Bucket,
		Region:          config.Storage.Region,
		AccessKeyID:     config.Storage.AccessKeyID,
		SecretAccessKey: config.Storage.SecretAccessKey,
	}, logger)
}
