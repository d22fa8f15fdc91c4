package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/ternarybob/arbor"
)

// S3Config carries the settings needed to reach the bucket. Empty
// credentials fall back to the default AWS credential chain.
type S3Config struct {
	BucketName      string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store is the production blob backend.
type S3Store struct {
	s3       *s3.S3
	uploader *s3manager.Uploader
	config   S3Config
	logger   arbor.ILogger
}

func NewS3Store(config S3Config, logger arbor.ILogger) (*S3Store, error) {
	if config.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name must be configured")
	}

	cfg := &aws.Config{}
	if config.Region != "" {
		cfg = cfg.WithRegion(config.Region)
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	logger.Info().
		Str("bucket", config.BucketName).
		Str("region", config.Region).
		Msg("Using S3 blob store")

	return &S3Store{
		s3:       s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		config:   config,
		logger:   logger,
	}, nil
}

// Put uploads data under key. s3manager switches to multipart uploads
// for large objects on its own.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Body:                 bytes.NewReader(data),
		Bucket:               aws.String(s.config.BucketName),
		ContentType:          aws.String("application/octet-stream"),
		Key:                  aws.String(key),
		ServerSideEncryption: aws.String("AES256"),
	})
	if err != nil {
		return fmt.Errorf("failed to put blob %s: %w", key, err)
	}
	s.logger.Debug().
		Str("bucket", s.config.BucketName).
		Str("key", key).
		Int("size", len(data)).
		Msg("Uploaded object")
	return nil
}

// Get downloads the blob under key. Returns ErrNotFound for missing
// keys.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Bucket() string {
	return s.config.BucketName
}
