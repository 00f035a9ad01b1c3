package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"voxstudio/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// ErrArtifactNotFound is returned when an artifact key does not exist
var ErrArtifactNotFound = errors.New("artifact not found")

// S3Options configures the artifact store. An empty Endpoint uses AWS.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// ArtifactStore keeps downloadable run results in an S3-compatible bucket
type ArtifactStore struct {
	client *s3.Client
	bucket string
}

// NewArtifactStore creates an S3 client for the configured bucket
func NewArtifactStore(ctx context.Context, opts S3Options) (*ArtifactStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 artifact store initialized",
		zap.String("bucket", opts.Bucket),
		zap.String("endpoint", opts.Endpoint))

	return &ArtifactStore{
		client: client,
		bucket: opts.Bucket,
	}, nil
}

// ArtifactKey is the object key of a run's artifact; runs never share keys
func ArtifactKey(runID, fileName string) string {
	return path.Join("runs", runID, fileName)
}

// Put uploads an artifact
func (s *ArtifactStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}

	logger.Debug("Artifact uploaded", zap.String("key", key), zap.Int64("size", size))
	return nil
}

// Get opens an artifact for reading. The caller closes the reader.
func (s *ArtifactStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}

	return result.Body, nil
}

// Delete removes an artifact
func (s *ArtifactStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	logger.Debug("Artifact deleted", zap.String("key", key))
	return nil
}
