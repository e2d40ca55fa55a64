// Package archive provides an optional, best-effort off-site copy of a
// completed upload's target file. A failure here never reverses a session's
// COMPLETED status.
package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/auth-platform/file-upload/internal/resilience"
)

// S3Archiver uploads completed target files to a single S3 bucket under
// their upload id, wrapped in a circuit breaker so a struggling S3 endpoint
// doesn't pile up slow calls behind every finalization.
type S3Archiver struct {
	client  *s3.Client
	bucket  string
	breaker *resilience.CircuitBreaker
}

// Config configures an S3Archiver.
type Config struct {
	Region   string
	Bucket   string
	Endpoint string // set for S3-compatible services (MinIO, etc.)
}

// New creates an S3Archiver. Returns an error only if AWS config loading
// itself fails; bucket/endpoint validity is discovered lazily per-upload.
func New(ctx context.Context, cfg Config) (*S3Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	presets := resilience.DefaultConfigs()
	return &S3Archiver{
		client:  client,
		bucket:  cfg.Bucket,
		breaker: resilience.NewCircuitBreaker(presets["s3"]),
	}, nil
}

// Archive uploads the file at targetPath to s3://bucket/uploadID.
func (a *S3Archiver) Archive(ctx context.Context, uploadID, targetPath string) error {
	if !a.breaker.Allow() {
		return fmt.Errorf("archive: circuit open for s3 archival")
	}

	f, err := os.Open(targetPath)
	if err != nil {
		a.breaker.RecordFailure()
		return fmt.Errorf("archive: open target file: %w", err)
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(uploadID),
		Body:   f,
	})
	if err != nil {
		a.breaker.RecordFailure()
		return fmt.Errorf("archive: put object: %w", err)
	}

	a.breaker.RecordSuccess()
	return nil
}
