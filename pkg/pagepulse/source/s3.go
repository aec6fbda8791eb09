package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	pperrors "github.com/pagepulse/pagepulse/pkg/pagepulse/errors"
	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// S3Config holds configuration for the S3 source.
type S3Config struct {
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-east-1"}
}

// S3 reads NDJSON objects (optionally .snappy compressed) from an S3
// bucket. Objects are fetched lazily on Read; transport failures surface as
// *errors.SourceError so the orchestrator's retry machinery handles them.
type S3 struct {
	client *s3.Client
	bucket string
	keys   []string
	kind   record.Kind
}

// NewS3 creates an S3 source over the given bucket and object keys, tagging
// every record with kind.
func NewS3(ctx context.Context, bucket string, keys []string, kind record.Kind, cfg S3Config) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3WithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, keys, kind), nil
}

// NewS3WithClient creates an S3 source with a pre-configured client.
func NewS3WithClient(client *s3.Client, bucket string, keys []string, kind record.Kind) *S3 {
	return &S3{client: client, bucket: bucket, keys: keys, kind: kind}
}

// Name implements Source.
func (s *S3) Name() string {
	return "s3://" + s.bucket
}

// Read implements Source. Objects are read in key order so the record
// sequence is deterministic for a fixed key set.
func (s *S3) Read(ctx context.Context) ([]record.Raw, error) {
	var all []record.Raw
	for _, key := range s.keys {
		data, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		name := s.Name() + "/" + key
		data, err = maybeDecompress(key, data)
		if err != nil {
			return nil, err
		}
		records, err := decodeNDJSON(name, data, s.kind)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// fetch downloads a single object with bounded retries on transient
// transport failures.
func (s *S3) fetch(ctx context.Context, key string) ([]byte, error) {
	retryCfg := pperrors.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryableFunc:  func(error) bool { return true },
	}

	res := pperrors.WithRetryContext(ctx, retryCfg, func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
	if res.Err != nil {
		return nil, &pperrors.SourceError{
			Source:  s.Name() + "/" + key,
			Wrapped: res.Err,
		}
	}
	return res.Value, nil
}
