package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3 or S3-compatible (MinIO, R2) store.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UsePathStyle    bool // true for MinIO
}

type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Storage struct {
	client s3PutAPI
	bucket string
	prefix string
}

// NewS3Storage creates a store backed by S3. Static credentials are used
// when given, otherwise the default AWS credential chain.
func NewS3Storage(ctx context.Context, cfg S3Config) (DocumentStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &s3Storage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *s3Storage) Store(ctx context.Context, doc Document) (string, error) {
	key := ObjectKey(s.prefix, doc)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc.Data),
		ContentType:   aws.String(contentType(doc)),
		ContentLength: aws.Int64(int64(len(doc.Data))),
		Metadata: map[string]string{
			"session-id": doc.SessionID,
			"slot":       doc.Slot,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *s3Storage) Name() string { return "s3" }

func (s *s3Storage) Close() error { return nil }
