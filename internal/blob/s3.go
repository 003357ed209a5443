package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds construction parameters for the S3 driver. Endpoint and
// PathStyle support S3-compatible backends such as MinIO.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3Store implements Store on an S3-compatible backend. Credentials come
// from the default AWS chain.
type S3Store struct {
	client *s3.Client
	bucket string
	base   string // URL base for public object links
}

// NewS3 creates an S3 blob store.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	if cfg.Endpoint != "" {
		base = fmt.Sprintf("%s/%s", cfg.Endpoint, cfg.Bucket)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, base: base}, nil
}

// Upload writes the file bytes under key and returns its location.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (Location, error) {
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Location{}, fmt.Errorf("s3 put %s: %w", key, err)
	}
	escaped := (&url.URL{Path: "/" + key}).EscapedPath()
	return Location{
		Path:      key,
		PublicURL: s.base + escaped,
	}, nil
}
