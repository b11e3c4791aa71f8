package publish

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	ContentType  = "application/xml"
	CacheControl = "public, max-age=3600"
)

// S3API is the subset of the S3 client used to upload sitemaps.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads the rendered sitemap to a bucket.
type S3Publisher struct {
	client S3API
	bucket string
	key    string
}

// Options configure NewS3Publisher. Key defaults to the base name of the
// local output file.
type Options struct {
	Bucket  string
	Key     string
	Region  string
	Profile string
}

// NewS3Publisher loads AWS credentials the standard way and returns a
// publisher for opts.Bucket.
func NewS3Publisher(ctx context.Context, opts Options) (*S3Publisher, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loaders []func(*config.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loaders = append(loaders, config.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewWithClient(s3.NewFromConfig(cfg), opts.Bucket, opts.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client S3API, bucket, key string) *S3Publisher {
	return &S3Publisher{
		client: client,
		bucket: bucket,
		key:    strings.TrimPrefix(key, "/"),
	}
}

// DefaultKey derives the object key from the local output path.
func DefaultKey(outputPath string) string {
	return path.Base(strings.ReplaceAll(outputPath, "\\", "/"))
}

// Destination is the s3:// URL the sitemap is written to.
func (p *S3Publisher) Destination() string {
	return "s3://" + p.bucket + "/" + p.key
}

// Publish uploads body, replacing any existing object.
func (p *S3Publisher) Publish(ctx context.Context, body []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(ContentType),
		CacheControl:  aws.String(CacheControl),
	})
	if err != nil {
		return fmt.Errorf("uploading to %s: %w", p.Destination(), err)
	}
	return nil
}
