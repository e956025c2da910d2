package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/Strob0t/backoffice/internal/port/storage"
)

const s3Name = "s3"

// S3Options configures an S3 or S3-compatible bucket store.
type S3Options struct {
	// Endpoint of an S3-compatible service (MinIO, R2, ...). Empty for AWS.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicURL is the base objects are served from. When empty the URL is
	// derived from Endpoint or the AWS virtual-hosted style.
	PublicURL string
	PathStyle bool
}

// S3 stores media in S3 buckets.
type S3 struct {
	client *s3.Client
	opts   S3Options
}

// NewS3 creates an S3 provider. Without static keys the default AWS
// credential chain applies. client may be nil.
func NewS3(ctx context.Context, opts S3Options, client *http.Client) (*S3, error) {
	if opts.Region == "" && opts.Endpoint == "" {
		return nil, errors.New("s3: region or endpoint is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	if client != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(client))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(opts.Endpoint, "/"))
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &S3{client: c, opts: opts}, nil
}

// Name returns the provider identifier.
func (s *S3) Name() string { return s3Name }

// Upload puts f at bucket/key, replacing any existing object, and returns
// its public URL.
func (s *S3) Upload(ctx context.Context, bucket, key string, f storage.File) (string, error) {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(f.Data),
		ContentLength: aws.Int64(int64(len(f.Data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s/%s: %w", bucket, key, err)
	}
	return s.publicURL(bucket, key), nil
}

// Delete removes bucket/key. Deleting a missing object is not an error.
func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil
		}
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3) publicURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	path := strings.Join(segments, "/")

	switch {
	case s.opts.PublicURL != "":
		return strings.TrimRight(s.opts.PublicURL, "/") + "/" + path
	case s.opts.Endpoint != "" && s.opts.PathStyle:
		return strings.TrimRight(s.opts.Endpoint, "/") + "/" + url.PathEscape(bucket) + "/" + path
	case s.opts.Endpoint != "":
		u, err := url.Parse(s.opts.Endpoint)
		if err != nil || u.Host == "" {
			return strings.TrimRight(s.opts.Endpoint, "/") + "/" + url.PathEscape(bucket) + "/" + path
		}
		return u.Scheme + "://" + bucket + "." + u.Host + "/" + path
	}
	return "https://" + bucket + ".s3." + s.opts.Region + ".amazonaws.com/" + path
}
