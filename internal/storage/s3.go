package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	config2 "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Backend stages the workspace tree as objects in one S3-compatible
// bucket, one object per staged path.
type S3Backend struct {
	config S3Config
	client *s3.Client
}

// NewS3Backend creates a new S3-compatible storage backend. AccessKeyID and
// SecretAccessKey are optional: a migration box typically already has AWS
// credentials provisioned (environment, shared config file, instance
// role), so only override the default chain when both are given explicitly.
func NewS3Backend(config S3Config) (*S3Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	opts := []func(*config2.LoadOptions) error{config2.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, config2.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config2.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Configure S3 client with optional custom endpoint and path-style addressing
	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			if config.EndpointURL != "" {
				o.EndpointResolver = s3.EndpointResolverFromURL(config.EndpointURL)
				o.UsePathStyle = true
			}
		},
	}
	client := s3.NewFromConfig(awsCfg, clientOpts...)
	return &S3Backend{
		config: config,
		client: client,
	}, nil
}

// Upload uploads a file to S3-compatible storage
func (s *S3Backend) Upload(ctx context.Context, path string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(path),
		Body:   reader,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", path, err)
	}
	return nil
}

// Download downloads a file from S3-compatible storage
func (s *S3Backend) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object %s: %w", path, err)
	}
	return resp.Body, nil
}

// Exists checks if a file exists in S3-compatible storage
func (s *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return false, nil
		}
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.Response.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existence of object %s: %w", path, err)
	}
	return true, nil
}

// List lists files with the given prefix
func (s *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}
