/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config carries everything needed to reach an S3-compatible bucket.
// Endpoint is only set for non-AWS services (MinIO, Spaces); UsePathStyle
// goes with it.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKeyID   string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
}

// S3Store keeps assets in an S3-compatible bucket, refs as object keys.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
	logger  zerolog.Logger
}

// NewS3Store builds the SDK client. Static credentials from config win;
// with none set the SDK falls back to its usual chain (env, instance role).
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" && cfg.Endpoint != "" {
		baseURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "storage").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

func (s *S3Store) Save(ctx context.Context, ref string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", ref, err)
	}
	s.logger.Debug().Str("ref", ref).Msg("asset stored")
	return nil
}

func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", ref, err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", ref, err)
	}
	s.logger.Debug().Str("ref", ref).Msg("asset deleted")
	return nil
}

// Rename is copy-then-delete; S3 has no native move. The copy source must
// be URL-escaped per the S3 API.
func (s *S3Store) Rename(ctx context.Context, oldRef, newRef string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + oldRef)),
		Key:        aws.String(newRef),
	})
	if err != nil {
		return fmt.Errorf("copy object %q to %q: %w", oldRef, newRef, err)
	}
	if err := s.Delete(ctx, oldRef); err != nil {
		return fmt.Errorf("remove old object after copy: %w", err)
	}
	s.logger.Debug().Str("from", oldRef).Str("to", newRef).Msg("asset renamed")
	return nil
}

// URL builds a public URL from the configured CDN base, or the endpoint
// when no CDN fronts the bucket.
func (s *S3Store) URL(ref string) string {
	if s.baseURL == "" {
		return ref
	}
	return s.baseURL + "/" + ref
}

// CheckAccess verifies the bucket is reachable with the given credentials.
func (s *S3Store) CheckAccess(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %q: %w", s.bucket, err)
	}
	return nil
}
