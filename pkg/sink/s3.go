package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SinkConfig holds configuration for the S3 sink.
type S3SinkConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Sink stores each event body as an object named by ObjectKey, with the
// event headers as user metadata.
type S3Sink struct {
	client s3API
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Sink builds an S3 client from cfg and returns a sink using it. Static
// credentials are used when given, otherwise the default chain.
func NewS3Sink(ctx context.Context, cfg S3SinkConfig, logger zerolog.Logger) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3Sink(client, cfg.Bucket, cfg.Prefix, logger)
}

func newS3Sink(client s3API, bucket, prefix string, logger zerolog.Logger) (*S3Sink, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With().Str("component", "S3Sink").Str("bucket", bucket).Logger(),
	}, nil
}

// Submit puts the event body.
func (s *S3Sink) Submit(ctx context.Context, ev types.Event) error {
	key := ObjectKey(s.prefix, ev, "")
	body := ev.Body()

	metadata := ev.Headers()
	metadata["event-id"] = ev.ID()
	metadata["source-message-id"] = ev.SourceMessageID()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	s.logger.Debug().Str("event_id", ev.ID()).Str("key", key).Msg("Event stored.")
	return nil
}

// Close is a no-op.
func (s *S3Sink) Close(context.Context) error { return nil }
