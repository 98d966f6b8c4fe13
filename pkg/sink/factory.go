package sink

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ownedSink closes the clients its sink was built on after the sink itself.
type ownedSink struct {
	Sink
	closers []func() error
}

func (o *ownedSink) Close(ctx context.Context) error {
	err := o.Sink.Close(ctx)
	for _, c := range o.closers {
		err = errors.Join(err, c())
	}
	return err
}

// New builds the sink cfg selects, creating the cloud clients it needs. Closing
// the returned sink also closes those clients.
func New(ctx context.Context, cfg *Config, logger zerolog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for sink client.")
	}

	s, err := newSink(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("sink_type", cfg.Type).Msg("Sink created.")

	if cfg.DedupeWindow > 0 {
		d, err := NewDeduplicator(s, cfg.DedupeWindow, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return s, nil
}

func newSink(ctx context.Context, cfg *Config, opts []option.ClientOption, logger zerolog.Logger) (Sink, error) {
	switch cfg.Type {
	case TypeLog:
		return NewLogSink(logger), nil

	case TypePubsub:
		client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("pubsub.NewClient: %w", err)
		}
		s, err := NewPubsubSink(ctx, PubsubSinkConfig{TopicID: cfg.TopicID, PublishTimeout: cfg.PublishTimeout}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ownedSink{Sink: s, closers: []func() error{client.Close}}, nil

	case TypeGCS:
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		s, err := NewGCSSink(GCSSinkConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix}, NewGCSClientAdapter(client), logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ownedSink{Sink: s, closers: []func() error{client.Close}}, nil

	case TypeBigQuery:
		client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("bigquery.NewClient: %w", err)
		}
		s, err := NewBigQuerySink(ctx, BigQuerySinkConfig{DatasetID: cfg.DatasetID, TableID: cfg.TableID}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ownedSink{Sink: s, closers: []func() error{client.Close}}, nil

	case TypeFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("firestore.NewClient: %w", err)
		}
		s, err := NewFirestoreSink(cfg.Collection, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ownedSink{Sink: s, closers: []func() error{client.Close}}, nil

	case TypeS3:
		s, err := NewS3Sink(ctx, S3SinkConfig{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PathStyle:       cfg.PathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
