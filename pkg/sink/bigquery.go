package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// BigQuerySinkConfig holds configuration for the BigQuery sink.
type BigQuerySinkConfig struct {
	DatasetID string
	TableID   string
}

// HeaderRow is one header in an EventRow.
type HeaderRow struct {
	Key   string `bigquery:"key"`
	Value string `bigquery:"value"`
}

// EventRow is the BigQuery row an event is streamed as.
type EventRow struct {
	EventID         string      `bigquery:"event_id"`
	SourceMessageID string      `bigquery:"source_message_id"`
	ReceivedAt      time.Time   `bigquery:"received_at"`
	Headers         []HeaderRow `bigquery:"headers"`
	Body            []byte      `bigquery:"body"`
}

// NewEventRow converts an event to a row. Headers are sorted by key.
func NewEventRow(ev types.Event) EventRow {
	headers := ev.Headers()
	rows := make([]HeaderRow, 0, len(headers))
	for k, v := range headers {
		rows = append(rows, HeaderRow{Key: k, Value: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })

	return EventRow{
		EventID:         ev.ID(),
		SourceMessageID: ev.SourceMessageID(),
		ReceivedAt:      ev.ReceivedAt(),
		Headers:         rows,
		Body:            ev.Body(),
	}
}

// rowPutter abstracts *bigquery.Inserter.
type rowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink streams each event as one row. The insert ID is the source
// message ID, so BigQuery's best-effort deduplication drops most redeliveries.
type BigQuerySink struct {
	inserter rowPutter
	schema   bigquery.Schema
	logger   zerolog.Logger
}

// NewBigQuerySink creates a BigQuerySink. If the table does not exist it is
// created with the schema inferred from EventRow.
func NewBigQuerySink(ctx context.Context, cfg BigQuerySinkConfig, client *bigquery.Client, logger zerolog.Logger) (*BigQuerySink, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	schema, err := bigquery.InferSchema(EventRow{})
	if err != nil {
		return nil, fmt.Errorf("failed to infer event row schema: %w", err)
	}

	logger = logger.With().Str("project_id", client.Project()).Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()
	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := table.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("BigQuery table not found. Creating it.")
		if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
		}
		logger.Info().Msg("BigQuery table created successfully.")
	}

	return newBigQuerySink(table.Inserter(), schema, logger), nil
}

func newBigQuerySink(inserter rowPutter, schema bigquery.Schema, logger zerolog.Logger) *BigQuerySink {
	return &BigQuerySink{
		inserter: inserter,
		schema:   schema,
		logger:   logger.With().Str("component", "BigQuerySink").Logger(),
	}
}

// Submit inserts the event's row.
func (s *BigQuerySink) Submit(ctx context.Context, ev types.Event) error {
	row := NewEventRow(ev)
	saver := &bigquery.StructSaver{Struct: row, Schema: s.schema, InsertID: ev.SourceMessageID()}

	if err := s.inserter.Put(ctx, saver); err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				s.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery insert of event %s failed: %w", ev.ID(), err)
	}
	s.logger.Debug().Str("event_id", ev.ID()).Str("msg_id", ev.SourceMessageID()).Msg("Event row inserted.")
	return nil
}

// Close is a no-op; the BigQuery client's lifecycle is managed by its creator.
func (s *BigQuerySink) Close(context.Context) error { return nil }

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
