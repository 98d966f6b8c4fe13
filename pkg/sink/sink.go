package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/types"
)

// Sink is a downstream pipeline stage. Submit is synchronous: it returns only
// once the event is durably stored or published, or with the reason it is not.
type Sink interface {
	Submit(ctx context.Context, ev types.Event) error
	Close(ctx context.Context) error
}

// Sink types.
const (
	TypeLog       = "log"
	TypePubsub    = "pubsub"
	TypeGCS       = "gcs"
	TypeBigQuery  = "bigquery"
	TypeFirestore = "firestore"
	TypeS3        = "s3"
)

// Config keys, shared by all sink types. Each type reads only the keys it needs.
const (
	KeyType            = "type"
	KeyProjectID       = "project_id"
	KeyCredentialsFile = "credentials_file"
	KeyTopicID         = "topic_id"
	KeyBucket          = "bucket"
	KeyPrefix          = "prefix"
	KeyDatasetID       = "dataset_id"
	KeyTableID         = "table_id"
	KeyCollection      = "collection"
	KeyRegion          = "region"
	KeyEndpoint        = "endpoint"
	KeyAccessKeyID     = "access_key_id"
	KeySecretAccessKey = "secret_access_key"
	KeyPathStyle       = "path_style"
	KeyPublishTimeout  = "publish_timeout"
	KeyDedupeWindow    = "dedupe_window"
)

// Config selects and configures the downstream sink.
type Config struct {
	Type            string
	ProjectID       string
	CredentialsFile string

	TopicID        string
	PublishTimeout time.Duration

	Bucket string
	Prefix string

	DatasetID string
	TableID   string

	Collection string

	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool

	// DedupeWindow is the number of recently submitted source message IDs to
	// remember. Zero disables deduplication.
	DedupeWindow int
}

// LoadConfig reads a sink configuration from a key/value mapping.
func LoadConfig(params map[string]string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(params[key]) }

	cfg := &Config{
		Type:            strings.ToLower(get(KeyType)),
		ProjectID:       get(KeyProjectID),
		CredentialsFile: get(KeyCredentialsFile),
		TopicID:         get(KeyTopicID),
		PublishTimeout:  20 * time.Second,
		Bucket:          get(KeyBucket),
		Prefix:          strings.Trim(get(KeyPrefix), "/"),
		DatasetID:       get(KeyDatasetID),
		TableID:         get(KeyTableID),
		Collection:      get(KeyCollection),
		Region:          get(KeyRegion),
		Endpoint:        get(KeyEndpoint),
		AccessKeyID:     get(KeyAccessKeyID),
		SecretAccessKey: params[KeySecretAccessKey],
	}
	if cfg.Type == "" {
		cfg.Type = TypeLog
	}

	if raw := get(KeyPublishTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("sink %s must be a positive duration, got %q", KeyPublishTimeout, raw)
		}
		cfg.PublishTimeout = d
	}
	if raw := get(KeyPathStyle); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", KeyPathStyle, err)
		}
		cfg.PathStyle = v
	}
	if raw := get(KeyDedupeWindow); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("sink %s must be a non-negative integer, got %q", KeyDedupeWindow, raw)
		}
		cfg.DedupeWindow = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the keys the selected sink type needs are present.
func (c *Config) Validate() error {
	var required map[string]string
	switch c.Type {
	case TypeLog:
	case TypePubsub:
		required = map[string]string{KeyProjectID: c.ProjectID, KeyTopicID: c.TopicID}
	case TypeGCS:
		required = map[string]string{KeyProjectID: c.ProjectID, KeyBucket: c.Bucket}
	case TypeBigQuery:
		required = map[string]string{KeyProjectID: c.ProjectID, KeyDatasetID: c.DatasetID, KeyTableID: c.TableID}
	case TypeFirestore:
		required = map[string]string{KeyProjectID: c.ProjectID, KeyCollection: c.Collection}
	case TypeS3:
		required = map[string]string{KeyBucket: c.Bucket, KeyRegion: c.Region}
	default:
		return fmt.Errorf("unknown sink type %q", c.Type)
	}
	for _, key := range []string{KeyProjectID, KeyTopicID, KeyBucket, KeyDatasetID, KeyTableID, KeyCollection, KeyRegion} {
		if v, ok := required[key]; ok && v == "" {
			return fmt.Errorf("%s sink requires %s", c.Type, key)
		}
	}
	return nil
}

// Record is the JSON form of an event written by the object and document sinks.
type Record struct {
	EventID         string            `json:"event_id" firestore:"event_id"`
	SourceMessageID string            `json:"source_message_id" firestore:"source_message_id"`
	ReceivedAt      time.Time         `json:"received_at" firestore:"received_at"`
	Headers         map[string]string `json:"headers" firestore:"headers"`
	Body            []byte            `json:"body" firestore:"body"`
}

// NewRecord captures an event as a Record.
func NewRecord(ev types.Event) Record {
	return Record{
		EventID:         ev.ID(),
		SourceMessageID: ev.SourceMessageID(),
		ReceivedAt:      ev.ReceivedAt(),
		Headers:         ev.Headers(),
		Body:            ev.Body(),
	}
}

func encodeRecord(ev types.Event) ([]byte, error) {
	data, err := json.Marshal(NewRecord(ev))
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", ev.ID(), err)
	}
	return data, nil
}

// ObjectKey is the object name an event is stored under:
// <prefix>/<yyyy>/<mm>/<dd>/<source message id><ext>. Redeliveries of the same
// message on the same day overwrite the same object.
func ObjectKey(prefix string, ev types.Event, ext string) string {
	day := ev.ReceivedAt().UTC().Format("2006/01/02")
	return path.Join(prefix, day, sanitizeKeyPart(ev.SourceMessageID())+ext)
}

func sanitizeKeyPart(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}
