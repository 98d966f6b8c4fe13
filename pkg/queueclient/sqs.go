package queueclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// sqsAPI is the subset of *sqs.Client used by SQSClient.
type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSConfig configures an SQSClient. The visibility timeout is the lock duration.
type SQSConfig struct {
	QueueName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	WaitTime        time.Duration
	LockTimeout     time.Duration
}

// SQSClient adapts an Amazon SQS queue to the peek-lock Client contract.
type SQSClient struct {
	api       sqsAPI
	queueName string
	queueURL  *string
	waitSecs  int32
	lockSecs  int32
	logger    zerolog.Logger
}

// NewSQSClient loads AWS configuration with static credentials, resolves the queue
// URL and returns a ready client. It is called once at startup.
func NewSQSClient(ctx context.Context, cfg SQSConfig, logger zerolog.Logger) (*SQSClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to load AWS config: %w", err))
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSQSClient(ctx, client, cfg, logger)
}

func newSQSClient(ctx context.Context, api sqsAPI, cfg SQSConfig, logger zerolog.Logger) (*SQSClient, error) {
	if api == nil {
		return nil, errors.New("sqs client cannot be nil")
	}
	out, err := api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(cfg.QueueName)})
	if err != nil {
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to resolve queue URL: %w", err))
	}

	c := &SQSClient{
		api:       api,
		queueName: cfg.QueueName,
		queueURL:  out.QueueUrl,
		waitSecs:  clampSeconds(cfg.WaitTime, 0, 20),
		lockSecs:  clampSeconds(cfg.LockTimeout, 0, 43200),
		logger:    logger.With().Str("component", "SQSClient").Str("queue", cfg.QueueName).Logger(),
	}
	c.logger.Info().Str("queue_url", aws.ToString(out.QueueUrl)).Msg("SQS queue client ready.")
	return c, nil
}

// ReceiveLocked implements Client.
func (c *SQSClient) ReceiveLocked(ctx context.Context) (*Message, *LockHandle, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:                    c.queueURL,
		MaxNumberOfMessages:         1,
		WaitTimeSeconds:             c.waitSecs,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if c.lockSecs > 0 {
		in.VisibilityTimeout = c.lockSecs
	}

	out, err := c.api.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, nil, transportErr(OpReceive, c.queueName, err)
	}
	if len(out.Messages) == 0 {
		return nil, nil, nil
	}

	m := out.Messages[0]
	msg := &Message{
		ID:            aws.ToString(m.MessageId),
		Body:          bytes.NewReader([]byte(aws.ToString(m.Body))),
		Properties:    sqsProperties(m.MessageAttributes),
		DeliveryCount: sqsReceiveCount(m.Attributes),
	}
	return msg, &LockHandle{messageID: msg.ID, token: aws.ToString(m.ReceiptHandle)}, nil
}

// Delete implements Client.
func (c *SQSClient) Delete(ctx context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpDelete, c.queueName, ErrLockLost)
	}
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      c.queueURL,
		ReceiptHandle: aws.String(h.token),
	})
	if err != nil {
		h.reopen()
		return transportErr(OpDelete, c.queueName, mapSQSError(err))
	}
	return nil
}

// Unlock implements Client by resetting the message's visibility timeout to zero.
func (c *SQSClient) Unlock(ctx context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpUnlock, c.queueName, ErrLockLost)
	}
	_, err := c.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          c.queueURL,
		ReceiptHandle:     aws.String(h.token),
		VisibilityTimeout: 0,
	})
	return transportErr(OpUnlock, c.queueName, mapSQSError(err))
}

// Close implements Client. The SDK client holds no connection that needs closing.
func (c *SQSClient) Close(context.Context) error { return nil }

// mapSQSError translates SQS error codes for stale receipt handles into ErrLockLost.
func mapSQSError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ReceiptHandleIsInvalid", "MessageNotInflight", "AWS.SimpleQueueService.MessageNotInflight", "InvalidParameterValue":
			return fmt.Errorf("%w: %s", ErrLockLost, apiErr.ErrorMessage())
		}
	}
	return err
}

func sqsProperties(attrs map[string]sqstypes.MessageAttributeValue) map[string]any {
	props := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch {
		case v.StringValue != nil:
			props[k] = aws.ToString(v.StringValue)
		case v.BinaryValue != nil:
			props[k] = v.BinaryValue
		default:
			props[k] = nil
		}
	}
	return props
}

func sqsReceiveCount(attrs map[string]string) int {
	var n int
	if v, ok := attrs[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		_, _ = fmt.Sscanf(v, "%d", &n)
	}
	return n
}

func clampSeconds(d time.Duration, lo, hi int32) int32 {
	s := int32(d / time.Second)
	if s < lo {
		return lo
	}
	if s > hi {
		return hi
	}
	return s
}
