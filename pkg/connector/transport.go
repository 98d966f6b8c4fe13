package connector

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-queueconnector/pkg/queueclient"
	"github.com/rs/zerolog"
)

// NewQueueClient builds the queue client adapter for cfg.Transport. It is called
// once at start; a failure here is fatal and is not retried.
//
// The six connection fields map onto each transport as follows:
//
//	servicebus: namespace + rooturi form the endpoint, authname/authpwd are the SAS key name and key
//	sqs:        namespace is the AWS region, rooturi the endpoint, authname/authpwd the access key pair
//	amqp:       rooturi is the broker URI, namespace the vhost, authname/authpwd the user
//	redis:      rooturi is the redis URL, namespace the key prefix, authname/authpwd the ACL user
//	memory:     only queuename is used
func NewQueueClient(ctx context.Context, cfg *Config, logger zerolog.Logger) (queueclient.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info().Object("config", cfg).Msg("Creating queue client.")

	switch cfg.Transport {
	case TransportServiceBus:
		c, err := queueclient.NewServiceBusClient(queueclient.ServiceBusConfig{
			QueueName:      cfg.QueueName,
			Namespace:      cfg.Namespace,
			RootURI:        cfg.RootURI,
			KeyName:        cfg.AuthName,
			Key:            cfg.AuthPassword,
			ReceiveTimeout: cfg.ReceiveTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportSQS:
		c, err := queueclient.NewSQSClient(ctx, queueclient.SQSConfig{
			QueueName:       cfg.QueueName,
			Region:          cfg.Namespace,
			Endpoint:        cfg.RootURI,
			AccessKeyID:     cfg.AuthName,
			SecretAccessKey: cfg.AuthPassword,
			WaitTime:        cfg.ReceiveTimeout,
			LockTimeout:     cfg.LockTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportAMQP:
		c, err := queueclient.NewAMQPClient(queueclient.AMQPConfig{
			URI:       cfg.RootURI,
			QueueName: cfg.QueueName,
			VHost:     cfg.Namespace,
			Username:  cfg.AuthName,
			Password:  cfg.AuthPassword,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportRedis:
		c, err := queueclient.NewRedisClient(ctx, queueclient.RedisConfig{
			URL:         cfg.RootURI,
			Username:    cfg.AuthName,
			Password:    cfg.AuthPassword,
			KeyPrefix:   cfg.Namespace + ":",
			QueueName:   cfg.QueueName,
			LockTimeout: cfg.LockTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportMemory:
		return queueclient.NewMemoryQueue(cfg.QueueName, cfg.LockTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
