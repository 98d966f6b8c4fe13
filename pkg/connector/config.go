package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Configuration keys. The six required keys identify the queue and its credentials.
const (
	KeyQueueName   = "queuename"
	KeyNamespace   = "namespace"
	KeyAuthName    = "authname"
	KeyAuthPwd     = "authpwd"
	KeyRootURI     = "rooturi"
	KeyWrapRootURI = "wraprooturi"

	KeyTransport      = "transport"
	KeyReceiveTimeout = "receivetimeout"
	KeyLockTimeout    = "locktimeout"
	KeyReleaseTimeout = "releasetimeout"
)

// Supported transports.
const (
	TransportServiceBus = "servicebus"
	TransportSQS        = "sqs"
	TransportAMQP       = "amqp"
	TransportRedis      = "redis"
	TransportMemory     = "memory"
)

// Config is the connector's validated, immutable configuration.
type Config struct {
	QueueName    string
	Namespace    string
	AuthName     string
	AuthPassword string
	RootURI      string
	// WrapRootURI is the token-issuing endpoint of the queue service's legacy
	// authentication scheme.
	WrapRootURI string

	Transport      string
	ReceiveTimeout time.Duration
	LockTimeout    time.Duration
	ReleaseTimeout time.Duration
}

// requiredField pairs a configuration key with the name used in error messages.
type requiredField struct {
	key   string
	field string
	get   func(*Config) string
}

var requiredFields = []requiredField{
	{KeyQueueName, "queue name", func(c *Config) string { return c.QueueName }},
	{KeyNamespace, "namespace", func(c *Config) string { return c.Namespace }},
	{KeyAuthName, "auth name", func(c *Config) string { return c.AuthName }},
	{KeyAuthPwd, "auth password", func(c *Config) string { return c.AuthPassword }},
	{KeyRootURI, "root URI", func(c *Config) string { return c.RootURI }},
	{KeyWrapRootURI, "WRAP root URI", func(c *Config) string { return c.WrapRootURI }},
}

// LoadConfig extracts the connector configuration from a key/value mapping and
// validates it. It does not touch the network.
func LoadConfig(params map[string]string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(params[key]) }

	cfg := &Config{
		QueueName:      get(KeyQueueName),
		Namespace:      get(KeyNamespace),
		AuthName:       get(KeyAuthName),
		AuthPassword:   params[KeyAuthPwd],
		RootURI:        get(KeyRootURI),
		WrapRootURI:    get(KeyWrapRootURI),
		Transport:      strings.ToLower(get(KeyTransport)),
		ReceiveTimeout: 5 * time.Second,
		LockTimeout:    30 * time.Second,
		ReleaseTimeout: 10 * time.Second,
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportServiceBus
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{KeyReceiveTimeout, &cfg.ReceiveTimeout},
		{KeyLockTimeout, &cfg.LockTimeout},
		{KeyReleaseTimeout, &cfg.ReleaseTimeout},
	}
	for _, d := range durations {
		raw := get(d.key)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, &ConfigurationError{Key: d.key, Field: d.key, Err: err}
		}
		if v <= 0 {
			return nil, &ConfigurationError{Key: d.key, Field: d.key, Err: fmt.Errorf("must be positive, got %s", v)}
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required field is set and the transport is known.
// Fields are checked in a fixed order and the first missing one is reported.
// LoadConfig trims every value except the password, which is taken verbatim.
func (c *Config) Validate() error {
	for _, f := range requiredFields {
		if f.get(c) == "" {
			return &ConfigurationError{Key: f.key, Field: f.field}
		}
	}
	switch c.Transport {
	case TransportServiceBus, TransportSQS, TransportAMQP, TransportRedis, TransportMemory:
	default:
		return &ConfigurationError{Key: KeyTransport, Field: "transport", Err: fmt.Errorf("unknown transport %q", c.Transport)}
	}
	return nil
}

// MarshalZerologObject logs the configuration with the secret redacted.
func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("queue", c.QueueName).
		Str("namespace", c.Namespace).
		Str("auth_name", c.AuthName).
		Str("root_uri", c.RootURI).
		Str("wrap_root_uri", c.WrapRootURI).
		Str("transport", c.Transport).
		Dur("receive_timeout", c.ReceiveTimeout).
		Dur("lock_timeout", c.LockTimeout)
}
