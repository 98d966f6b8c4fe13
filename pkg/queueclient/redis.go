package queueclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ====================================================================================
// RedisClient implements a peek-lock queue on plain Redis data structures:
//
//   <prefix><queue>             list of pending entries (producers LPUSH, consumers RPOP)
//   <prefix><queue>:inflight    sorted set of lock tokens scored by lock deadline (ms)
//   <prefix><queue>:locks       hash of lock token -> entry
//   <prefix><queue>:deadletter  list of entries that could not be decoded
//
// Expired locks are returned to the consuming end of the list at the start of every
// receive, so an abandoned message is the next one redelivered.
// ====================================================================================

var receiveScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, t in ipairs(expired) do
  local e = redis.call('HGET', KEYS[3], t)
  redis.call('ZREM', KEYS[2], t)
  redis.call('HDEL', KEYS[3], t)
  if e then redis.call('RPUSH', KEYS[1], e) end
end
local item = redis.call('RPOP', KEYS[1])
if not item then return false end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[3], item)
return item
`)

var deleteScript = redis.NewScript(`
local d = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not d or tonumber(d) <= tonumber(ARGV[2]) then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

var unlockScript = redis.NewScript(`
local d = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not d or tonumber(d) <= tonumber(ARGV[2]) then return 0 end
local e = redis.call('HGET', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if e then redis.call('RPUSH', KEYS[1], e) end
return 1
`)

// RedisConfig configures a RedisClient.
type RedisConfig struct {
	// URL is a redis:// or rediss:// address.
	URL         string
	Username    string
	Password    string
	KeyPrefix   string
	QueueName   string
	LockTimeout time.Duration
}

// RedisClient adapts a Redis list-based queue to the peek-lock Client contract.
type RedisClient struct {
	rdb         *redis.Client
	queueName   string
	pendingKey  string
	inflightKey string
	locksKey    string
	deadKey     string
	lockTTL     time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

type redisEntry struct {
	ID         string         `json:"id"`
	Body       []byte         `json:"body"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NewRedisClient connects and pings Redis before returning.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("invalid redis URL: %w", err))
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to connect to redis: %w", err))
	}

	lockTTL := cfg.LockTimeout
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	base := cfg.KeyPrefix + cfg.QueueName
	c := &RedisClient{
		rdb:         rdb,
		queueName:   cfg.QueueName,
		pendingKey:  base,
		inflightKey: base + ":inflight",
		locksKey:    base + ":locks",
		deadKey:     base + ":deadletter",
		lockTTL:     lockTTL,
		now:         time.Now,
		logger:      logger.With().Str("component", "RedisClient").Str("queue", cfg.QueueName).Logger(),
	}
	c.logger.Info().Str("redis_address", opts.Addr).Msg("Successfully connected to Redis.")
	return c, nil
}

// Send enqueues a message. It is the producer side of the queue layout.
func (c *RedisClient) Send(ctx context.Context, id string, body []byte, properties map[string]any) error {
	data, err := json.Marshal(redisEntry{ID: id, Body: body, Properties: properties})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.pendingKey, data).Err(); err != nil {
		return transportErr("send", c.queueName, err)
	}
	return nil
}

// ReceiveLocked implements Client.
func (c *RedisClient) ReceiveLocked(ctx context.Context) (*Message, *LockHandle, error) {
	now := c.now()
	token := uuid.NewString()
	res, err := receiveScript.Run(ctx, c.rdb,
		[]string{c.pendingKey, c.inflightKey, c.locksKey},
		now.UnixMilli(), now.Add(c.lockTTL).UnixMilli(), token,
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, transportErr(OpReceive, c.queueName, err)
	}

	entry, err := decodeEntry(res)
	if err != nil {
		// An entry that cannot be decoded would be redelivered forever; park it.
		if derr := c.deadLetter(ctx, token, res); derr != nil {
			c.logger.Error().Err(derr).Msg("Failed to dead-letter undecodable entry.")
		}
		return nil, nil, transportErr(OpReceive, c.queueName, fmt.Errorf("undecodable queue entry: %w", err))
	}

	msg := &Message{ID: entry.ID, Body: bytes.NewReader(entry.Body), Properties: entry.Properties}
	if msg.Properties == nil {
		msg.Properties = map[string]any{}
	}
	return msg, &LockHandle{messageID: entry.ID, token: token}, nil
}

// decodeEntry keeps numeric properties as json.Number so integers stringify exactly.
func decodeEntry(raw string) (redisEntry, error) {
	var entry redisEntry
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	err := dec.Decode(&entry)
	return entry, err
}

// deadLetter moves a locked entry to the dead-letter list.
func (c *RedisClient) deadLetter(ctx context.Context, token, raw string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, c.inflightKey, token)
		pipe.HDel(ctx, c.locksKey, token)
		pipe.LPush(ctx, c.deadKey, raw)
		return nil
	})
	return err
}

// Delete implements Client.
func (c *RedisClient) Delete(ctx context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpDelete, c.queueName, ErrLockLost)
	}
	n, err := deleteScript.Run(ctx, c.rdb, []string{c.inflightKey, c.locksKey}, h.token, c.now().UnixMilli()).Int()
	if err != nil {
		h.reopen()
		return transportErr(OpDelete, c.queueName, err)
	}
	if n == 0 {
		return transportErr(OpDelete, c.queueName, ErrLockLost)
	}
	return nil
}

// Unlock implements Client.
func (c *RedisClient) Unlock(ctx context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpUnlock, c.queueName, ErrLockLost)
	}
	n, err := unlockScript.Run(ctx, c.rdb,
		[]string{c.pendingKey, c.inflightKey, c.locksKey}, h.token, c.now().UnixMilli(),
	).Int()
	if err != nil {
		return transportErr(OpUnlock, c.queueName, err)
	}
	if n == 0 {
		return transportErr(OpUnlock, c.queueName, ErrLockLost)
	}
	return nil
}

// Close implements Client.
func (c *RedisClient) Close(context.Context) error {
	c.logger.Info().Msg("Closing Redis client connection...")
	return c.rdb.Close()
}
