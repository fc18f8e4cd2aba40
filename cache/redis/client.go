package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds Redis connection settings. Prefix namespaces every key and
// channel so several deployments can share one Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Client is a Redis-backed key/value cache and pub/sub bus sharing one pool.
type Client struct {
	rdb    *goredis.Client
	prefix string
}

// Dial connects and pings Redis.
func Dial(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb, prefix: cfg.Prefix}, nil
}

func (c *Client) key(k string) string { return c.prefix + k }

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(key)).Result()
	return n > 0, err
}

// Message is a received pub/sub message with the prefix stripped from its channel.
type Message struct {
	Channel string
	Payload string
}

func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.rdb.Publish(ctx, c.key(channel), message).Err()
}

// Subscribe waits for the subscription to be confirmed before returning, so
// messages published after it returns are delivered.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	full := make([]string, len(channels))
	for i, ch := range channels {
		full[i] = c.key(ch)
	}
	ps := c.rdb.Subscribe(ctx, full...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- &Message{Channel: strings.TrimPrefix(msg.Channel, c.prefix), Payload: msg.Payload}:
			case <-done:
				return
			}
		}
	}()

	return out, func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }
