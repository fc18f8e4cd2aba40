// Package cache selects the key/value cache and pub/sub backend: Redis when
// an address is configured, in-process otherwise.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/nickfinder/cache/local"
	cacheredis "github.com/kasuganosora/nickfinder/cache/redis"
	"github.com/kasuganosora/nickfinder/config"
)

// Cache is the key/value store used for sessions and read-through caches.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// IsNotFound reports whether err is a cache miss from either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub carries notification and announcement messages.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// Open returns the cache and pub/sub for cfg. With Redis both share one
// connection pool; the returned func releases it.
func Open(cfg config.CacheConfig) (Cache, PubSub, func(), error) {
	if cfg.RedisAddr == "" {
		lc := local.NewCache(cfg.LocalGCInterval)
		bus := local.NewBus(cfg.LocalPubSubBuf)
		return lc, adapt[local.Message](bus.Publish, bus.Subscribe, func(m *local.Message) *Message {
			return &Message{Channel: m.Channel, Payload: m.Payload}
		}), lc.Close, nil
	}
	rc, err := cacheredis.Dial(cacheredis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return rc, adapt[cacheredis.Message](rc.Publish, rc.Subscribe, func(m *cacheredis.Message) *Message {
		return &Message{Channel: m.Channel, Payload: m.Payload}
	}), func() { _ = rc.Close() }, nil
}

type subscribeFunc[M any] func(ctx context.Context, channels ...string) (<-chan *M, func(), error)

func adapt[M any](publish func(ctx context.Context, channel, message string) error, subscribe subscribeFunc[M], convert func(*M) *Message) PubSub {
	return pubSubAdapter[M]{publish: publish, subscribe: subscribe, convert: convert}
}

// pubSubAdapter bridges a backend's message type to cache.Message.
type pubSubAdapter[M any] struct {
	publish   func(ctx context.Context, channel, message string) error
	subscribe subscribeFunc[M]
	convert   func(*M) *Message
}

func (a pubSubAdapter[M]) Publish(ctx context.Context, channel, message string) error {
	return a.publish(ctx, channel, message)
}

func (a pubSubAdapter[M]) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, cap(in))
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- a.convert(msg):
			case <-done:
				return
			}
		}
	}()
	return out, stop, nil
}
