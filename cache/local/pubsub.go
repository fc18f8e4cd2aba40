package local

import (
	"context"
	"sync"
	"sync/atomic"
)

// Message is an in-process pub/sub message.
type Message struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch     chan *Message
	closed sync.Once
}

// Bus is an in-process fan-out pub/sub. A subscriber whose buffer is full
// misses the message; Dropped counts those misses.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	bufSize int
	dropped atomic.Int64
}

// NewBus creates a Bus with the given per-subscriber buffer size.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{subs: make(map[string]map[*subscriber]struct{}), bufSize: bufSize}
}

// Publish delivers message to every current subscriber of channel.
func (b *Bus) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe listens on channels until the returned cancel func is called.
func (b *Bus) Subscribe(_ context.Context, channels ...string) (<-chan *Message, func(), error) {
	s := &subscriber{ch: make(chan *Message, b.bufSize)}

	b.mu.Lock()
	for _, c := range channels {
		if b.subs[c] == nil {
			b.subs[c] = make(map[*subscriber]struct{})
		}
		b.subs[c][s] = struct{}{}
	}
	b.mu.Unlock()

	cancel := func() {
		s.closed.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, c := range channels {
				delete(b.subs[c], s)
				if len(b.subs[c]) == 0 {
					delete(b.subs, c)
				}
			}
			close(s.ch)
		})
	}
	return s.ch, cancel, nil
}

// Subscribers reports how many subscriptions are listening on channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Dropped reports how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }
