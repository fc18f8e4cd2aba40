// Package notify delivers best-effort notifications after a social action
// succeeds. Delivery failures never fail the action.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/nickfinder/cache"
	"go.uber.org/zap"
)

// Event types.
const (
	PokeReceived    = "poke.received"
	PokeResponded   = "poke.responded"
	FriendRequested = "friend.requested"
	FriendAccepted  = "friend.accepted"
	MessageReceived = "message.received"
)

// Event is one notification addressed to a user.
type Event struct {
	Type            string    `json:"type"`
	UserID          int64     `json:"user_id"`
	FromCharacterID int64     `json:"from_character_id"`
	ToCharacterID   int64     `json:"to_character_id"`
	RefID           int64     `json:"ref_id,omitempty"`
	ThreadID        string    `json:"thread_id,omitempty"`
	At              time.Time `json:"at"`
}

// Notifier receives events after a gate decision succeeded.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Channel is the pub/sub channel carrying events for userID.
func Channel(userID int64) string {
	return fmt.Sprintf("notify:user:%d", userID)
}

// PubSub publishes events as JSON on the recipient's channel.
type PubSub struct {
	ps     cache.PubSub
	logger *zap.Logger
}

// NewPubSub creates a pub/sub backed notifier.
func NewPubSub(ps cache.PubSub, logger *zap.Logger) *PubSub {
	return &PubSub{ps: ps, logger: logger}
}

func (n *PubSub) Notify(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("notify: marshal", zap.Error(err))
		return
	}
	if err := n.ps.Publish(ctx, Channel(ev.UserID), string(data)); err != nil {
		n.logger.Warn("notify: publish failed",
			zap.String("type", ev.Type), zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}
