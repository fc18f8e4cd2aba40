// Package messaging implements the messaging gate and message threads.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kasuganosora/nickfinder/config"
	"github.com/kasuganosora/nickfinder/metrics"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
)

// Service decides whether two characters may exchange messages and stores them.
type Service struct {
	st        *store.Store
	maxLength int
	notifier  notify.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func New(st *store.Store, cfg config.MessagingConfig, notifier notify.Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		st:        st,
		maxLength: cfg.MaxLength,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CanSendMessage is evaluated on every send; decisions are never cached.
// A block by the receiver overrides any earlier unlock.
func (s *Service) CanSendMessage(ctx context.Context, senderID, receiverID int64) (social.Decision, error) {
	if senderID == receiverID {
		return social.Deny(social.CodeSelf, "You cannot message yourself."), nil
	}
	blocked, err := s.st.CharacterBlocked(ctx, receiverID, senderID)
	if err != nil {
		return social.Decision{}, err
	}
	if blocked {
		return social.Deny(social.CodeBlocked, "This character is not accepting messages from you."), nil
	}

	var n int64
	err = s.st.DB(ctx).Model(&model.Poke{}).
		Where("(sender_character_id = ? AND receiver_character_id = ? AND status = ?) OR "+
			"(sender_character_id = ? AND receiver_character_id = ? AND status IN ?)",
			senderID, receiverID, model.PokeResponded,
			receiverID, senderID, []model.PokeStatus{model.PokePending, model.PokeResponded}).
		Count(&n).Error
	if err != nil {
		return social.Decision{}, err
	}
	if n == 0 {
		return social.Deny(social.CodeNotUnlocked,
			"Send a POKE and wait for a response before messaging this character."), nil
	}
	return social.Allow(), nil
}

// ThreadBetween returns the thread token shared by two characters, or "".
func (s *Service) ThreadBetween(ctx context.Context, a, b int64) (string, error) {
	var ids []string
	err := s.st.DB(ctx).Model(&model.Message{}).
		Where("(sender_character_id = ? AND receiver_character_id = ?) OR (sender_character_id = ? AND receiver_character_id = ?)", a, b, b, a).
		Order("sent_date, id").Limit(1).Pluck("thread_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// Send re-checks the gate and stores a message in the pair's thread.
func (s *Service) Send(ctx context.Context, userID, senderID, receiverID int64, text string) (*model.Message, error) {
	sender, err := s.st.OwnedCharacter(ctx, userID, senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.st.Character(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, &social.ValidationError{Reasons: []string{"message content is required"}}
	case s.maxLength > 0 && utf8.RuneCountInString(text) > s.maxLength:
		return nil, &social.ValidationError{Reasons: []string{fmt.Sprintf("message cannot exceed %d characters", s.maxLength)}}
	}

	d, err := s.CanSendMessage(ctx, sender.ID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("messaging: gate: %w", err)
	}
	metrics.ObserveDecision(metrics.GateMessage, d)
	if !d.Allowed {
		s.logger.Debug("message rejected",
			zap.Int64("sender_id", sender.ID), zap.Int64("receiver_id", receiver.ID), zap.String("code", d.Code))
		return nil, d.Err()
	}

	thread, err := s.ThreadBetween(ctx, sender.ID, receiver.ID)
	if err != nil {
		return nil, err
	}
	if thread == "" {
		thread = uuid.NewString()
	}
	revealed, err := s.st.ActiveReveal(ctx, sender.ID, receiver.ID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ThreadID:            thread,
		SenderCharacterID:   sender.ID,
		ReceiverCharacterID: receiver.ID,
		Content:             text,
		SentDate:            s.now(),
		IdentityRevealed:    revealed,
	}
	if err := s.st.DB(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("messaging: create: %w", err)
	}

	metrics.MessagesSent.Inc()
	s.logger.Info("message sent",
		zap.Int64("message_id", msg.ID), zap.String("thread_id", thread),
		zap.Int64("sender_id", sender.ID), zap.Int64("receiver_id", receiver.ID))
	s.notifier.Notify(ctx, notify.Event{
		Type:            notify.MessageReceived,
		UserID:          receiver.UserID,
		FromCharacterID: sender.ID,
		ToCharacterID:   receiver.ID,
		RefID:           msg.ID,
		ThreadID:        thread,
	})
	return msg, nil
}

// Identity is the real user behind a character, shown only while revealed.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// ThreadMessage is a message with its sender resolved for display.
type ThreadMessage struct {
	model.Message
	SenderNickname string    `json:"sender_nickname"`
	SenderIdentity *Identity `json:"sender_identity,omitempty"`
}

// Thread returns the messages of threadID as seen by charID, oldest first,
// and marks the ones addressed to charID read. Sender identity comes from the
// reveal ledger at read time.
func (s *Service) Thread(ctx context.Context, userID, charID int64, threadID string) ([]ThreadMessage, error) {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	err := s.st.DB(ctx).
		Where("thread_id = ? AND (sender_character_id = ? OR receiver_character_id = ?)", threadID, charID, charID).
		Order("sent_date, id").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, social.ErrNotFound
	}

	err = s.st.DB(ctx).Model(&model.Message{}).
		Where("thread_id = ? AND receiver_character_id = ? AND is_read = ?", threadID, charID, false).
		Update("is_read", true).Error
	if err != nil {
		return nil, err
	}

	senders := make(map[int64]senderView, 2)
	out := make([]ThreadMessage, 0, len(msgs))
	for _, m := range msgs {
		snd, ok := senders[m.SenderCharacterID]
		if !ok {
			if snd, err = s.resolveSender(ctx, m.SenderCharacterID, m.ReceiverCharacterID); err != nil {
				return nil, err
			}
			senders[m.SenderCharacterID] = snd
		}
		if m.ReceiverCharacterID == charID {
			m.Read = true
		}
		out = append(out, ThreadMessage{Message: m, SenderNickname: snd.nickname, SenderIdentity: snd.identity})
	}
	return out, nil
}

type senderView struct {
	nickname string
	identity *Identity
}

func (s *Service) resolveSender(ctx context.Context, senderID, receiverID int64) (senderView, error) {
	var out senderView
	c, err := s.st.Character(ctx, senderID)
	if err != nil {
		return out, err
	}
	out.nickname = c.Nickname
	revealed, err := s.st.ActiveReveal(ctx, senderID, receiverID)
	if err != nil || !revealed {
		return out, err
	}
	u, err := s.st.User(ctx, c.UserID)
	if err != nil {
		return out, err
	}
	out.identity = &Identity{UserID: u.ID, Username: u.Username}
	return out, nil
}

// Conversation summarizes one thread for a character's inbox.
type Conversation struct {
	ThreadID      string        `json:"thread_id"`
	OtherID       int64         `json:"other_character_id"`
	OtherNickname string        `json:"other_nickname"`
	LastMessage   model.Message `json:"last_message"`
	Unread        int           `json:"unread"`
}

// Conversations lists charID's threads, most recent activity first.
func (s *Service) Conversations(ctx context.Context, userID, charID int64) ([]Conversation, error) {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	err := s.st.DB(ctx).
		Where("sender_character_id = ? OR receiver_character_id = ?", charID, charID).
		Order("sent_date DESC, id DESC").Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var convs []Conversation
	for _, m := range msgs {
		i, seen := index[m.ThreadID]
		if !seen {
			other := m.ReceiverCharacterID
			if other == charID {
				other = m.SenderCharacterID
			}
			i = len(convs)
			index[m.ThreadID] = i
			convs = append(convs, Conversation{ThreadID: m.ThreadID, OtherID: other, LastMessage: m})
		}
		if m.ReceiverCharacterID == charID && !m.Read {
			convs[i].Unread++
		}
	}

	for i := range convs {
		c, err := s.st.Character(ctx, convs[i].OtherID)
		if err != nil {
			return nil, err
		}
		convs[i].OtherNickname = c.Nickname
	}
	return convs, nil
}

// UnreadCount counts unread messages addressed to any of userID's characters.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	mine, err := s.st.CharacterIDsForUser(ctx, userID)
	if err != nil || len(mine) == 0 {
		return 0, err
	}
	var n int64
	err = s.st.DB(ctx).Model(&model.Message{}).
		Where("receiver_character_id IN ? AND is_read = ?", mine, false).
		Count(&n).Error
	return n, err
}
