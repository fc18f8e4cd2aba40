// Package poke implements the contact gate: first-contact pokes between
// characters, their rate limits and the responses that unlock messaging.
package poke

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/nickfinder/config"
	"github.com/kasuganosora/nickfinder/metrics"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/content"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
)

// RespondContent is the text of the reciprocal poke created by Respond.
const RespondContent = "POKE back!"

const rateWindow = 24 * time.Hour

// Filter selects which pokes List returns.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterReceived Filter = "received"
	FilterSent     Filter = "sent"
	FilterPending  Filter = "pending"
)

// Service is the contact gate.
type Service struct {
	st        *store.Store
	cfg       config.PokeConfig
	validator *content.Validator
	notifier  notify.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// New creates the contact gate with explicit thresholds.
func New(st *store.Store, cfg config.PokeConfig, notifier notify.Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		st:        st,
		cfg:       cfg,
		validator: content.New(cfg),
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CanSendPoke runs the gate checks in order; the first failure wins.
// With a nil sender only the user-level checks run.
func (s *Service) CanSendPoke(ctx context.Context, userID int64, receiver, sender *model.Character) (social.Decision, error) {
	mine, err := s.st.CharacterIDsForUser(ctx, userID)
	if err != nil {
		return social.Decision{}, err
	}
	if len(mine) == 0 {
		return social.Deny(social.CodeNoCharacter, "You need to create a character before sending a POKE."), nil
	}

	if receiver.UserID == userID {
		return social.Deny(social.CodeSelf, "You cannot POKE your own character."), nil
	}

	blocked, err := s.st.PokeBlocked(ctx, receiver.ID, mine...)
	if err != nil {
		return social.Decision{}, err
	}
	if !blocked {
		if blocked, err = s.st.CharacterBlocked(ctx, receiver.ID, mine...); err != nil {
			return social.Decision{}, err
		}
	}
	if blocked {
		return social.Deny(social.CodeBlocked, "This character is not accepting POKEs from you."), nil
	}

	now := s.now()
	sent, err := s.st.CountPokesSince(ctx, mine, now.Add(-rateWindow))
	if err != nil {
		return social.Decision{}, err
	}
	if sent >= int64(s.cfg.MaxPerDay) {
		return social.Deny(social.CodeRateLimited,
			fmt.Sprintf("You have reached the limit of %d POKEs per day. Try again later.", s.cfg.MaxPerDay)), nil
	}

	if sender == nil {
		return social.Allow(), nil
	}

	recent, err := s.st.PokeExistsSince(ctx, sender.ID, receiver.ID, now.Add(-s.cfg.Cooldown()))
	if err != nil {
		return social.Decision{}, err
	}
	if recent {
		return social.Deny(social.CodeCooldown,
			fmt.Sprintf("You have already sent a POKE to this character in the last %d days.", s.cfg.CooldownDays)), nil
	}

	existing, err := s.st.PokeBetween(ctx, sender.ID, receiver.ID)
	if err != nil {
		return social.Decision{}, err
	}
	if existing != nil {
		return social.Deny(social.CodeDuplicate, "You have already sent a POKE to this character."), nil
	}
	return social.Allow(), nil
}

// Remaining returns how many pokes userID may still send in the current window.
func (s *Service) Remaining(ctx context.Context, userID int64) (int, error) {
	mine, err := s.st.CharacterIDsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	sent, err := s.st.CountPokesSince(ctx, mine, s.now().Add(-rateWindow))
	if err != nil {
		return 0, err
	}
	if left := s.cfg.MaxPerDay - int(sent); left > 0 {
		return left, nil
	}
	return 0, nil
}

// SendPoke validates text, re-checks the gate and stores a PENDING poke.
func (s *Service) SendPoke(ctx context.Context, userID, senderID, receiverID int64, text string) (*model.Poke, error) {
	sender, err := s.st.OwnedCharacter(ctx, userID, senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.st.Character(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &social.ValidationError{Reasons: []string{"POKE content is required"}}
	}
	if errs, _ := s.validator.Validate(text); len(errs) > 0 {
		return nil, &social.ValidationError{Reasons: errs}
	}

	d, err := s.CanSendPoke(ctx, userID, receiver, sender)
	if err != nil {
		return nil, fmt.Errorf("poke: gate: %w", err)
	}
	metrics.ObserveDecision(metrics.GatePoke, d)
	if !d.Allowed {
		s.logger.Debug("poke rejected",
			zap.Int64("sender_id", sender.ID), zap.Int64("receiver_id", receiver.ID), zap.String("code", d.Code))
		return nil, d.Err()
	}

	p := &model.Poke{
		SenderCharacterID:   sender.ID,
		ReceiverCharacterID: receiver.ID,
		Content:             text,
		Status:              model.PokePending,
		SentDate:            s.now(),
	}
	if err := s.st.DB(ctx).Create(p).Error; err != nil {
		if store.IsUniqueViolation(err) {
			return nil, social.Reject(social.CodeDuplicate, "You have already sent a POKE to this character.")
		}
		return nil, fmt.Errorf("poke: create: %w", err)
	}

	metrics.PokesSent.Inc()
	s.logger.Info("poke sent",
		zap.Int64("poke_id", p.ID), zap.Int64("sender_id", sender.ID), zap.Int64("receiver_id", receiver.ID))
	s.notifier.Notify(ctx, notify.Event{
		Type:            notify.PokeReceived,
		UserID:          receiver.UserID,
		FromCharacterID: sender.ID,
		ToCharacterID:   receiver.ID,
		RefID:           p.ID,
	})
	return p, nil
}

// received loads a poke whose receiver belongs to userID.
func received(ctx context.Context, st *store.Store, userID, pokeID int64) (*model.Poke, error) {
	p, err := st.Poke(ctx, pokeID)
	if err != nil {
		return nil, err
	}
	receiver, err := st.Character(ctx, p.ReceiverCharacterID)
	if err != nil {
		return nil, err
	}
	if receiver.UserID != userID {
		return nil, social.ErrForbidden
	}
	if p.Status != model.PokePending {
		return nil, social.ErrNotPending
	}
	return p, nil
}

// transition moves a PENDING poke to a new status. Another request that
// already moved it yields ErrNotPending.
func transition(ctx context.Context, st *store.Store, p *model.Poke, updates map[string]interface{}) error {
	res := st.DB(ctx).Model(&model.Poke{}).
		Where("id = ? AND status = ?", p.ID, model.PokePending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return social.ErrNotPending
	}
	return nil
}

// Respond answers a PENDING poke: it stores a reciprocal RESPONDED poke and
// marks the original RESPONDED. It returns the reciprocal poke.
func (s *Service) Respond(ctx context.Context, userID, pokeID int64) (*model.Poke, error) {
	var original *model.Poke
	var reply *model.Poke
	err := s.st.Transaction(ctx, func(tx *store.Store) error {
		p, err := received(ctx, tx, userID, pokeID)
		if err != nil {
			return err
		}
		now := s.now()
		reply = &model.Poke{
			SenderCharacterID:   p.ReceiverCharacterID,
			ReceiverCharacterID: p.SenderCharacterID,
			Content:             RespondContent,
			Status:              model.PokeResponded,
			SentDate:            now,
			RespondedDate:       &now,
		}
		if err := tx.DB(ctx).Create(reply).Error; err != nil {
			if store.IsUniqueViolation(err) {
				return social.Reject(social.CodeDuplicate, "You have already responded to this POKE.")
			}
			return err
		}
		if err := transition(ctx, tx, p, map[string]interface{}{
			"status":         model.PokeResponded,
			"responded_date": now,
			"is_read":        true,
		}); err != nil {
			return err
		}
		p.Status, p.RespondedDate, p.Read = model.PokeResponded, &now, true
		original = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("poke responded", zap.Int64("poke_id", original.ID), zap.Int64("reply_id", reply.ID))
	if sender, err := s.st.Character(ctx, original.SenderCharacterID); err == nil {
		s.notifier.Notify(ctx, notify.Event{
			Type:            notify.PokeResponded,
			UserID:          sender.UserID,
			FromCharacterID: reply.SenderCharacterID,
			ToCharacterID:   sender.ID,
			RefID:           reply.ID,
		})
	}
	return reply, nil
}

// Ignore marks a PENDING poke IGNORED.
func (s *Service) Ignore(ctx context.Context, userID, pokeID int64) (*model.Poke, error) {
	var out *model.Poke
	err := s.st.Transaction(ctx, func(tx *store.Store) error {
		p, err := received(ctx, tx, userID, pokeID)
		if err != nil {
			return err
		}
		if err := transition(ctx, tx, p, map[string]interface{}{"status": model.PokeIgnored, "is_read": true}); err != nil {
			return err
		}
		p.Status, p.Read = model.PokeIgnored, true
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("poke ignored", zap.Int64("poke_id", out.ID))
	return out, nil
}

// Block marks a PENDING poke BLOCKED, stops further pokes from its sender and
// optionally records a spam report by userID.
func (s *Service) Block(ctx context.Context, userID, pokeID int64, reason string, reportSpam bool) (*model.Poke, error) {
	var out *model.Poke
	err := s.st.Transaction(ctx, func(tx *store.Store) error {
		p, err := received(ctx, tx, userID, pokeID)
		if err != nil {
			return err
		}
		now := s.now()
		updates := map[string]interface{}{"status": model.PokeBlocked, "is_read": true}
		if reportSpam {
			updates["spam_reported"] = true
			updates["spam_reported_by"] = userID
			updates["spam_reported_at"] = now
		}
		if err := transition(ctx, tx, p, updates); err != nil {
			return err
		}
		if _, _, err := tx.EnsurePokeBlock(ctx, p.ReceiverCharacterID, p.SenderCharacterID, reason); err != nil {
			return err
		}
		p.Status, p.Read = model.PokeBlocked, true
		if reportSpam {
			uid := userID
			p.SpamReported, p.SpamReportedBy, p.SpamReportedAt = true, &uid, &now
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reportSpam {
		metrics.SpamReports.Inc()
	}
	s.logger.Info("poke blocked", zap.Int64("poke_id", out.ID), zap.Bool("spam", reportSpam))
	return out, nil
}

// IsMutual reports whether a poke in the reverse direction is PENDING or RESPONDED.
func (s *Service) IsMutual(ctx context.Context, p *model.Poke) (bool, error) {
	var n int64
	err := s.st.DB(ctx).Model(&model.Poke{}).
		Where("sender_character_id = ? AND receiver_character_id = ? AND status IN ?",
			p.ReceiverCharacterID, p.SenderCharacterID, []model.PokeStatus{model.PokePending, model.PokeResponded}).
		Count(&n).Error
	return n > 0, err
}

// CanSendFullMessage is true once p is RESPONDED or mutual. A still-PENDING
// reverse poke counts as mutual.
func (s *Service) CanSendFullMessage(ctx context.Context, p *model.Poke) (bool, error) {
	if p.Status == model.PokeResponded {
		return true, nil
	}
	return s.IsMutual(ctx, p)
}

// List returns the pokes of one of userID's characters, newest first.
func (s *Service) List(ctx context.Context, userID, charID int64, filter Filter) ([]model.Poke, error) {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	q := s.st.DB(ctx).Model(&model.Poke{})
	switch filter {
	case FilterReceived:
		q = q.Where("receiver_character_id = ?", charID)
	case FilterSent:
		q = q.Where("sender_character_id = ?", charID)
	case FilterPending:
		q = q.Where("receiver_character_id = ? AND status = ?", charID, model.PokePending)
	default:
		q = q.Where("sender_character_id = ? OR receiver_character_id = ?", charID, charID)
	}
	var pokes []model.Poke
	err := q.Order("sent_date DESC, id DESC").Find(&pokes).Error
	return pokes, err
}

// Get returns a poke visible to userID. Opening a received poke marks it read.
func (s *Service) Get(ctx context.Context, userID, pokeID int64) (*model.Poke, error) {
	p, err := s.st.Poke(ctx, pokeID)
	if err != nil {
		return nil, err
	}
	mine, err := s.st.CharacterIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var isSender, isReceiver bool
	for _, id := range mine {
		isSender = isSender || id == p.SenderCharacterID
		isReceiver = isReceiver || id == p.ReceiverCharacterID
	}
	if !isSender && !isReceiver {
		return nil, social.ErrForbidden
	}
	if isReceiver && !p.Read {
		if err := s.st.DB(ctx).Model(&model.Poke{}).Where("id = ?", p.ID).Update("is_read", true).Error; err != nil {
			return nil, err
		}
		p.Read = true
	}
	return p, nil
}

// UnreadCount counts unread pokes received by any of userID's characters.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	mine, err := s.st.CharacterIDsForUser(ctx, userID)
	if err != nil || len(mine) == 0 {
		return 0, err
	}
	var n int64
	err = s.st.DB(ctx).Model(&model.Poke{}).
		Where("receiver_character_id IN ? AND is_read = ?", mine, false).
		Count(&n).Error
	return n, err
}

// PendingTotal counts all PENDING pokes.
func (s *Service) PendingTotal(ctx context.Context) (int64, error) {
	var n int64
	err := s.st.DB(ctx).Model(&model.Poke{}).Where("status = ?", model.PokePending).Count(&n).Error
	return n, err
}

// SpamReports lists pokes reported as spam, newest report first.
func (s *Service) SpamReports(ctx context.Context, limit int) ([]model.Poke, error) {
	var pokes []model.Poke
	err := s.st.DB(ctx).Where("spam_reported = ?", true).
		Order("spam_reported_at DESC").Limit(limit).Find(&pokes).Error
	return pokes, err
}
