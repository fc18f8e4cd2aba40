// Package friend implements friend requests and the undirected friend graph.
package friend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/nickfinder/metrics"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMessageLength = 500

// Direction selects which side of a request listing is returned.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

type Service struct {
	st       *store.Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func New(st *store.Store, notifier notify.Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		st:       st,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CanSendRequest checks the friend-request rules for sender → receiver.
func (s *Service) CanSendRequest(ctx context.Context, sender, receiver *model.Character) (social.Decision, error) {
	if sender.UserID == receiver.UserID {
		return social.Deny(social.CodeSelf, "You cannot send a friend request to your own character."), nil
	}
	friends, err := s.st.AreFriends(ctx, sender.ID, receiver.ID)
	if err != nil {
		return social.Decision{}, err
	}
	if friends {
		return social.Deny(social.CodeAlreadyFriends, "You are already friends with this character."), nil
	}
	blocked, err := s.st.CharacterBlocked(ctx, receiver.ID, sender.ID)
	if err != nil {
		return social.Decision{}, err
	}
	if blocked {
		return social.Deny(social.CodeBlocked, "This character is not accepting friend requests from you."), nil
	}
	var n int64
	err = s.st.DB(ctx).Model(&model.CharacterFriendRequest{}).
		Where("sender_character_id = ? AND receiver_character_id = ? AND status = ?",
			sender.ID, receiver.ID, model.FriendRequestPending).
		Count(&n).Error
	if err != nil {
		return social.Decision{}, err
	}
	if n > 0 {
		return social.Deny(social.CodeAlreadyRequested, "You have already sent a friend request to this character."), nil
	}
	return social.Allow(), nil
}

// SendRequest creates a PENDING request, or re-opens an earlier DECLINED or
// stale ACCEPTED one for the same directed pair.
func (s *Service) SendRequest(ctx context.Context, userID, senderID, receiverID int64, message string) (*model.CharacterFriendRequest, error) {
	sender, err := s.st.OwnedCharacter(ctx, userID, senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.st.Character(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if len([]rune(message)) > maxMessageLength {
		return nil, &social.ValidationError{Reasons: []string{fmt.Sprintf("message cannot exceed %d characters", maxMessageLength)}}
	}

	d, err := s.CanSendRequest(ctx, sender, receiver)
	if err != nil {
		return nil, fmt.Errorf("friend: gate: %w", err)
	}
	metrics.ObserveDecision(metrics.GateFriend, d)
	if !d.Allowed {
		return nil, d.Err()
	}

	var req model.CharacterFriendRequest
	err = s.st.Transaction(ctx, func(tx *store.Store) error {
		err := tx.DB(ctx).
			Where("sender_character_id = ? AND receiver_character_id = ?", sender.ID, receiver.ID).
			First(&req).Error
		switch {
		case err == nil:
			res := tx.DB(ctx).Model(&model.CharacterFriendRequest{}).
				Where("id = ? AND status <> ?", req.ID, model.FriendRequestPending).
				Updates(map[string]interface{}{
					"status":     model.FriendRequestPending,
					"message":    message,
					"updated_at": s.now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return social.Reject(social.CodeAlreadyRequested, "You have already sent a friend request to this character.")
			}
			return tx.DB(ctx).First(&req, req.ID).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			req = model.CharacterFriendRequest{
				SenderCharacterID:   sender.ID,
				ReceiverCharacterID: receiver.ID,
				Message:             message,
				Status:              model.FriendRequestPending,
			}
			if err := tx.DB(ctx).Create(&req).Error; err != nil {
				if store.IsUniqueViolation(err) {
					return social.Reject(social.CodeAlreadyRequested, "You have already sent a friend request to this character.")
				}
				return err
			}
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("friend request sent",
		zap.Int64("request_id", req.ID), zap.Int64("sender_id", sender.ID), zap.Int64("receiver_id", receiver.ID))
	s.notifier.Notify(ctx, notify.Event{
		Type:            notify.FriendRequested,
		UserID:          receiver.UserID,
		FromCharacterID: sender.ID,
		ToCharacterID:   receiver.ID,
		RefID:           req.ID,
	})
	return &req, nil
}

// pending loads a PENDING request whose receiver (or sender) belongs to userID.
func pending(ctx context.Context, st *store.Store, userID, requestID int64, asReceiver bool) (*model.CharacterFriendRequest, error) {
	var req model.CharacterFriendRequest
	if err := st.DB(ctx).First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, social.ErrNotFound
		}
		return nil, err
	}
	owner := req.SenderCharacterID
	if asReceiver {
		owner = req.ReceiverCharacterID
	}
	c, err := st.Character(ctx, owner)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, social.ErrForbidden
	}
	if req.Status != model.FriendRequestPending {
		return nil, social.ErrNotPending
	}
	return &req, nil
}

func (s *Service) setStatus(ctx context.Context, st *store.Store, req *model.CharacterFriendRequest, status model.FriendRequestStatus) error {
	res := st.DB(ctx).Model(&model.CharacterFriendRequest{}).
		Where("id = ? AND status = ?", req.ID, model.FriendRequestPending).
		Updates(map[string]interface{}{"status": status, "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return social.ErrNotPending
	}
	req.Status = status
	return nil
}

// Accept creates the friendship edge and marks the request ACCEPTED.
func (s *Service) Accept(ctx context.Context, userID, requestID int64) (*model.CharacterFriend, error) {
	var edge model.CharacterFriend
	var req *model.CharacterFriendRequest
	err := s.st.Transaction(ctx, func(tx *store.Store) error {
		var err error
		if req, err = pending(ctx, tx, userID, requestID, true); err != nil {
			return err
		}
		lo, hi := store.FriendPair(req.SenderCharacterID, req.ReceiverCharacterID)
		edge = model.CharacterFriend{CharacterID: lo, FriendID: hi}
		if err := tx.DB(ctx).Where(&edge).FirstOrCreate(&edge).Error; err != nil {
			return err
		}
		return s.setStatus(ctx, tx, req, model.FriendRequestAccepted)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("friend request accepted",
		zap.Int64("request_id", req.ID), zap.Int64("character_id", edge.CharacterID), zap.Int64("friend_id", edge.FriendID))
	if sender, err := s.st.Character(ctx, req.SenderCharacterID); err == nil {
		s.notifier.Notify(ctx, notify.Event{
			Type:            notify.FriendAccepted,
			UserID:          sender.UserID,
			FromCharacterID: req.ReceiverCharacterID,
			ToCharacterID:   req.SenderCharacterID,
			RefID:           req.ID,
		})
	}
	return &edge, nil
}

// Decline marks an incoming request DECLINED.
func (s *Service) Decline(ctx context.Context, userID, requestID int64) (*model.CharacterFriendRequest, error) {
	req, err := pending(ctx, s.st, userID, requestID, true)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, s.st, req, model.FriendRequestDeclined); err != nil {
		return nil, err
	}
	s.logger.Info("friend request declined", zap.Int64("request_id", req.ID))
	return req, nil
}

// Cancel withdraws an outgoing PENDING request.
func (s *Service) Cancel(ctx context.Context, userID, requestID int64) error {
	req, err := pending(ctx, s.st, userID, requestID, false)
	if err != nil {
		return err
	}
	res := s.st.DB(ctx).Where("id = ? AND status = ?", req.ID, model.FriendRequestPending).
		Delete(&model.CharacterFriendRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return social.ErrNotPending
	}
	return nil
}

// Remove deletes the friendship between charID and friendID.
func (s *Service) Remove(ctx context.Context, userID, charID, friendID int64) error {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return err
	}
	lo, hi := store.FriendPair(charID, friendID)
	res := s.st.DB(ctx).Where("character_id = ? AND friend_id = ?", lo, hi).Delete(&model.CharacterFriend{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return social.ErrNotFound
	}
	s.logger.Info("friend removed", zap.Int64("character_id", charID), zap.Int64("friend_id", friendID))
	return nil
}

// Friend is one entry in a character's friend list.
type Friend struct {
	CharacterID int64     `json:"character_id"`
	Nickname    string    `json:"nickname"`
	HashID      string    `json:"hash_id"`
	GameID      int64     `json:"game_id"`
	Since       time.Time `json:"since"`
}

// ListFriends returns charID's friends ordered by nickname.
func (s *Service) ListFriends(ctx context.Context, userID, charID int64) ([]Friend, error) {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	var edges []model.CharacterFriend
	if err := s.st.DB(ctx).Where("character_id = ? OR friend_id = ?", charID, charID).Find(&edges).Error; err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return []Friend{}, nil
	}
	since := make(map[int64]time.Time, len(edges))
	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		other := e.FriendID
		if other == charID {
			other = e.CharacterID
		}
		since[other] = e.CreatedAt
		ids = append(ids, other)
	}
	var chars []model.Character
	if err := s.st.DB(ctx).Where("id IN ?", ids).Order("nickname, id").Find(&chars).Error; err != nil {
		return nil, err
	}
	out := make([]Friend, 0, len(chars))
	for _, c := range chars {
		out = append(out, Friend{CharacterID: c.ID, Nickname: c.Nickname, HashID: c.HashID, GameID: c.GameID, Since: since[c.ID]})
	}
	return out, nil
}

// ListRequests returns charID's PENDING requests in the given direction,
// newest first.
func (s *Service) ListRequests(ctx context.Context, userID, charID int64, dir Direction) ([]model.CharacterFriendRequest, error) {
	if _, err := s.st.OwnedCharacter(ctx, userID, charID); err != nil {
		return nil, err
	}
	col := "receiver_character_id"
	if dir == Outgoing {
		col = "sender_character_id"
	}
	var reqs []model.CharacterFriendRequest
	err := s.st.DB(ctx).
		Where(col+" = ? AND status = ?", charID, model.FriendRequestPending).
		Order("created_at DESC, id DESC").Find(&reqs).Error
	return reqs, err
}

// AreFriends reports whether a and b share a friendship edge.
func (s *Service) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	return s.st.AreFriends(ctx, a, b)
}

// PendingTotal counts PENDING requests across all characters.
func (s *Service) PendingTotal(ctx context.Context) (int64, error) {
	var n int64
	err := s.st.DB(ctx).Model(&model.CharacterFriendRequest{}).
		Where("status = ?", model.FriendRequestPending).Count(&n).Error
	return n, err
}

// IncomingCount counts PENDING requests addressed to any of userID's characters.
func (s *Service) IncomingCount(ctx context.Context, userID int64) (int64, error) {
	mine, err := s.st.CharacterIDsForUser(ctx, userID)
	if err != nil || len(mine) == 0 {
		return 0, err
	}
	var n int64
	err = s.st.DB(ctx).Model(&model.CharacterFriendRequest{}).
		Where("receiver_character_id IN ? AND status = ?", mine, model.FriendRequestPending).
		Count(&n).Error
	return n, err
}
