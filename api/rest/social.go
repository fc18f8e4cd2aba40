package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social/block"
	"github.com/kasuganosora/nickfinder/social/friend"
	"github.com/kasuganosora/nickfinder/social/messaging"
	"github.com/kasuganosora/nickfinder/social/poke"
	"github.com/kasuganosora/nickfinder/social/reveal"
)

// SocialHandler handles reveals, blocks, friends and notification counts.
type SocialHandler struct {
	reveals  *reveal.Ledger
	blocks   *block.Service
	friends  *friend.Service
	pokes    *poke.Service
	messages *messaging.Service
	audit    *audit.Service
}

// NewSocialHandler creates a SocialHandler.
func NewSocialHandler(reveals *reveal.Ledger, blocks *block.Service, friends *friend.Service,
	pokes *poke.Service, messages *messaging.Service, a *audit.Service) *SocialHandler {
	return &SocialHandler{reveals: reveals, blocks: blocks, friends: friends, pokes: pokes, messages: messages, audit: a}
}

type revealRequest struct {
	RevealerID int64 `json:"revealer_id" binding:"required"`
	TargetID   int64 `json:"target_id"   binding:"required"`
}

type blockRequest struct {
	BlockerID int64  `json:"blocker_id" binding:"required"`
	BlockedID int64  `json:"blocked_id" binding:"required"`
	Reason    string `json:"reason"     binding:"max=255"`
}

// ---- identity reveals ----

// Reveal handles POST /api/reveals {revealer_id, target_id}.
func (h *SocialHandler) Reveal(c *gin.Context) {
	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.reveals.Reveal(c.Request.Context(), mw.GetUserID(c), req.RevealerID, req.TargetID)
	record(c, h.audit, audit.ActionRevealCreate, req.RevealerID, req.TargetID, nil, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Revoke handles DELETE /api/reveals.
func (h *SocialHandler) Revoke(c *gin.Context) {
	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.reveals.Revoke(c.Request.Context(), mw.GetUserID(c), req.RevealerID, req.TargetID)
	record(c, h.audit, audit.ActionRevealRevoke, req.RevealerID, req.TargetID, nil, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListReveals handles GET /api/characters/:id/reveals.
func (h *SocialHandler) ListReveals(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	given, err := h.reveals.ListByRevealer(ctx, userID, charID)
	if err != nil {
		fail(c, err)
		return
	}
	received, err := h.reveals.ListRevealedTo(ctx, userID, charID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revealed_to": given, "revealed_by": received})
}

// ---- blocks ----

// Block handles POST /api/blocks {blocker_id, blocked_id, reason}.
func (h *SocialHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.blocks.Block(c.Request.Context(), mw.GetUserID(c), req.BlockerID, req.BlockedID, req.Reason)
	record(c, h.audit, audit.ActionBlockCreate, req.BlockerID, req.BlockedID, gin.H{"kind": "character", "reason": req.Reason}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Unblock handles DELETE /api/blocks .
func (h *SocialHandler) Unblock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := h.blocks.Unblock(c.Request.Context(), mw.GetUserID(c), req.BlockerID, req.BlockedID)
	record(c, h.audit, audit.ActionBlockRemove, req.BlockerID, req.BlockedID, gin.H{"kind": "character"}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}

// BlockPokes handles POST /api/poke-blocks {blocker_id, blocked_id, reason}.
func (h *SocialHandler) BlockPokes(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.blocks.BlockPokes(c.Request.Context(), mw.GetUserID(c), req.BlockerID, req.BlockedID, req.Reason)
	record(c, h.audit, audit.ActionBlockCreate, req.BlockerID, req.BlockedID, gin.H{"kind": "poke", "reason": req.Reason}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// UnblockPokes handles DELETE /api/poke-blocks .
func (h *SocialHandler) UnblockPokes(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := h.blocks.UnblockPokes(c.Request.Context(), mw.GetUserID(c), req.BlockerID, req.BlockedID)
	record(c, h.audit, audit.ActionBlockRemove, req.BlockerID, req.BlockedID, gin.H{"kind": "poke"}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unblocked"})
}

// ListBlocked handles GET /api/characters/:id/blocked.
func (h *SocialHandler) ListBlocked(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.blocks.ListBlocked(c.Request.Context(), mw.GetUserID(c), charID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": list})
}

// ---- friends ----

// SendFriendRequest handles POST /api/friends/requests.
func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	var req struct {
		SenderID   int64  `json:"sender_id"   binding:"required"`
		ReceiverID int64  `json:"receiver_id" binding:"required"`
		Message    string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fr, err := h.friends.SendRequest(c.Request.Context(), mw.GetUserID(c), req.SenderID, req.ReceiverID, req.Message)
	record(c, h.audit, audit.ActionFriendRequest, req.SenderID, req.ReceiverID, nil, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, fr)
}

// AcceptFriendRequest handles POST /api/friends/requests/:id/accept.
func (h *SocialHandler) AcceptFriendRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	edge, err := h.friends.Accept(c.Request.Context(), mw.GetUserID(c), id)
	record(c, h.audit, audit.ActionFriendAccept, 0, 0, gin.H{"request_id": id}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, edge)
}

// DeclineFriendRequest handles POST /api/friends/requests/:id/decline.
func (h *SocialHandler) DeclineFriendRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	fr, err := h.friends.Decline(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fr)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:id.
func (h *SocialHandler) CancelFriendRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.friends.Cancel(c.Request.Context(), mw.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancelled"})
}

// ListFriends handles GET /api/characters/:id/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	friends, err := h.friends.ListFriends(c.Request.Context(), mw.GetUserID(c), charID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListFriendRequests handles GET /api/characters/:id/friend-requests?direction=incoming|outgoing.
func (h *SocialHandler) ListFriendRequests(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	dir := friend.Direction(c.DefaultQuery("direction", string(friend.Incoming)))
	if dir != friend.Incoming && dir != friend.Outgoing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid direction"})
		return
	}
	reqs, err := h.friends.ListRequests(c.Request.Context(), mw.GetUserID(c), charID, dir)
	if err != nil {
		fail(c, err)
		return
	}
	if reqs == nil {
		reqs = []model.CharacterFriendRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// RemoveFriend handles DELETE /api/characters/:id/friends/:friend_id.
func (h *SocialHandler) RemoveFriend(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	friendID, ok := paramID(c, "friend_id")
	if !ok {
		return
	}
	err := h.friends.Remove(c.Request.Context(), mw.GetUserID(c), charID, friendID)
	record(c, h.audit, audit.ActionFriendRemove, charID, friendID, nil, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// ---- notifications ----

// Unread handles GET /api/notifications/unread.
func (h *SocialHandler) Unread(c *gin.Context) {
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	pokes, err := h.pokes.UnreadCount(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	messages, err := h.messages.UnreadCount(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	requests, err := h.friends.IncomingCount(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pokes":           pokes,
		"messages":        messages,
		"friend_requests": requests,
		"total":           pokes + messages + requests,
	})
}
