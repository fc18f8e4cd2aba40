package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/social/messaging"
	"github.com/kasuganosora/nickfinder/social/store"
)

// MessageHandler exposes the messaging gate and threads.
type MessageHandler struct {
	st       *store.Store
	messages *messaging.Service
	audit    *audit.Service
}

func NewMessageHandler(st *store.Store, messages *messaging.Service, a *audit.Service) *MessageHandler {
	return &MessageHandler{st: st, messages: messages, audit: a}
}

// Check handles GET /api/messages/check?sender_id=&receiver_id=.
func (h *MessageHandler) Check(c *gin.Context) {
	senderID, ok := queryID(c, "sender_id")
	if !ok {
		return
	}
	receiverID, ok := queryID(c, "receiver_id")
	if !ok {
		return
	}
	if senderID == 0 || receiverID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_id and receiver_id required"})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.st.OwnedCharacter(ctx, mw.GetUserID(c), senderID); err != nil {
		fail(c, err)
		return
	}
	d, err := h.messages.CanSendMessage(ctx, senderID, receiverID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": d})
}

// Send handles POST /api/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		SenderID   int64  `json:"sender_id"   binding:"required"`
		ReceiverID int64  `json:"receiver_id" binding:"required"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), mw.GetUserID(c), req.SenderID, req.ReceiverID, req.Content)
	record(c, h.audit, audit.ActionMessageSend, req.SenderID, req.ReceiverID, nil, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Conversations handles GET /api/characters/:id/conversations.
func (h *MessageHandler) Conversations(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	convs, err := h.messages.Conversations(c.Request.Context(), mw.GetUserID(c), charID)
	if err != nil {
		fail(c, err)
		return
	}
	if convs == nil {
		convs = []messaging.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Thread handles GET /api/characters/:id/threads/:thread_id.
func (h *MessageHandler) Thread(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.messages.Thread(c.Request.Context(), mw.GetUserID(c), charID, c.Param("thread_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": c.Param("thread_id"), "messages": msgs})
}
