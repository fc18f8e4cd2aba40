package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social/poke"
	"github.com/kasuganosora/nickfinder/social/store"
)

// PokeHandler exposes the contact gate.
type PokeHandler struct {
	st    *store.Store
	pokes *poke.Service
	audit *audit.Service
}

func NewPokeHandler(st *store.Store, pokes *poke.Service, a *audit.Service) *PokeHandler {
	return &PokeHandler{st: st, pokes: pokes, audit: a}
}

// pokeView adds the derived unlock flags to a poke.
type pokeView struct {
	model.Poke
	Mutual          bool `json:"mutual"`
	CanSendFullText bool `json:"can_send_full_message"`
}

func (h *PokeHandler) view(c *gin.Context, p *model.Poke) (pokeView, error) {
	ctx := c.Request.Context()
	mutual, err := h.pokes.IsMutual(ctx, p)
	if err != nil {
		return pokeView{}, err
	}
	full, err := h.pokes.CanSendFullMessage(ctx, p)
	if err != nil {
		return pokeView{}, err
	}
	return pokeView{Poke: *p, Mutual: mutual, CanSendFullText: full}, nil
}

// Check handles GET /api/pokes/check?receiver_id=&sender_id=. Without
// sender_id the per-pair checks are skipped.
func (h *PokeHandler) Check(c *gin.Context) {
	receiverID, ok := queryID(c, "receiver_id")
	if !ok {
		return
	}
	senderID, ok := queryID(c, "sender_id")
	if !ok {
		return
	}
	if receiverID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver_id required"})
		return
	}
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	receiver, err := h.st.Character(ctx, receiverID)
	if err != nil {
		fail(c, err)
		return
	}
	var sender *model.Character
	if senderID != 0 {
		if sender, err = h.st.OwnedCharacter(ctx, userID, senderID); err != nil {
			fail(c, err)
			return
		}
	}
	d, err := h.pokes.CanSendPoke(ctx, userID, receiver, sender)
	if err != nil {
		fail(c, err)
		return
	}
	remaining, err := h.pokes.Remaining(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": d, "remaining": remaining})
}

// Remaining handles GET /api/pokes/remaining.
func (h *PokeHandler) Remaining(c *gin.Context) {
	n, err := h.pokes.Remaining(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": n})
}

type sendPokeRequest struct {
	SenderID   int64  `json:"sender_id"   binding:"required"`
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content"`
}

// Send handles POST /api/pokes.
func (h *PokeHandler) Send(c *gin.Context) {
	var req sendPokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.pokes.SendPoke(c.Request.Context(), mw.GetUserID(c), req.SenderID, req.ReceiverID, req.Content)
	record(c, h.audit, audit.ActionPokeSend, req.SenderID, req.ReceiverID, gin.H{"content": req.Content}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Get handles GET /api/pokes/:id.
func (h *PokeHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.pokes.Get(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	v, err := h.view(c, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// List handles GET /api/characters/:id/pokes?filter=all|received|sent|pending.
func (h *PokeHandler) List(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	filter := poke.Filter(c.DefaultQuery("filter", string(poke.FilterAll)))
	switch filter {
	case poke.FilterAll, poke.FilterReceived, poke.FilterSent, poke.FilterPending:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter"})
		return
	}
	pokes, err := h.pokes.List(c.Request.Context(), mw.GetUserID(c), charID, filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pokes": pokes})
}

// Respond handles POST /api/pokes/:id/respond.
func (h *PokeHandler) Respond(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	reply, err := h.pokes.Respond(c.Request.Context(), mw.GetUserID(c), id)
	record(c, h.audit, audit.ActionPokeRespond, 0, 0, gin.H{"poke_id": id}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

// Ignore handles POST /api/pokes/:id/ignore.
func (h *PokeHandler) Ignore(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.pokes.Ignore(c.Request.Context(), mw.GetUserID(c), id)
	record(c, h.audit, audit.ActionPokeIgnore, 0, 0, gin.H{"poke_id": id}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Block handles POST /api/pokes/:id/block.
func (h *PokeHandler) Block(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason     string `json:"reason"      binding:"max=255"`
		ReportSpam bool   `json:"report_spam"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	p, err := h.pokes.Block(c.Request.Context(), mw.GetUserID(c), id, req.Reason, req.ReportSpam)
	record(c, h.audit, audit.ActionPokeBlock, 0, 0, gin.H{"poke_id": id, "report_spam": req.ReportSpam}, err)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
