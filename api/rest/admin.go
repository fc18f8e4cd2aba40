package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/scheduler"
	"github.com/kasuganosora/nickfinder/social/friend"
	"github.com/kasuganosora/nickfinder/social/poke"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reportsLimit = 100

// Announcer broadcasts a message to every connected client.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db        *gorm.DB
	pokes     *poke.Service
	friends   *friend.Service
	sched     *scheduler.Scheduler
	audit     *audit.Service
	announcer Announcer
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler. announcer may be nil.
func NewAdminHandler(
	db *gorm.DB,
	pokes *poke.Service,
	friends *friend.Service,
	sched *scheduler.Scheduler,
	a *audit.Service,
	announcer Announcer,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, pokes: pokes, friends: friends, sched: sched, audit: a, announcer: announcer, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	pendingPokes, err := h.pokes.PendingTotal(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	pendingRequests, err := h.friends.PendingTotal(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	var users int64
	if err := h.db.WithContext(ctx).Model(&model.User{}).Count(&users).Error; err != nil {
		fail(c, err)
		return
	}
	var tasks []scheduler.TaskInfo
	if h.sched != nil {
		tasks = h.sched.Tasks()
	}
	c.JSON(http.StatusOK, gin.H{
		"users":                   users,
		"pending_pokes":           pendingPokes,
		"pending_friend_requests": pendingRequests,
		"scheduler_tasks":         tasks,
	})
}

// Reports lists pokes reported as spam.
// GET /api/admin/reports
func (h *AdminHandler) Reports(c *gin.Context) {
	reports, err := h.pokes.SpamReports(c.Request.Context(), reportsLimit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// BanUser bans or unbans a user account. A ban stops new logins and token
// refreshes.
// POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status, action := model.UserStatusNormal, audit.ActionAdminUnban
	if req.Ban {
		status, action = model.UserStatusBanned, audit.ActionAdminBan
	}
	result := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", userID).Update("status", status)
	if result.Error != nil {
		fail(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	record(c, h.audit, action, 0, 0, gin.H{"user_id": userID}, nil)
	h.logger.Info("admin changed user status", zap.Int64("user_id", userID), zap.Bool("banned", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// Audit returns recent audit entries.
// GET /api/admin/audit?user_id=&action=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.audit.Recent(c.Request.Context(), audit.Query{
		UserID: userID,
		Action: c.Query("action"),
		Limit:  limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Announce pushes a message to every open notification stream.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if h.announcer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "announcements unavailable"})
		return
	}
	if err := h.announcer.Announce(c.Request.Context(), req.Message); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints answer 503.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
