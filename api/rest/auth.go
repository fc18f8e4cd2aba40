package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/config"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social/store"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 12

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
	audit *audit.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, a *audit.Service) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec, audit: a}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=2,max=32,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=64"`
	Email    string `json:"email"    binding:"omitempty,email,max=128"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		fail(c, err)
		return
	}
	u := &model.User{
		Username:          req.Username,
		PasswordHash:      string(hash),
		Email:             req.Email,
		Status:            model.UserStatusNormal,
		ProfileVisibility: model.VisibilityPublic,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(u).Error; err != nil {
		if store.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		fail(c, err)
		return
	}
	c.Set(mw.UserIDKey, u.ID)
	record(c, h.audit, audit.ActionRegister, 0, 0, nil, nil)
	h.issue(c, u, http.StatusCreated)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var u model.User
	err := h.db.WithContext(c.Request.Context()).Where("username = ?", req.Username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if u.Status == model.UserStatusBanned {
		c.JSON(http.StatusForbidden, gin.H{"error": "account banned"})
		return
	}

	now := time.Now().UTC()
	_ = h.db.Model(&u).Updates(map[string]interface{}{
		"last_login_at": now,
		"last_login_ip": c.ClientIP(),
	})
	c.Set(mw.UserIDKey, u.ID)
	record(c, h.audit, audit.ActionLogin, 0, 0, nil, nil)
	h.issue(c, &u, http.StatusOK)
}

// issue signs a token for u and stores its session.
func (h *AuthHandler) issue(c *gin.Context, u *model.User, status int) {
	token, err := mw.GenerateToken(u.ID, u.Username, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		fail(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), strconv.FormatInt(u.ID, 10), h.sec.JWTTTLH); err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, gin.H{"token": token, "user_id": u.ID, "username": u.Username})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(mw.GetToken(c)))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh. The old token stops working.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var u model.User
	if err := h.db.WithContext(c.Request.Context()).First(&u, mw.GetUserID(c)).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if u.Status == model.UserStatusBanned {
		c.JSON(http.StatusForbidden, gin.H{"error": "account banned"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(mw.GetToken(c)))
	h.issue(c, &u, http.StatusOK)
}
