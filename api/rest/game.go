package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	gameCatalogKey = "games:catalog"
	gameCatalogTTL = 5 * time.Minute
)

// GameHandler serves the game catalog.
type GameHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

func NewGameHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *GameHandler {
	return &GameHandler{db: db, cache: c, logger: logger}
}

type catalogEntry struct {
	model.Game
	Category string `json:"category,omitempty"`
}

// List handles GET /api/games. The catalog is read through the cache.
func (h *GameHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	if raw, err := h.cache.Get(ctx, gameCatalogKey); err == nil {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(raw))
		return
	} else if !cache.IsNotFound(err) {
		h.logger.Warn("game catalog cache read failed", zap.Error(err))
	}

	var games []model.Game
	if err := h.db.WithContext(ctx).Order("name").Find(&games).Error; err != nil {
		fail(c, err)
		return
	}
	var cats []model.GameCategory
	if err := h.db.WithContext(ctx).Find(&cats).Error; err != nil {
		fail(c, err)
		return
	}
	names := make(map[int64]string, len(cats))
	for _, cat := range cats {
		names[cat.ID] = cat.Name
	}
	entries := make([]catalogEntry, 0, len(games))
	for _, g := range games {
		e := catalogEntry{Game: g}
		if g.CategoryID != nil {
			e.Category = names[*g.CategoryID]
		}
		entries = append(entries, e)
	}

	body, err := json.Marshal(gin.H{"games": entries})
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.cache.Set(ctx, gameCatalogKey, string(body), gameCatalogTTL); err != nil {
		h.logger.Warn("game catalog cache write failed", zap.Error(err))
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Get handles GET /api/games/:slug.
func (h *GameHandler) Get(c *gin.Context) {
	var g model.Game
	err := h.db.WithContext(c.Request.Context()).Where("slug = ?", c.Param("slug")).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, social.ErrNotFound)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	var count int64
	h.db.WithContext(c.Request.Context()).Model(&model.Character{}).Where("game_id = ?", g.ID).Count(&count)
	c.JSON(http.StatusOK, gin.H{"game": g, "characters": count})
}

type createGameRequest struct {
	Name        string `json:"name"        binding:"required,max=200"`
	CategoryID  *int64 `json:"category_id"`
	Description string `json:"description" binding:"max=2000"`
}

// Create handles POST /api/games.
func (h *GameHandler) Create(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if req.CategoryID != nil {
		var n int64
		if err := h.db.WithContext(ctx).Model(&model.GameCategory{}).Where("id = ?", *req.CategoryID).Count(&n).Error; err != nil {
			fail(c, err)
			return
		}
		if n == 0 {
			fail(c, &social.ValidationError{Reasons: []string{"unknown category"}})
			return
		}
	}
	g := &model.Game{Name: strings.TrimSpace(req.Name), CategoryID: req.CategoryID, Description: req.Description}
	if err := h.db.WithContext(ctx).Create(g).Error; err != nil {
		if store.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "game already exists"})
			return
		}
		fail(c, err)
		return
	}
	h.invalidate(ctx)
	c.JSON(http.StatusCreated, g)
}

// Categories handles GET /api/games/categories.
func (h *GameHandler) Categories(c *gin.Context) {
	var cats []model.GameCategory
	if err := h.db.WithContext(c.Request.Context()).Order("name").Find(&cats).Error; err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

// CreateCategory handles POST /api/games/categories.
func (h *GameHandler) CreateCategory(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cat := &model.GameCategory{Name: strings.TrimSpace(req.Name)}
	if err := h.db.WithContext(c.Request.Context()).Create(cat).Error; err != nil {
		if store.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "category already exists"})
			return
		}
		fail(c, err)
		return
	}
	h.invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, cat)
}

func (h *GameHandler) invalidate(ctx context.Context) {
	if err := h.cache.Del(ctx, gameCatalogKey); err != nil {
		h.logger.Warn("game catalog cache invalidation failed", zap.Error(err))
	}
}
