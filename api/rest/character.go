package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/audit"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/store"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minYear        = 1900
	maxYear        = 2099
	searchPageSize = 10
)

// likeEscaper makes LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	st    *store.Store
	audit *audit.Service
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(st *store.Store, a *audit.Service) *CharacterHandler {
	return &CharacterHandler{st: st, audit: a}
}

// publicCharacter is a character as other users see it: no owner.
type publicCharacter struct {
	ID          int64  `json:"id"`
	HashID      string `json:"hash_id"`
	Nickname    string `json:"nickname"`
	GameID      int64  `json:"game_id"`
	Game        string `json:"game"`
	GameSlug    string `json:"game_slug"`
	Description string `json:"description"`
	YearStarted *int   `json:"year_started"`
	YearEnded   *int   `json:"year_ended"`
}

func publicCharacters(ctx context.Context, st *store.Store, chars []model.Character) ([]publicCharacter, error) {
	out := make([]publicCharacter, 0, len(chars))
	if len(chars) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(chars))
	for _, ch := range chars {
		ids = append(ids, ch.GameID)
	}
	var games []model.Game
	if err := st.DB(ctx).Where("id IN ?", ids).Find(&games).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Game, len(games))
	for _, g := range games {
		byID[g.ID] = g
	}
	for _, ch := range chars {
		g := byID[ch.GameID]
		out = append(out, publicCharacter{
			ID:          ch.ID,
			HashID:      ch.HashID,
			Nickname:    ch.Nickname,
			GameID:      ch.GameID,
			Game:        g.Name,
			GameSlug:    g.Slug,
			Description: ch.Description,
			YearStarted: ch.YearStarted,
			YearEnded:   ch.YearEnded,
		})
	}
	return out, nil
}

// validateCharacter checks the trimmed nickname and the played years.
func validateCharacter(nickname string, started, ended *int) error {
	var reasons []string
	if nickname == "" {
		reasons = append(reasons, "nickname cannot be blank")
	}
	for _, y := range []struct {
		name string
		v    *int
	}{{"year_started", started}, {"year_ended", ended}} {
		if y.v != nil && (*y.v < minYear || *y.v > maxYear) {
			reasons = append(reasons, fmt.Sprintf("%s must be between %d and %d", y.name, minYear, maxYear))
		}
	}
	if started != nil && ended != nil && *started > *ended {
		reasons = append(reasons, "year_started cannot be after year_ended")
	}
	if len(reasons) > 0 {
		return &social.ValidationError{Reasons: reasons}
	}
	return nil
}

// List handles GET /api/characters.
func (h *CharacterHandler) List(c *gin.Context) {
	chars, err := h.st.CharactersForUser(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

type characterRequest struct {
	Nickname    string `json:"nickname"     binding:"required,min=1,max=32"`
	GameID      int64  `json:"game_id"      binding:"required"`
	Description string `json:"description"  binding:"max=500"`
	YearStarted *int   `json:"year_started"`
	YearEnded   *int   `json:"year_ended"`
}

// Create handles POST /api/characters.
func (h *CharacterHandler) Create(c *gin.Context) {
	var req characterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := validateCharacter(req.Nickname, req.YearStarted, req.YearEnded); err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	var n int64
	if err := h.st.DB(ctx).Model(&model.Game{}).Where("id = ?", req.GameID).Count(&n).Error; err != nil {
		fail(c, err)
		return
	}
	if n == 0 {
		fail(c, &social.ValidationError{Reasons: []string{"unknown game"}})
		return
	}

	char := &model.Character{
		UserID:      mw.GetUserID(c),
		Nickname:    req.Nickname,
		GameID:      req.GameID,
		Description: req.Description,
		YearStarted: req.YearStarted,
		YearEnded:   req.YearEnded,
	}
	if err := h.st.CreateCharacter(ctx, char); err != nil {
		fail(c, err)
		return
	}
	record(c, h.audit, audit.ActionCharCreate, char.ID, 0, gin.H{"nickname": char.Nickname, "game_id": char.GameID}, nil)
	c.JSON(http.StatusCreated, char)
}

// Update handles PUT /api/characters/:id. The game cannot change.
func (h *CharacterHandler) Update(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Nickname    string `json:"nickname"     binding:"required,min=1,max=32"`
		Description string `json:"description"  binding:"max=500"`
		YearStarted *int   `json:"year_started"`
		YearEnded   *int   `json:"year_ended"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := validateCharacter(req.Nickname, req.YearStarted, req.YearEnded); err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	char, err := h.st.OwnedCharacter(ctx, mw.GetUserID(c), charID)
	if err != nil {
		fail(c, err)
		return
	}
	err = h.st.DB(ctx).Model(char).Updates(map[string]interface{}{
		"nickname":     req.Nickname,
		"description":  req.Description,
		"year_started": req.YearStarted,
		"year_ended":   req.YearEnded,
	}).Error
	if err != nil {
		if store.IsUniqueViolation(err) {
			fail(c, social.Reject(social.CodeDuplicate, "you already have a character with this nickname in this game"))
			return
		}
		fail(c, err)
		return
	}
	char, err = h.st.Character(ctx, charID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, char)
}

// Delete handles DELETE /api/characters/:id. The account password must be
// confirmed; everything referencing the character is removed with it.
func (h *CharacterHandler) Delete(c *gin.Context) {
	charID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	u, err := h.st.User(ctx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}
	if _, err := h.st.OwnedCharacter(ctx, userID, charID); err != nil {
		fail(c, err)
		return
	}
	if err := h.st.DeleteCharacter(ctx, charID); err != nil {
		fail(c, err)
		return
	}
	record(c, h.audit, audit.ActionCharDelete, charID, 0, nil, nil)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ByHash handles GET /api/handles/:hash.
func (h *CharacterHandler) ByHash(c *gin.Context) {
	ctx := c.Request.Context()
	char, err := h.st.CharacterByHash(ctx, c.Param("hash"))
	if err != nil {
		fail(c, err)
		return
	}
	views, err := publicCharacters(ctx, h.st, []model.Character{*char})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views[0])
}

// Search handles GET /api/search/characters?game=&year=&q=&page=.
// year matches characters whose played range covers it; an open range end
// counts as still playing.
func (h *CharacterHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	q := h.st.DB(ctx).Model(&model.Character{})

	if slug := c.Query("game"); slug != "" {
		q = q.Where("game_id IN (?)", h.st.DB(ctx).Model(&model.Game{}).Select("id").Where("slug = ?", slug))
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < minYear || year > maxYear {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		q = q.Where("year_started IS NOT NULL AND year_started <= ? AND (year_ended IS NULL OR year_ended >= ?)", year, year)
	}
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		q = q.Where("LOWER(nickname) LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(strings.ToLower(term))+"%")
	}

	q = q.Session(&gorm.Session{})

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		fail(c, err)
		return
	}
	var chars []model.Character
	if err := q.Order("nickname, id").Offset((page - 1) * searchPageSize).Limit(searchPageSize).Find(&chars).Error; err != nil {
		fail(c, err)
		return
	}
	views, err := publicCharacters(ctx, h.st, chars)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   views,
		"page":      page,
		"page_size": searchPageSize,
		"total":     total,
	})
}
