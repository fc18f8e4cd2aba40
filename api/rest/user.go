package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/social"
	"github.com/kasuganosora/nickfinder/social/store"
)

// UserHandler serves the account profile endpoints.
type UserHandler struct {
	st *store.Store
}

func NewUserHandler(st *store.Store) *UserHandler {
	return &UserHandler{st: st}
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.st.User(ctx, mw.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	chars, err := h.st.CharactersForUser(ctx, u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "characters": chars})
}

type updateMeRequest struct {
	Email             *string                  `json:"email"              binding:"omitempty,email,max=128"`
	ProfileVisibility *model.ProfileVisibility `json:"profile_visibility"`
}

// UpdateMe handles PUT /api/users/me.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updates := map[string]interface{}{}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.ProfileVisibility != nil {
		if !req.ProfileVisibility.Valid() {
			fail(c, &social.ValidationError{Reasons: []string{"profile_visibility must be PUBLIC, FRIENDS_ONLY or PRIVATE"}})
			return
		}
		updates["profile_visibility"] = *req.ProfileVisibility
	}
	ctx := c.Request.Context()
	userID := mw.GetUserID(c)
	if len(updates) > 0 {
		if err := h.st.DB(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			fail(c, err)
			return
		}
	}
	u, err := h.st.User(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

type profileResponse struct {
	Username    string                  `json:"username"`
	Visibility  model.ProfileVisibility `json:"profile_visibility"`
	MemberSince string                  `json:"member_since"`
	Characters  []publicCharacter       `json:"characters"`
}

// Profile handles GET /api/users/:username. PRIVATE profiles are visible to
// their owner only; FRIENDS_ONLY also to users with a friendship between any
// of their characters.
func (h *UserHandler) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.st.UserByName(ctx, c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	viewer := mw.GetUserID(c)
	if viewer != u.ID {
		switch u.Visibility() {
		case model.VisibilityPrivate:
			c.JSON(http.StatusForbidden, gin.H{"error": "this profile is private"})
			return
		case model.VisibilityFriendsOnly:
			ok, err := h.st.UsersAreFriends(ctx, viewer, u.ID)
			if err != nil {
				fail(c, err)
				return
			}
			if !ok {
				c.JSON(http.StatusForbidden, gin.H{"error": "this profile is visible to friends only"})
				return
			}
		}
	}
	chars, err := h.st.CharactersForUser(ctx, u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	views, err := publicCharacters(ctx, h.st, chars)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		Username:   u.Username,
		Visibility: u.Visibility(),
		MemberSince: u.CreatedAt.UTC().Format(time.DateOnly),
		Characters: views,
	})
}
