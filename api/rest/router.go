package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/api/sse"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/config"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/scheduler"
	"github.com/kasuganosora/nickfinder/social/block"
	"github.com/kasuganosora/nickfinder/social/friend"
	"github.com/kasuganosora/nickfinder/social/messaging"
	"github.com/kasuganosora/nickfinder/social/poke"
	"github.com/kasuganosora/nickfinder/social/reveal"
	"github.com/kasuganosora/nickfinder/social/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Deps is everything the HTTP surface needs. SSE and Scheduler may be nil.
type Deps struct {
	DB        *gorm.DB
	Cache     cache.Cache
	Store     *store.Store
	Server    config.ServerConfig
	Security  config.SecurityConfig
	Pokes     *poke.Service
	Messages  *messaging.Service
	Reveals   *reveal.Ledger
	Blocks    *block.Service
	Friends   *friend.Service
	Audit     *audit.Service
	Scheduler *scheduler.Scheduler
	SSE       *sse.Handler
	Logger    *zap.Logger
}

// Per-user limit on state-changing social writes, on top of the global
// per-IP limiter.
const (
	writeRPS   = 2
	writeBurst = 20
)

// Routes registers the REST API, and /sse when d.SSE is set, on r.
func Routes(r gin.IRouter, d Deps) {
	authH := NewAuthHandler(d.DB, d.Cache, d.Security, d.Audit)
	userH := NewUserHandler(d.Store)
	gameH := NewGameHandler(d.DB, d.Cache, d.Logger)
	charH := NewCharacterHandler(d.Store, d.Audit)
	pokeH := NewPokeHandler(d.Store, d.Pokes, d.Audit)
	msgH := NewMessageHandler(d.Store, d.Messages, d.Audit)
	socialH := NewSocialHandler(d.Reveals, d.Blocks, d.Friends, d.Pokes, d.Messages, d.Audit)
	var announcer Announcer
	if d.SSE != nil {
		announcer = d.SSE
	}
	adminH := NewAdminHandler(d.DB, d.Pokes, d.Friends, d.Scheduler, d.Audit, announcer, d.Logger)

	auth := mw.Auth(d.Security, d.Cache)
	writes := mw.RateLimitBy(rate.Limit(writeRPS), writeBurst, mw.ByUser)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		usersG := api.Group("/users", auth)
		usersG.GET("/me", userH.Me)
		usersG.PUT("/me", userH.UpdateMe)
		usersG.GET("/:username", userH.Profile)

		gamesG := api.Group("/games")
		gamesG.GET("", gameH.List)
		gamesG.GET("/categories", gameH.Categories)
		gamesG.GET("/:slug", gameH.Get)
		gamesG.POST("", auth, gameH.Create)
		gamesG.POST("/categories", auth, gameH.CreateCategory)

		api.GET("/handles/:hash", charH.ByHash)
		api.GET("/search/characters", charH.Search)

		charsG := api.Group("/characters", auth)
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)
		charsG.PUT("/:id", charH.Update)
		charsG.DELETE("/:id", charH.Delete)
		charsG.GET("/:id/pokes", pokeH.List)
		charsG.GET("/:id/conversations", msgH.Conversations)
		charsG.GET("/:id/threads/:thread_id", msgH.Thread)
		charsG.GET("/:id/friends", socialH.ListFriends)
		charsG.DELETE("/:id/friends/:friend_id", socialH.RemoveFriend)
		charsG.GET("/:id/friend-requests", socialH.ListFriendRequests)
		charsG.GET("/:id/blocked", socialH.ListBlocked)
		charsG.GET("/:id/reveals", socialH.ListReveals)

		pokesG := api.Group("/pokes", auth)
		pokesG.GET("/check", pokeH.Check)
		pokesG.GET("/remaining", pokeH.Remaining)
		pokesG.POST("", writes, pokeH.Send)
		pokesG.GET("/:id", pokeH.Get)
		pokesG.POST("/:id/respond", writes, pokeH.Respond)
		pokesG.POST("/:id/ignore", pokeH.Ignore)
		pokesG.POST("/:id/block", pokeH.Block)

		msgG := api.Group("/messages", auth)
		msgG.GET("/check", msgH.Check)
		msgG.POST("", writes, msgH.Send)

		api.POST("/reveals", auth, socialH.Reveal)
		api.DELETE("/reveals", auth, socialH.Revoke)
		api.POST("/blocks", auth, socialH.Block)
		api.DELETE("/blocks", auth, socialH.Unblock)
		api.POST("/poke-blocks", auth, socialH.BlockPokes)
		api.DELETE("/poke-blocks", auth, socialH.UnblockPokes)

		friendsG := api.Group("/friends/requests", auth)
		friendsG.POST("", writes, socialH.SendFriendRequest)
		friendsG.POST("/:id/accept", socialH.AcceptFriendRequest)
		friendsG.POST("/:id/decline", socialH.DeclineFriendRequest)
		friendsG.DELETE("/:id", socialH.CancelFriendRequest)

		api.GET("/notifications/unread", auth, socialH.Unread)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(d.Server.AdminIPs), AdminAuth(d.Server.AdminKey))
		adminG.GET("/reports", adminH.Reports)
		adminG.POST("/users/:id/ban", adminH.BanUser)
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/audit", adminH.Audit)
		adminG.POST("/announce", adminH.Announce)
	}

	if d.SSE != nil {
		r.GET("/sse", auth, d.SSE.ServeSSE)
	}
}
