package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/nickfinder/api/rest"
	"github.com/kasuganosora/nickfinder/api/sse"
	"github.com/kasuganosora/nickfinder/audit"
	"github.com/kasuganosora/nickfinder/cache"
	"github.com/kasuganosora/nickfinder/config"
	dbadapter "github.com/kasuganosora/nickfinder/db"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/model"
	"github.com/kasuganosora/nickfinder/scheduler"
	"github.com/kasuganosora/nickfinder/social/block"
	"github.com/kasuganosora/nickfinder/social/friend"
	"github.com/kasuganosora/nickfinder/social/messaging"
	"github.com/kasuganosora/nickfinder/social/notify"
	"github.com/kasuganosora/nickfinder/social/poke"
	"github.com/kasuganosora/nickfinder/social/reveal"
	"github.com/kasuganosora/nickfinder/social/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	envFiles := config.LoadDotEnv()

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if len(envFiles) > 0 {
		logger.Info("loaded env files", zap.Strings("files", envFiles))
	}
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	c, pubsub, closeCache, err := cache.Open(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer closeCache()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Social services ----
	st := store.New(db)
	notifier := notify.NewPubSub(pubsub, logger)
	pokes := poke.New(st, cfg.Poke, notifier, logger)
	messages := messaging.New(st, cfg.Messaging, notifier, logger)
	reveals := reveal.New(st, logger)
	blocks := block.New(st, logger)
	friends := friend.New(st, notifier, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddTicker(scheduler.StatsTaskName, cfg.Scheduler.StatsInterval, true, scheduler.RefreshStats(db))

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), mw.Metrics())
	r.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apirest.Routes(r, apirest.Deps{
		DB:        db,
		Cache:     c,
		Store:     st,
		Server:    cfg.Server,
		Security:  cfg.Security,
		Pokes:     pokes,
		Messages:  messages,
		Reveals:   reveals,
		Blocks:    blocks,
		Friends:   friends,
		Audit:     auditSvc,
		Scheduler: sched,
		SSE:       sse.NewHandler(pubsub, logger),
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(ctx)
}

// corsMiddleware allows the configured origins; an empty list allows any
// origin without credentials.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", mw.TraceIDHeader},
		ExposeHeaders: []string{mw.TraceIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
