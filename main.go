package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"xmrstats/config"
	"xmrstats/handlers"
	"xmrstats/middleware"
	"xmrstats/services"
)

func main() {
	// 1. Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Log)

	log.Info("=== Configuration ===")
	log.Infof("Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Monerod: %s", cfg.Monerod.RPCURL)
	log.Infof("P2Pool: %s", cfg.P2Pool.APIURL)
	log.Infof("Cache TTL: %ds", cfg.Cache.TTL)

	// 2. Core Services
	discordBot, err := services.NewDiscordBotService(cfg.Discord.BotToken, cfg.Discord.ChannelID)
	if err != nil {
		log.Warnf("Discord bot initialization failed: %v", err)
		log.Warn("Discord notifications will be disabled")
		discordBot = &services.DiscordBotService{}
	}
	defer discordBot.Close()

	monerod := services.NewMonerodClient(cfg)
	p2pool := services.NewP2PoolClient(cfg)
	cache := services.NewCacheService(cfg)
	stats := services.NewStatsService(monerod, p2pool, cache, services.NewProcessMetrics(), discordBot)

	// 3. Start Background Services
	log.Info("=== Starting Services ===")

	cache.Start()
	log.Infof("Cache Service started (mode: %s)", cache.Mode())

	stats.StartCacheWarmer(cfg.StatsIntervalDuration())

	// 4. Web Server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RecoverMiddleware())
	e.Use(middleware.LoggerMiddleware())
	e.Use(middleware.SecureMiddleware())
	e.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	// 5. Handlers
	h := handlers.NewHandler(stats)

	// 6. Routes
	e.GET("/health", h.GetHealth)
	e.GET("/cache/status", h.GetCacheStatus)
	e.POST("/cache/clear", h.ClearCache)

	api := e.Group("/api")

	statsGroup := api.Group("/stats")
	statsGroup.GET("", h.GetStats)
	statsGroup.GET("/monerod", h.GetMonerodStats)
	statsGroup.GET("/p2pool", h.GetP2PoolStats)
	statsGroup.GET("/system", h.GetSystemStats)
	statsGroup.GET("/connections", h.GetConnections)

	api.GET("/monerod/hashrate", h.GetNetworkHashrate)

	// 7. Start Server with Graceful Shutdown
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		log.Infof("Server running on http://%s", serverAddr)
		if err := e.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("shutting down the server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("Graceful shutdown initiated...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Stopping services...")
	stats.Stop()
	cache.Stop()
	log.Info("All services stopped")

	if err := e.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
	log.Info("Server exited cleanly")
}

func setupLogging(lc config.LogConfig) {
	if strings.EqualFold(lc.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", lc.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
