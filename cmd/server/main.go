package main

import (
	"flag"
	stdlog "log"

	"subhub/internal/api"
	"subhub/internal/config"
	"subhub/internal/database"
	"subhub/internal/logger"
	"subhub/internal/metrics"
	"subhub/internal/models"
	"subhub/internal/scheduler"
	"subhub/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// initDefaultAdmin seeds the admin account on first boot
func initDefaultAdmin(authService *services.AuthService) {
	db := database.GetDB()

	var existing models.User
	if err := db.Where("username = ?", "admin").First(&existing).Error; err == nil {
		return
	}

	hashed, err := authService.HashPassword("admin123")
	if err != nil {
		logger.L().Error("failed to hash default admin password", zap.Error(err))
		return
	}

	admin := models.User{
		Username: "admin",
		Password: hashed,
		Email:    "admin@example.com",
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		logger.L().Error("failed to create default admin account", zap.Error(err))
		return
	}

	logger.L().Warn("default admin account created, change the password",
		zap.String("username", "admin"))
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		stdlog.Fatalf("Invalid config: %v", err)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	log := logger.L()

	if err := database.InitDB(&cfg.Database); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	log.Info("database initialized", zap.String("type", cfg.Database.Type))

	db := database.GetDB()

	metrics.MustRegister()

	// Services
	zones := services.NewCloudflareZones(&cfg.Cloudflare, cfg.CloudflareTimeout())
	notifyService := services.NewNotifyService(&cfg.Notifications, db, log)
	allocator := services.NewAllocator(db, zones, notifyService, log)
	registry := services.NewRegistry(db, zones, cfg.Registry.DefaultMaxSubdomains, log)
	reporter := services.NewReporter(db)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.TokenTTL())

	initDefaultAdmin(authService)

	// Orphan-record reconciliation sweep
	if cfg.Reconciler.Enabled {
		reconciler := services.NewReconciler(db, zones, log)
		sched := scheduler.NewScheduler(reconciler, log)
		if err := sched.Start(cfg.Reconciler.CheckInterval); err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestIDMiddleware())
	r.Use(api.MetricsMiddleware())
	r.Use(logger.Middleware())

	handler := api.NewHandler(db, registry, allocator, reporter, authService)
	api.SetupRoutes(r, handler)

	addr := ":" + cfg.Server.Port
	log.Info("server starting", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
