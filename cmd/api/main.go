package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"badgecerts/badgecerts-backend/internal/auth"
	"badgecerts/badgecerts-backend/internal/certificates"
	"badgecerts/badgecerts-backend/internal/config"
	"badgecerts/badgecerts-backend/internal/database"
	"badgecerts/badgecerts-backend/internal/hostdata"
	"badgecerts/badgecerts-backend/internal/workers"
	"badgecerts/badgecerts-backend/pkg/pdf"
	"badgecerts/badgecerts-backend/pkg/storage"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	// Initialize logger
	debug := cfg.Logging.Level == "debug"
	logger, err := newLogger(debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Connect to database
	db, err := database.New(cfg.Database, debug, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	fields := hostdata.ProfileFields{
		BirthDate:   cfg.Host.BirthDateField,
		Institution: cfg.Host.InstitutionField,
		BulkCourse:  cfg.Host.BulkCourseField,
	}
	if cfg.Database.AutoMigrate {
		// host tables are only created for the standalone sqlite setup
		withHost := cfg.Database.Driver == "sqlite"
		if err := database.Migrate(db, withHost, fields, logger); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	generator := pdf.NewGenerator(pdf.Options{Creator: cfg.Certificates.Creator})

	// Initialize certificates module
	hostStore := hostdata.NewStore(db, fields, logger)
	certRepo := certificates.NewGormRepository(db)
	certService := certificates.NewService(certRepo, blobs, generator, hostStore.HostData(), certificates.Settings{
		DateLayout:         cfg.Certificates.DateLayout,
		Location:           cfg.Certificates.Location(),
		PerPage:            cfg.Certificates.PerPage,
		MaxBackgroundBytes: cfg.Certificates.MaxBackgroundBytes,
		Preview:            cfg.Certificates.Preview,
	}, logger)
	authz := auth.AnyOf(auth.ClaimsAuthorizer{}, hostdata.NewBulkAuthorizer(hostStore))
	certHandler := certificates.NewHandler(certService, authz, logger)

	if cfg.Security.JWTSecret == "" {
		logger.Warn("JWT secret not set, trusting X-User-ID and X-Capabilities headers")
	}
	authMiddleware := auth.NewMiddleware(cfg.Security.JWTSecret, logger)

	// Background cleanup
	var reconciler *workers.Reconciler
	if cfg.Reconciler.Enabled {
		reconciler = workers.NewReconciler(certRepo, blobs, workers.ReconcilerConfig{
			Schedule:    cfg.Reconciler.Schedule,
			Prefix:      certificates.BackgroundPrefix,
			GracePeriod: cfg.Reconciler.GracePeriod,
		}, logger)
		if err := reconciler.Start(ctx); err != nil {
			logger.Fatal("Failed to start reconciler", zap.Error(err))
		}
	}

	// Setup Router
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-Capabilities")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Certificate-Pages, X-Certificate-Missing-Content")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(authMiddleware.Handler())
	{
		certHandler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if reconciler != nil {
		reconciler.Stop()
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("Server exiting")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
