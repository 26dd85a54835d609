package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/certchain-io/certchain-api/api/swagger"
	"github.com/certchain-io/certchain-api/internal/chain"
	"github.com/certchain-io/certchain-api/internal/handler"
	"github.com/certchain-io/certchain-api/internal/middleware"
	"github.com/certchain-io/certchain-api/internal/models"
	"github.com/certchain-io/certchain-api/internal/repository"
	"github.com/certchain-io/certchain-api/internal/service"
	"github.com/certchain-io/certchain-api/pkg/cache"
	"github.com/certchain-io/certchain-api/pkg/config"
	"github.com/certchain-io/certchain-api/pkg/database"
	"github.com/certchain-io/certchain-api/pkg/logger"
	corsmiddleware "github.com/certchain-io/certchain-api/pkg/middleware/cors"
	reqidmiddleware "github.com/certchain-io/certchain-api/pkg/middleware/requestid"
	"github.com/certchain-io/certchain-api/pkg/render"
	"github.com/certchain-io/certchain-api/pkg/storage"
)

// @title CertChain API
// @version 1.0.0
// @description Blockchain-anchored academic certificate issuance and verification
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, verification cache disabled", "error", err)
		redisClient = nil
	}

	ethBackend, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logr.Sugar().Fatalw("failed to dial chain rpc", "url", cfg.Chain.RPCURL, "error", err)
	}
	chainClient, err := chain.NewClient(ethBackend, chain.Config{
		PrivateKey:          cfg.Chain.PrivateKey,
		ContractAddress:     cfg.Chain.ContractAddress,
		ChainID:             cfg.Chain.ChainID,
		GasLimit:            cfg.Chain.GasLimit,
		ConfirmTimeout:      cfg.Chain.ConfirmTimeout,
		ConfirmPollInterval: cfg.Chain.ConfirmPollInterval,
	}, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init chain client", "error", err)
	}
	chainGateway := service.NewChainGateway(chainClient)

	contentStore := storage.NewContentStore(cfg.ContentStore.IPFSAPIURL, cfg.ContentStore.GatewayURL, logr)
	artifactStore, err := storage.NewLocalStorage(cfg.Batch.ArtifactDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init artifact storage", "dir", cfg.Batch.ArtifactDir, "error", err)
	}
	stagingStore, err := storage.NewLocalStorage(cfg.Batch.StagingDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init staging storage", "dir", cfg.Batch.StagingDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Batch.SignedURLSecret, cfg.Batch.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	jobStore := repository.NewJobStore(cfg.Batch.JobTTL, logr)
	jobStore.StartEviction(ctx, cfg.Batch.EvictionInterval)

	// Staging CSVs are removed when a batch compiles its results; the sweep
	// catches files orphaned by a crash mid-run.
	go func() {
		ticker := time.NewTicker(cfg.Batch.EvictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := stagingStore.CleanupOlderThan(cfg.Batch.JobTTL)
				if err != nil {
					logr.Sugar().Warnw("staging cleanup failed", "error", err)
				} else if len(removed) > 0 {
					logr.Sugar().Infow("staging cleanup", "removed", len(removed))
				}
			}
		}
	}()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})

	notificationSvc := service.NewNotificationService(service.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logr)

	renderer := render.NewCertificateRenderer()
	batchValidator := service.NewBatchValidator(validate, logr)
	artifactPrefix := cfg.APIPrefix + "/artifacts"

	batchSvc := service.NewBatchService(
		batchValidator,
		jobStore,
		chainGateway,
		renderer,
		contentStore,
		artifactStore,
		stagingStore,
		signer,
		notificationSvc,
		certRepo,
		metricsSvc,
		cfg.Batch.WorkerConcurrency,
		service.BatchServiceConfig{
			VerificationBaseURL: cfg.Verification.BaseURL,
			ArtifactRoutePrefix: artifactPrefix,
		},
		logr,
	)
	batchSvc.Start(ctx)
	defer batchSvc.Stop()

	certificateSvc := service.NewCertificateService(
		chainGateway,
		certRepo,
		cacheRepo,
		renderer,
		contentStore,
		artifactStore,
		signer,
		notificationSvc,
		metricsSvc,
		validate,
		service.CertificateServiceConfig{
			VerificationBaseURL: cfg.Verification.BaseURL,
			ArtifactRoutePrefix: artifactPrefix,
			CacheTTL:            cfg.Verification.CacheTTL,
		},
		logr,
	)

	authHandler := handler.NewAuthHandler(authSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	batchHandler := handler.NewBatchHandler(batchSvc, cfg.Batch.MaxUploadBytes)
	artifactHandler := handler.NewArtifactHandler(signer, artifactStore)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/certificates/:certId", certificateHandler.Get)
	api.GET("/certificates/:certId/verify", certificateHandler.Verify)
	api.GET("/artifacts/:token", artifactHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	issuers := middleware.RequireRole(models.RoleAdmin, models.RoleInstitution)
	{
		protected.POST("/certificates", issuers, certificateHandler.Issue)
		protected.GET("/certificates", certificateHandler.List)

		batch := protected.Group("/certificates/batch")
		batch.Use(issuers)
		batch.POST("/validate", batchHandler.Validate)
		batch.POST("/:id/process", batchHandler.Process)
		batch.GET("/:id/status", batchHandler.Status)
		batch.GET("/:id/results", batchHandler.Results)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
