package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openarchive/preserv-backend/internal/bitstore"
	"github.com/openarchive/preserv-backend/internal/config"
	"github.com/openarchive/preserv-backend/internal/handler"
	"github.com/openarchive/preserv-backend/internal/migration"
	"github.com/openarchive/preserv-backend/internal/packager"
	"github.com/openarchive/preserv-backend/internal/platform"
	"github.com/openarchive/preserv-backend/internal/repository"
	"github.com/openarchive/preserv-backend/internal/service"
	pkgcache "github.com/openarchive/preserv-backend/pkg/cache"
	pkglogger "github.com/openarchive/preserv-backend/pkg/logger"
	pkgredis "github.com/openarchive/preserv-backend/pkg/redis"
	pkgstorage "github.com/openarchive/preserv-backend/pkg/storage"
)

func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	pkglogger.InitStructured(cfg.App.Env)
	log := pkglogger.Component("main")

	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without cache")
			redisClient = nil
		}
	}
	cacheSvc := pkgcache.NewService(redisClient)

	versionRepo := repository.NewVersionRepository(db)
	historyRepo := repository.NewVersionHistoryRepository(db)
	bitstreamRepo := repository.NewBitstreamRepository(db)

	backend, err := buildBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("content store backend init failed")
	}
	store := bitstore.NewStore(backend, bitstreamRepo)

	registry := packager.NewRegistry()
	packager.RegisterBuiltins(registry)
	site := packager.SiteInfo{
		Handle: cfg.Site.Handle,
		Name:   cfg.App.Name,
		URL:    cfg.Site.URL,
	}
	sections := packager.SectionConfig{
		Descriptive: cfg.Packager.Descriptive,
		Technical:   cfg.Packager.Technical,
		Rights:      cfg.Packager.Rights,
		Provenance:  cfg.Packager.Provenance,
		Source:      cfg.Packager.Source,
	}
	aipWriter := packager.NewAIPWriter(store, registry, sections, site)
	oreWriter := packager.NewOREWriter(store, cfg.Site.ResolveBaseURL, site)

	if err := platform.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("platform schema migration failed")
	}
	items := platform.NewItemRepository(db)
	access := platform.NewAccessControl(db)
	ingester := platform.NewManifestIngester(db)

	versioning := service.NewVersioningService(
		versionRepo, historyRepo, items, access, ingester,
		aipWriter, oreWriter, store, cacheSvc, cfg.Packager.Validate,
	)
	relations := service.NewRelationService(versionRepo, bitstreamRepo)
	queue := service.NewMutationQueue(versioning, items)

	// Periodic flush of queued item mutations.
	flushDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-flushDone:
				return
			case <-ticker.C:
				if err := queue.Flush(context.Background()); err != nil {
					log.Error().Err(err).Msg("mutation flush")
				}
			}
		}
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	versionHandler := handler.NewVersionHandler(versioning)
	relationHandler := handler.NewRelationHandler(relations)
	api := router.Group("/api/v1")
	{
		api.GET("/versions", versionHandler.SearchVersions)
		api.GET("/versions/:id", versionHandler.GetVersion)
		api.GET("/histories/:id", versionHandler.GetHistory)
		api.GET("/items/:id/history", versionHandler.GetItemHistory)
		api.GET("/bitstreams/:id/type", relationHandler.GetType)
		api.GET("/bitstreams/:id/obsoletes", relationHandler.GetObsoletes)
		api.GET("/bitstreams/:id/obsoleted-by", relationHandler.GetObsoletedBy)
	}
	apiSrv := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("api listener started")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api listener failed")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("metrics listener failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	close(flushDone)
	if err := queue.Flush(context.Background()); err != nil {
		log.Error().Err(err).Msg("final mutation flush")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("api listener shutdown")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("metrics listener shutdown")
	}
}

func buildBackend(cfg *config.Config) (bitstore.Backend, error) {
	switch cfg.Assetstore.Backend {
	case "s3":
		client, err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Assetstore.S3Endpoint,
			Region:          cfg.Assetstore.S3Region,
			AccessKeyID:     cfg.Assetstore.S3AccessKey,
			SecretAccessKey: cfg.Assetstore.S3SecretKey,
			Bucket:          cfg.Assetstore.S3Bucket,
			BasePath:        cfg.Assetstore.S3BasePath,
			ForcePathStyle:  cfg.Assetstore.S3Endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		return bitstore.NewS3Backend(client), nil
	default:
		return bitstore.NewFilesystemBackend(cfg.Assetstore.Dir)
	}
}
