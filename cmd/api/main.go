package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	texthandler "github.com/apex/log/handlers/text"

	"github.com/bryanwahyu/derma-lens/internal/application"
	appanalysis "github.com/bryanwahyu/derma-lens/internal/application/analysis"
	"github.com/bryanwahyu/derma-lens/internal/config"
	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
	"github.com/bryanwahyu/derma-lens/internal/infra/ai/gemini"
	"github.com/bryanwahyu/derma-lens/internal/infra/ai/openai"
	"github.com/bryanwahyu/derma-lens/internal/infra/httpserver"
	"github.com/bryanwahyu/derma-lens/internal/infra/imaging"
	"github.com/bryanwahyu/derma-lens/internal/infra/storage"
	"github.com/bryanwahyu/derma-lens/internal/middleware"
)

// provider is what main needs from either model backend.
type provider interface {
	ai.VisionClient
	ai.TextClient
	ai.Model
}

// stager is a staging backend that can also report its health.
type stager interface {
	domain.Stager
	middleware.HealthChecker
}

func main() {
	// path config.yaml, only when it exists
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}
	setupLogging(cfg.Log)

	ctx := context.Background()

	store, err := newStager(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("storage init error")
	}

	client, closeClient, err := newProvider(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("ai provider init error")
	}
	defer closeClient()

	var resolver domain.SectionResolver
	if !cfg.Analysis.DisableFallback {
		resolver = appanalysis.ModelResolver{Client: client}
	}

	format, _ := domain.ParseFormat(cfg.Analysis.Format)
	svc := &appanalysis.Service{
		Vision:    client,
		Extractor: appanalysis.NewExtractor(resolver),
		Stager:    store,
		Images:    imaging.NewProcessor(cfg.Image.MaxDimension, cfg.Image.JPEGQuality),
		Clock:     application.SystemClock{},
		Model:     client.ModelName(),
		Timeout:   cfg.Analysis.Timeout,
	}

	middleware.RegisterMetrics()

	limiter := middleware.NewRateLimiter(cfg.Security.RateLimit.Capacity, cfg.Security.RateLimit.RefillPerSecond)
	stopSweep := make(chan struct{})
	go limiter.Run(stopSweep, 5*time.Minute)
	defer close(stopSweep)

	handler := httpserver.NewRouter(svc, httpserver.Options{
		CSRFKey:        []byte(cfg.Security.CSRFKey),
		CSRFSecure:     cfg.Security.CSRFSecure,
		TrustedOrigins: cfg.Security.TrustedOrigins,
		CORSOrigins:    cfg.Security.CORSOrigins,
		APIKeys:        cfg.Security.APIKeys,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RateLimiter:    limiter,
		DefaultFormat:  format,
		HealthCheckers: map[string]middleware.HealthChecker{"staging": store},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := httpserver.Server(addr, handler, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)

	// run server
	go func() {
		log.WithFields(log.Fields{
			"addr":     addr,
			"provider": cfg.Provider,
			"model":    client.ModelName(),
			"storage":  cfg.Storage.Driver,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(texthandler.New(os.Stderr))
	}
	log.SetLevelFromString(cfg.Level)
}

func newStager(ctx context.Context, cfg config.StorageConfig) (stager, error) {
	if cfg.Driver == config.StorageMinio {
		return storage.NewMinio(ctx, storage.MinioOptions{
			Endpoint:   cfg.Minio.Endpoint,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			BucketName: cfg.Minio.BucketName,
			Region:     cfg.Minio.Region,
			UseSSL:     cfg.Minio.UseSSL,
			Prefix:     cfg.Minio.Prefix,
		})
	}
	return storage.NewLocal(cfg.Dir)
}

func newProvider(ctx context.Context, cfg *config.Config) (provider, func(), error) {
	if cfg.Provider == config.ProviderGemini {
		c, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:    cfg.Gemini.APIKey,
			Model:     cfg.Gemini.Model,
			TextModel: cfg.Gemini.TextModel,
			Endpoint:  cfg.Gemini.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("closing gemini client")
			}
		}, nil
	}
	c := openai.NewClient(openai.Options{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		VisionModel: cfg.OpenAI.VisionModel,
		TextModel:   cfg.OpenAI.TextModel,
		MaxTokens:   cfg.OpenAI.MaxTokens,
	})
	return c, func() {}, nil
}
