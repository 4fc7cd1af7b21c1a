// Package main implements the entry point for the Forge API server, an
// asynchronous backend for AI image generation and ffmpeg video filtering.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castellan/forge-api/internal/api"
	"github.com/castellan/forge-api/internal/api/middleware"
	"github.com/castellan/forge-api/internal/config"
	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/generation"
	"github.com/castellan/forge-api/internal/platform/cloudinary"
	"github.com/castellan/forge-api/internal/platform/falai"
	"github.com/castellan/forge-api/internal/platform/logger"
	"github.com/castellan/forge-api/internal/platform/redisjob"
	"github.com/castellan/forge-api/internal/platform/replicate"
	"github.com/castellan/forge-api/internal/service"
	"github.com/castellan/forge-api/internal/store"
	"github.com/castellan/forge-api/internal/task"
	"github.com/castellan/forge-api/internal/video"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forge-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"workers", cfg.Worker.Count,
		"fal_configured", cfg.Fal.APIKey != "",
		"replicate_configured", cfg.Replicate.APIToken != "",
		"cloudinary_configured", cfg.Cloudinary.CloudName != "")

	if err := os.MkdirAll(cfg.FFmpeg.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}

	jobs, queue, closeStore, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	failover := generation.Failover{
		Primary: falai.New(falai.Config{
			APIKey:      cfg.Fal.APIKey,
			T2IEndpoint: cfg.Fal.T2IEndpoint,
			I2IEndpoint: cfg.Fal.I2IEndpoint,
			Timeout:     cfg.Fal.Timeout,
		}, nil),
		Fallback: replicate.New(replicate.Config{
			APIToken: cfg.Replicate.APIToken,
			T2IModel: cfg.Replicate.T2IModel,
			I2IModel: cfg.Replicate.I2IModel,
			BaseURL:  cfg.Replicate.BaseURL,
			Timeout:  cfg.Replicate.Timeout,
		}, nil),
		Policy: generation.DefaultRetryPolicy(),
		Logger: log,
	}

	uploader := cloudinary.New(cloudinary.Config{
		CloudName:    cfg.Cloudinary.CloudName,
		UploadPreset: cfg.Cloudinary.UploadPreset,
		Folder:       cfg.Cloudinary.Folder,
	}, nil)

	genPipe := generation.NewPipeline(jobs, failover, uploader, nil, cfg.FFmpeg.ScratchDir, log)
	tool := video.NewTool(cfg.FFmpeg.FFmpegBin, cfg.FFmpeg.FFprobeBin)
	vidPipe := video.NewPipeline(jobs, tool, uploader, nil, cfg.FFmpeg.ScratchDir, log)

	runner := task.NewRunner(jobs, queue, map[domain.JobKind]task.Handler{
		domain.KindVideoFilter: vidPipe.Process,
		domain.KindImageT2I:    genPipe.TextToImage,
		domain.KindImageI2I:    genPipe.ImageToImage,
		domain.KindAvatarBatch: genPipe.AvatarBatch,
	}, task.RunnerConfig{
		WorkerCount: cfg.Worker.Count,
		PollTimeout: cfg.Worker.PollTimeout,
	}, log)
	runner.Start()
	defer runner.Stop()

	svc := service.NewJobService(jobs, queue, log)
	router := api.NewRouter(
		api.NewJobHandler(svc, log),
		api.NewHealthHandler(tool),
		middleware.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window),
	)

	return serve(cfg.Server.Port, router, log)
}

// buildStore selects the job store and queue backend. The returned close
// function releases the backend's resources after the server stops.
func buildStore(cfg *config.Config, log *slog.Logger) (store.JobStore, store.JobQueue, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.RedisAddr, err)
		}
		log.Info("using redis store", "addr", cfg.Store.RedisAddr, "prefix", cfg.Store.RedisPrefix)
		jobs := redisjob.NewStore(rdb, cfg.Store.RedisPrefix, cfg.Store.JobTTL)
		queue := redisjob.NewQueue(rdb, cfg.Store.RedisQueue)
		return jobs, queue, func() { _ = rdb.Close() }, nil
	default:
		log.Info("using in-memory store", "job_ttl", cfg.Store.JobTTL)
		queue := store.NewMemoryQueue(0)
		return store.NewMemoryStore(cfg.Store.JobTTL), queue, queue.Close, nil
	}
}

// serve runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully with a bounded drain window.
func serve(port int, handler http.Handler, log *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-shutdownCh:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}
