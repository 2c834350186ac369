package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Brownie44l1/mb-classifier-api/internal/config"
	"github.com/Brownie44l1/mb-classifier-api/internal/env"
	"github.com/Brownie44l1/mb-classifier-api/internal/handlers"
	"github.com/Brownie44l1/mb-classifier-api/internal/logger"
	"github.com/Brownie44l1/mb-classifier-api/internal/model"
	"github.com/Brownie44l1/mb-classifier-api/internal/pipeline"
	"github.com/Brownie44l1/mb-classifier-api/internal/preprocess"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", filepath.Join(config.ProjectRoot(), "config.yaml"), "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, found, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	var level slog.LevelVar
	level.Set(logger.ParseLevel(cfg.Logging.Level))

	// level follows config reloads; the file sink is fixed at startup
	slog.SetDefault(logger.New(env.FromEnv(),
		logger.WithLevel(&level),
		logger.WithLogToFile(cfg.Logging.ToFile),
		logger.WithLogFile(cfg.Logging.File),
	))

	if !found {
		slog.Info("No config file found, using defaults", "config", configPath)
	}

	if err := model.InitRuntime(cfg.Model.SharedLibraryPath); err != nil {
		return err
	}
	defer func() {
		if err := model.ShutdownRuntime(); err != nil {
			slog.Warn("Failed to destroy ONNX environment", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := model.NewManager()
	defer manager.Close()

	p := pipeline.New(manager, preprocess.Interpolation(cfg.Inference.Interpolation))
	handler := handlers.NewHandler(p, handlerOptions(cfg))

	slog.Info("Loading model", "model", cfg.Model.Path, "metadata", cfg.Model.MetadataPath)
	initialLoaded := make(chan struct{})
	go func() {
		defer close(initialLoaded)
		loadModel(ctx, manager, cfg)
	}()
	defer func() { <-initialLoaded }()

	if found {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config, err error) {
			if err != nil {
				return
			}
			// reloads start after the first load so they always supersede it
			<-initialLoaded
			next.ApplyEnv()
			level.Set(logger.ParseLevel(next.Logging.Level))
			p.SetInterpolation(preprocess.Interpolation(next.Inference.Interpolation))
			handler.SetOptions(handlerOptions(next))
			loadModel(ctx, manager, next)
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		defer watcher.Close()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Server starting", "addr", srv.Addr)
	slog.Info("Endpoints",
		"GET /", "Upload page",
		"GET /health", "Health check",
		"GET /status", "Model load status",
		"POST /predict", "Raw array prediction",
		"POST /predict/image", "Predict from image upload",
		"POST /predict/dataurl", "Predict from base64 data URL")
	slog.Info(fmt.Sprintf("Upload test: curl -X POST -F \"image=@scan.jpg\" http://localhost:%d/predict/image", cfg.Server.Port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}

func loadModel(ctx context.Context, manager *model.Manager, cfg *config.Config) {
	err := manager.Load(ctx, model.Loader(serverConfig(cfg)))
	if errors.Is(err, model.ErrSuperseded) {
		return
	}
	if err != nil {
		slog.Warn("Serving without a usable model until the next reload", "status", manager.Status().State)
	}
}

func serverConfig(cfg *config.Config) model.ServerConfig {
	return model.ServerConfig{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		InputName:    cfg.Model.InputName,
		OutputName:   cfg.Model.OutputName,
	}
}

func handlerOptions(cfg *config.Config) handlers.Options {
	return handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		BadgeThreshold: cfg.Inference.BadgeThreshold,
		CORSOrigin:     cfg.Server.CORSOrigin,
	}
}
