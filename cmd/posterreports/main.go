// Package main запускает HTTP-сервер сервиса отчётов Poster.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/poster-reports/internal/config"
	"github.com/mmeshcher/poster-reports/internal/handler"
	"github.com/mmeshcher/poster-reports/internal/poster"
	"github.com/mmeshcher/poster-reports/internal/repository"
	"github.com/mmeshcher/poster-reports/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var posterClient *poster.Client
	if cfg.PosterBaseURL != "" || cfg.PosterToken != "" || cfg.PosterAuthStyle != "" {
		posterClient, err = poster.NewClient(
			cfg.PosterBaseURL,
			cfg.PosterToken,
			cfg.PosterAuthStyle,
			time.Duration(cfg.PosterTimeoutSec)*time.Second,
			cfg.PosterRetryMax,
		)
		if err != nil {
			sugar.Fatalw("poster client error", "error", err.Error())
		}
	}

	svc := service.NewService(repo)
	defer svc.Close()

	h := handler.NewHandler(svc, posterClient, logger)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting poster reports server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
