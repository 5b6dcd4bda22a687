// Package main запускает HTTP-сервер сервиса salonhub.
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

	"github.com/mmeshcher/salonhub/internal/config"
	"github.com/mmeshcher/salonhub/internal/handler"
	"github.com/mmeshcher/salonhub/internal/messaging"
	"github.com/mmeshcher/salonhub/internal/metrics"
	"github.com/mmeshcher/salonhub/internal/middleware"
	"github.com/mmeshcher/salonhub/internal/repository"
	"github.com/mmeshcher/salonhub/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		sugar.Fatalw("timezone error", "timezone", cfg.Timezone, "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pgRepo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pgRepo
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository()
	}

	var messenger service.Messenger
	if cfg.MessagingGatewayAddress != "" {
		messenger = messaging.NewClient(cfg.MessagingGatewayAddress, cfg.MessagingAPIKey, logger)
	}

	svc := service.NewService(repo, messenger, logger, location)
	defer svc.Close()

	if cfg.AdminPasswordHash == "" {
		sugar.Warn("ADMIN_PASSWORD_HASH is empty, admin login disabled")
	}
	svc.SetAdminCredentials(cfg.AdminLogin, cfg.AdminPasswordHash)

	metrics.InitMetrics()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter(cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка уведомлений о сменах
	g.Go(func() error {
		svc.StartNotificationDispatch(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting salonhub server", "addr", cfg.RunAddress, "timezone", location.String())
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
