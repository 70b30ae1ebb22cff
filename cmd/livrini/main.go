// Package main запускает HTTP-сервер сервиса LIVRINI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/livrini/internal/config"
	"github.com/mmeshcher/livrini/internal/handler"
	"github.com/mmeshcher/livrini/internal/mailer"
	"github.com/mmeshcher/livrini/internal/payment"
	"github.com/mmeshcher/livrini/internal/repository"
	"github.com/mmeshcher/livrini/internal/service"
	"github.com/mmeshcher/livrini/internal/throttle"
	"github.com/mmeshcher/livrini/internal/token"
)

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("APP_ENV") == config.EnvDevelopment {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	logger := newLogger()
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sender mailer.Sender
	if cfg.BrevoAPIKey == "" && cfg.IsDevelopment() {
		sender = mailer.NewLogSender(logger)
	} else {
		if cfg.BrevoAPIKey == "" {
			sugar.Warn("BREVO_API_KEY is empty, emails will not be delivered")
		}
		sender = mailer.NewBrevoClient(mailer.BrevoConfig{
			APIKey:      cfg.BrevoAPIKey,
			BaseURL:     cfg.BrevoBaseURL,
			SenderEmail: cfg.MailSenderEmail,
			SenderName:  cfg.MailSenderName,
			Timeout:     cfg.MailTimeout,
			RetryMax:    cfg.MailRetryMax,
		})
	}

	var otpThrottle service.Throttle = throttle.Noop{}
	if cfg.RedisAddr != "" {
		redisClient, err := throttle.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer redisClient.Close()
		otpThrottle = throttle.NewRedisThrottle(redisClient, cfg.OTPResendCooldown)
	}

	if cfg.StripeSecretKey == "" {
		sugar.Warn("STRIPE_SECRET_KEY is empty, payment endpoints will fail")
	}
	if cfg.StripeWebhookSecret == "" && !cfg.IsDevelopment() {
		sugar.Warn("STRIPE_WEBHOOK_SECRET is empty, payment webhook will reject events")
	}

	tokens := token.NewIssuer(token.Config{
		Secret: cfg.JWTSecret,
		TTL:    cfg.TokenTTL,
		Leeway: cfg.TokenLeeway,
	})

	dispatcher := service.NewDispatcher(logger, cfg.MailTimeout)
	notifier := service.NewNotifier(repo, logger)

	authSvc := service.NewAuthService(service.AuthDeps{
		Users:      repo,
		Hasher:     service.NewBcryptHasher(cfg.BcryptCost),
		Tokens:     tokens,
		Mailer:     mailer.New(sender),
		Throttle:   otpThrottle,
		Notifier:   notifier,
		Dispatcher: dispatcher,
	}, service.AuthConfig{
		OTPTTL:      cfg.OTPTTL,
		OTPLength:   cfg.OTPLength,
		MailTimeout: cfg.MailTimeout,
	}, logger)

	orderSvc := service.NewOrderService(repo, payment.NewStripeGateway(cfg.StripeSecretKey), notifier, service.OrderConfig{
		DeliveryLeadTime: cfg.DeliveryLeadTime,
		DeliveryFee:      cfg.DeliveryFee,
		Currency:         cfg.PaymentCurrency,
	}, logger)

	h := handler.NewHandler(handler.Deps{
		Auth:          authSvc,
		Orders:        orderSvc,
		Notifications: notifier,
		StockAlerts:   service.NewStockAlertService(repo, notifier, logger),
		Webhooks:      payment.NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.IsDevelopment()),
		Health:        repo,
		Tokens:        tokens,
		Logger:        logger,
		Development:   cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Периодическая сверка доставок со статусами заказов
	g.Go(func() error {
		orderSvc.StartDeliverySync(ctx, cfg.DeliverySyncInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting livrini server", "addr", cfg.RunAddress, "env", cfg.Environment)
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

		dispatcher.Wait()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
