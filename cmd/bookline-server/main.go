package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"bookline/backend/internal/config"
	"bookline/backend/internal/domain"
	"bookline/backend/internal/notify"
	"bookline/backend/internal/outbox"
	"bookline/backend/internal/payments"
	"bookline/backend/internal/service/booking"
	"bookline/backend/internal/service/reminders"
	"bookline/backend/internal/store/postgres"
	"bookline/backend/internal/transport/rest"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "bookline-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "bookline-server"),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr), slog.String("log_level", cfg.LogLevel))

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	apptRepo := postgres.NewAppointmentRepo(db)
	reminderRepo := postgres.NewReminderRepo(db)
	outboxRepo := postgres.NewOutboxRepo(db)

	planner := reminders.NewPlanner(reminders.DefaultLeads())

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMTPHost != "" || cfg.SMSWebhookURL != "" {
		router := &notify.Router{}
		if cfg.SMTPHost != "" {
			router.Email = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom)
		}
		if cfg.SMSWebhookURL != "" {
			router.SMS = notify.NewWebhookSMSSender(cfg.SMSWebhookURL, cfg.SMSWebhookToken)
		}
		notifier = router
	}

	var authority payments.Authority = payments.Noop{}
	stripeAuthority := payments.NewStripeAuthority(payments.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.StripeSuccessURL,
		CancelURL:     cfg.StripeCancelURL,
	})
	if stripeAuthority.Configured() {
		authority = stripeAuthority
	} else {
		stripeAuthority = nil
		log.Warn("stripe not configured; payments run in noop mode")
	}

	svc := booking.NewService(booking.Params{
		Repo:     apptRepo,
		Planner:  planner,
		Payments: authority,
		Rules: domain.BookingRules{
			Hours: domain.BusinessHours{
				OpenHour:  cfg.BookingOpenHour,
				CloseHour: cfg.BookingCloseHour,
			},
			Granularity:       time.Duration(cfg.BookingSlotMinutes) * time.Minute,
			MaxAdvance:        time.Duration(cfg.BookingMaxAdvanceDays) * 24 * time.Hour,
			ProviderDailyMax:  cfg.BookingProviderDailyMax,
			RequesterDailyMax: cfg.BookingRequesterDailyMax,
		},
		CancelPolicies: domain.CancellationPolicies{
			domain.RoleRequester: {MinimumNotice: cfg.CancelNoticeRequester},
			domain.RoleProvider:  {MinimumNotice: cfg.CancelNoticeProvider},
		},
		ReschedulePolicy: domain.ReschedulePolicy{
			MinimumNotice:  cfg.RescheduleNotice,
			MaxReschedules: cfg.MaxReschedules,
			PenaltyPercent: cfg.ReschedulePenaltyPct,
		},
		Log: log,
	})

	processor := reminders.NewProcessor(reminderRepo, notifier, log, reminders.ProcessorConfig{
		Interval:        cfg.ReminderInterval,
		BatchSize:       cfg.ReminderBatchSize,
		Lease:           cfg.ReminderLease,
		MaxAttempts:     cfg.ReminderMaxAttempts,
		DispatchTimeout: cfg.ReminderDispatchTimeout,
	})

	publisher := outbox.NewPublisher(outboxRepo, log, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Topic:     cfg.KafkaTopic,
		PollEvery: cfg.OutboxPollEvery,
	})

	var limit echo.MiddlewareFunc
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		limit = rest.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, log).Middleware()
		log.Info("rate limiting enabled", slog.String("redis_addr", cfg.RedisAddr), slog.Int("limit", cfg.RateLimit))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = rest.NewValidator()
	e.Use(middleware.Recover())
	rest.NewHandler(svc, processor, stripeAuthority, log).Register(e, limit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go processor.Run(ctx)
	go publisher.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.HTTPAddr)
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, e, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, e *echo.Echo, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; forcing close", slog.Any("err", err))
		_ = e.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
