// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/config"
	"github.com/unclebandit/msgblast-backend/internal/content"
	"github.com/unclebandit/msgblast-backend/internal/db"
	"github.com/unclebandit/msgblast-backend/internal/dispatch"
	"github.com/unclebandit/msgblast-backend/internal/metrics"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/provider"
	"github.com/unclebandit/msgblast-backend/internal/queue"
	"github.com/unclebandit/msgblast-backend/internal/repository"
	"github.com/unclebandit/msgblast-backend/internal/service"
)

// The worker consumes dispatch requests from the broker, drains job batches
// against the providers, and runs the scheduler tick for queued scheduled
// jobs. It shares nothing with the API server except the database and queue.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.AMQPURL == "" {
		logger.Fatal("worker requires AMQP_URL; without a broker the server dispatches in-process")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	metrics.Init()

	jobRepo := &repository.JobRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	contentStore := &repository.ContentStore{DB: conn}

	resolver := &content.Resolver{
		Store:              contentStore,
		CompanyName:        cfg.CompanyName,
		UnsubscribeBaseURL: cfg.UnsubscribeBaseURL,
	}

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer q.Close()

	dispatcher := &dispatch.Dispatcher{
		Jobs:        jobRepo,
		Recipients:  recipientRepo,
		Resolver:    resolver,
		Senders:     buildSenders(cfg, logger),
		BatchSize:   cfg.BatchSize,
		BatchPause:  cfg.BatchPause,
		SendTimeout: cfg.SendTimeout,
		Logger:      logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := q.Subscribe(queue.TopicJobDispatch, func(payload []byte) error {
		msg, err := queue.DecodeDispatch(payload)
		if err != nil {
			logger.Error("invalid dispatch message", zap.Error(err))
			return nil // malformed payloads are not retryable
		}
		return dispatcher.Run(ctx, msg.JobID)
	}); err != nil {
		logger.Fatal("failed to subscribe", zap.Error(err))
	}

	jobService := &service.JobService{
		Jobs:       jobRepo,
		Recipients: recipientRepo,
		Queue:      q,
		Resolver:   resolver,
		Logger:     logger,
	}

	// Jobs stuck in sending from a previous worker crash are republished;
	// only their still-pending recipients get dispatched again.
	if n, err := jobService.RecoverInFlight(ctx); err != nil {
		logger.Error("in-flight recovery failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("recovered in-flight jobs", zap.Int("count", n))
	}

	go runScheduler(ctx, jobService, cfg.SchedulerInterval, logger)

	logger.Info("worker running, waiting for dispatch requests")
	<-ctx.Done()
	logger.Info("worker shutting down")
}

// runScheduler starts queued scheduled jobs whose scheduled_at has passed.
func runScheduler(ctx context.Context, svc *service.JobService, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			started, err := svc.EnqueueDue(ctx, now.UTC())
			if err != nil {
				logger.Error("scheduler tick failed", zap.Error(err))
				continue
			}
			if started > 0 {
				logger.Info("started scheduled jobs", zap.Int("count", started))
			}
		}
	}
}

func buildSenders(cfg *config.Config, logger *zap.Logger) *provider.Registry {
	reg := provider.NewRegistry()

	switch cfg.EmailProvider {
	case "sendgrid":
		reg.Register(model.ChannelEmail, provider.NewSendGridSender(
			cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName, cfg.ProviderRateLimit))
	case "smtp":
		reg.Register(model.ChannelEmail, &provider.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.FromEmail,
		})
	default:
		logger.Info("using mock email sender")
		reg.Register(model.ChannelEmail, provider.NewMockSender(0.9, time.Now().UnixNano()))
	}

	switch cfg.SMSProvider {
	case "twilio":
		reg.Register(model.ChannelSMS, provider.NewTwilioSender(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, false, cfg.ProviderRateLimit))
		reg.Register(model.ChannelWhatsApp, provider.NewTwilioSender(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.WhatsAppFrom, true, cfg.ProviderRateLimit))
	default:
		logger.Info("using mock sms/whatsapp sender")
		reg.Register(model.ChannelSMS, provider.NewMockSender(0.9, time.Now().UnixNano()))
		reg.Register(model.ChannelWhatsApp, provider.NewMockSender(0.9, time.Now().UnixNano()))
	}

	return reg
}
