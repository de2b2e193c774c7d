// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/config"
	"github.com/unclebandit/msgblast-backend/internal/content"
	"github.com/unclebandit/msgblast-backend/internal/db"
	"github.com/unclebandit/msgblast-backend/internal/dispatch"
	"github.com/unclebandit/msgblast-backend/internal/handler"
	"github.com/unclebandit/msgblast-backend/internal/metrics"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/provider"
	"github.com/unclebandit/msgblast-backend/internal/queue"
	"github.com/unclebandit/msgblast-backend/internal/reconcile"
	"github.com/unclebandit/msgblast-backend/internal/repository"
	"github.com/unclebandit/msgblast-backend/internal/service"
)

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

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.EnsureSchema(context.Background(), conn); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	metrics.Init()

	jobRepo := &repository.JobRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	contentStore := &repository.ContentStore{DB: conn}

	resolver := &content.Resolver{
		Store:              contentStore,
		CompanyName:        cfg.CompanyName,
		UnsubscribeBaseURL: cfg.UnsubscribeBaseURL,
	}

	senders := buildSenders(cfg, logger)

	// With a broker configured the worker binary consumes dispatch requests.
	// Without one, dispatch runs in-process behind the in-memory queue.
	var q queue.Queue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to broker", zap.Error(err))
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		logger.Info("no AMQP_URL set, dispatching in-process")
		memQueue := queue.NewInMemoryQueue(logger)
		dispatcher := &dispatch.Dispatcher{
			Jobs:        jobRepo,
			Recipients:  recipientRepo,
			Resolver:    resolver,
			Senders:     senders,
			BatchSize:   cfg.BatchSize,
			BatchPause:  cfg.BatchPause,
			SendTimeout: cfg.SendTimeout,
			Logger:      logger,
		}
		memQueue.Subscribe(queue.TopicJobDispatch, func(payload []byte) error {
			msg, err := queue.DecodeDispatch(payload)
			if err != nil {
				return err
			}
			return dispatcher.Run(context.Background(), msg.JobID)
		})
		q = memQueue
	}

	jobService := &service.JobService{
		Jobs:       jobRepo,
		Recipients: recipientRepo,
		Queue:      q,
		Resolver:   resolver,
		Logger:     logger,
	}

	jobHandler := handler.NewJobHandler(jobService)
	webhookHandler := &handler.WebhookHandler{
		Reconciler: &reconcile.Reconciler{
			Jobs:       jobRepo,
			Recipients: recipientRepo,
			Logger:     logger,
		},
		Logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/jobs", jobHandler.CreateJob)
	r.Get("/jobs", jobHandler.ListJobs)
	r.Get("/jobs/{id}", jobHandler.GetJob)
	r.Post("/jobs/{id}/start", jobHandler.StartJob)
	r.Post("/jobs/{id}/pause", jobHandler.PauseJob)
	r.Post("/jobs/{id}/cancel", jobHandler.CancelJob)
	r.Get("/jobs/{id}/logs", jobHandler.JobLogs)
	r.Get("/jobs/{id}/recipients", jobHandler.JobRecipients)
	r.Post("/jobs/{id}/preview", jobHandler.PreviewJob)

	r.Post("/webhooks/email/{jobID}", webhookHandler.EmailEvents)
	r.Post("/webhooks/sms/{jobID}", webhookHandler.SMSEvent)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server listening", zap.String("port", cfg.MetricsPort))
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
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
