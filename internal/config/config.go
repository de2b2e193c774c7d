package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// HTTP / Metrics
	// ----------------------------
	APIPort     string `envconfig:"API_PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database / Queue
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	AMQPURL     string `envconfig:"AMQP_URL" default:""`

	// ----------------------------
	// Dispatch
	// ----------------------------
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"100"`
	BatchPause        time.Duration `envconfig:"BATCH_PAUSE" default:"1s"`
	SendTimeout       time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`
	ProviderRateLimit int           `envconfig:"PROVIDER_RATE_LIMIT" default:"50"`
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"30s"`

	// ----------------------------
	// Email provider (sendgrid | smtp | mock)
	// ----------------------------
	EmailProvider  string `envconfig:"EMAIL_PROVIDER" default:"mock"`
	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY" default:""`
	FromEmail      string `envconfig:"FROM_EMAIL" default:"noreply@msgblast.io"`
	FromName       string `envconfig:"FROM_NAME" default:"MsgBlast"`
	SMTPHost       string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort       int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser       string `envconfig:"SMTP_USER" default:""`
	SMTPPassword   string `envconfig:"SMTP_PASSWORD" default:""`

	// ----------------------------
	// SMS / WhatsApp provider (twilio | mock)
	// ----------------------------
	SMSProvider      string `envconfig:"SMS_PROVIDER" default:"mock"`
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID" default:""`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" default:""`
	TwilioFromNumber string `envconfig:"TWILIO_FROM_NUMBER" default:""`
	WhatsAppFrom     string `envconfig:"WHATSAPP_FROM_NUMBER" default:""`

	// ----------------------------
	// Personalization
	// ----------------------------
	CompanyName        string `envconfig:"COMPANY_NAME" default:"MsgBlast"`
	UnsubscribeBaseURL string `envconfig:"UNSUBSCRIBE_BASE_URL" default:"https://msgblast.io"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
