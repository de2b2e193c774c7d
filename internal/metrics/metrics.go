package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total messages accepted by a provider",
		},
		[]string{"channel"},
	)

	MessagesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_failed_total",
			Help: "Total per-recipient send failures",
		},
		[]string{"channel"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total provider webhook events applied",
		},
		[]string{"channel"},
	)

	WebhookMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_misses_total",
			Help: "Webhook events that matched no known job or recipient",
		},
	)

	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Send jobs that reached the completed state",
		},
	)
)

func Init() {
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(MessagesFailed)
	prometheus.MustRegister(WebhookEvents)
	prometheus.MustRegister(WebhookMisses)
	prometheus.MustRegister(JobsCompleted)
}
