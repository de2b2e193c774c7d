// internal/reconcile/reconciler.go
package reconcile

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/metrics"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/repository"
)

// Reconciler ingests asynchronous provider delivery callbacks and advances
// the authoritative recipient status, independently of the dispatcher's
// send-time updates. Lookups that miss are logged and swallowed: providers
// must always get an ack or they retry-storm.
type Reconciler struct {
	Jobs       repository.JobRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Logger     *zap.Logger
}

// EmailEvent is one entry of a SendGrid-style batched webhook payload.
type EmailEvent struct {
	Email       string `json:"email"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	Reason      string `json:"reason,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// HandleEmailEvents processes a batched email webhook payload for one job.
// Returns how many events were applied; malformed payloads apply zero and
// are still acknowledged upstream.
func (r *Reconciler) HandleEmailEvents(ctx context.Context, jobID string, body []byte) int {
	var events []EmailEvent
	if err := json.Unmarshal(body, &events); err != nil {
		r.Logger.Warn("webhook: malformed email payload",
			zap.String("job_id", jobID), zap.Error(err))
		return 0
	}

	applied := 0
	for i := range events {
		ev := events[i]
		eventType, ok := mapEmailEvent(ev.Event)
		if !ok {
			continue // transient provider status
		}

		// SendGrid suffixes the message id with filter metadata; the id
		// handed out at send time is the first segment.
		messageID := ev.SGMessageID
		if i := strings.IndexByte(messageID, '.'); i > 0 {
			messageID = messageID[:i]
		}

		// Multiple jobs can target the same address, so email lookups key
		// on both the address and the message id.
		rec, err := r.Recipients.ByEmailAndMessageID(ctx, jobID, ev.Email, messageID)
		if err != nil {
			r.Logger.Error("webhook: recipient lookup failed",
				zap.String("job_id", jobID), zap.Error(err))
			continue
		}
		if rec == nil {
			metrics.WebhookMisses.Inc()
			r.Logger.Warn("webhook: no recipient for email event",
				zap.String("job_id", jobID),
				zap.String("event", ev.Event),
				zap.String("message_id", messageID))
			continue
		}

		raw, _ := json.Marshal(ev)
		var occurred time.Time
		if ev.Timestamp > 0 {
			occurred = time.Unix(ev.Timestamp, 0)
		}

		if r.apply(ctx, jobID, rec.ID, model.ChannelEmail, ev.Event, raw, model.DeliveryEvent{
			Type:       eventType,
			Reason:     ev.Reason,
			OccurredAt: occurred,
		}) {
			applied++
		}
	}
	return applied
}

// HandleSMSEvent processes a single Twilio-style status callback for one
// job; the same path serves SMS and WhatsApp.
func (r *Reconciler) HandleSMSEvent(ctx context.Context, jobID string, form url.Values) bool {
	messageSID := form.Get("MessageSid")
	status := strings.ToLower(form.Get("MessageStatus"))

	eventType, ok := mapSMSEvent(status)
	if !ok {
		return false
	}

	rec, err := r.Recipients.ByMessageID(ctx, jobID, messageSID)
	if err != nil {
		r.Logger.Error("webhook: recipient lookup failed",
			zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	if rec == nil {
		metrics.WebhookMisses.Inc()
		r.Logger.Warn("webhook: no recipient for sms event",
			zap.String("job_id", jobID),
			zap.String("status", status),
			zap.String("message_sid", messageSID))
		return false
	}

	reason := form.Get("ErrorMessage")
	if reason == "" && form.Get("ErrorCode") != "" {
		reason = "provider error code " + form.Get("ErrorCode")
	}

	raw, _ := json.Marshal(map[string]string{
		"message_sid": messageSID,
		"status":      status,
		"error_code":  form.Get("ErrorCode"),
	})

	return r.apply(ctx, jobID, rec.ID, model.ChannelSMS, status, raw, model.DeliveryEvent{
		Type:   eventType,
		Reason: reason,
	})
}

// apply records the raw payload on the audit trail, runs the atomic status
// transition, and recomputes job progress if anything changed. Duplicate
// webhook delivery changes nothing after the first application.
func (r *Reconciler) apply(ctx context.Context, jobID string, recipientID int64, channel model.Channel, providerStatus string, raw []byte, ev model.DeliveryEvent) bool {
	if err := r.Recipients.AppendEvent(ctx, recipientID, providerStatus, raw); err != nil {
		r.Logger.Error("webhook: audit append failed",
			zap.Int64("recipient_id", recipientID), zap.Error(err))
	}

	changed, err := r.Recipients.ApplyEvent(ctx, recipientID, ev)
	if err != nil {
		r.Logger.Error("webhook: apply failed",
			zap.Int64("recipient_id", recipientID), zap.Error(err))
		return false
	}
	if !changed {
		return false
	}

	metrics.WebhookEvents.WithLabelValues(string(channel)).Inc()
	if _, err := r.Jobs.RecomputeProgress(ctx, jobID); err != nil {
		r.Logger.Error("webhook: progress recompute failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
	return true
}
