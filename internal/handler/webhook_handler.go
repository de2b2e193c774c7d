// internal/handler/webhook_handler.go
package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/msgblast-backend/internal/reconcile"
)

// WebhookHandler terminates provider delivery callbacks. Every outcome,
// including malformed payloads and unknown recipients, is answered 200:
// providers retry anything else and a retry storm is worse than a dropped
// event.
type WebhookHandler struct {
	Reconciler *reconcile.Reconciler
	Logger     *zap.Logger
}

// EmailEvents handles POST /webhooks/email/{jobID} (batched JSON array).
func (h *WebhookHandler) EmailEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.Logger.Warn("webhook: unreadable email payload",
			zap.String("job_id", jobID), zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	h.Reconciler.HandleEmailEvents(r.Context(), jobID, body)
	w.WriteHeader(http.StatusOK)
}

// SMSEvent handles POST /webhooks/sms/{jobID}. WhatsApp callbacks share this
// endpoint; Twilio posts the same form shape for both.
func (h *WebhookHandler) SMSEvent(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := r.ParseForm(); err != nil {
		h.Logger.Warn("webhook: unreadable sms payload",
			zap.String("job_id", jobID), zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	h.Reconciler.HandleSMSEvent(r.Context(), jobID, r.PostForm)
	w.WriteHeader(http.StatusOK)
}
