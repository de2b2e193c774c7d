// internal/model/event.go
package model

import "time"

// EventType is the canonical delivery-event vocabulary that provider-specific
// webhook statuses are mapped onto.
type EventType string

const (
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventFailed       EventType = "failed"
	EventUnsubscribed EventType = "unsubscribed"
)

// DeliveryEvent is one reconciled provider callback for a recipient.
type DeliveryEvent struct {
	Type       EventType
	Reason     string
	OccurredAt time.Time
}

// ApplyEvent mutates the recipient according to the delivery lifecycle and
// reports whether anything changed. It is the single transition function used
// by both the Postgres and the in-memory stores, so the two cannot drift.
//
// Rules:
//   - Engagement timestamps are set once and never overwritten, which makes
//     duplicate webhook delivery a no-op.
//   - Status only moves forward along pending->sent->delivered->opened->clicked.
//     Chain skipping is allowed: a click event on a recipient still marked
//     sent moves it straight to clicked and sets only clicked_at. Intermediate
//     timestamps are deliberately not back-filled; progress counting treats
//     the later status as implying the earlier ones.
//   - Bounced/failed/unsubscribed absorb: once there, only an unsubscribe can
//     still apply (explicit opt-out wins from any state).
func ApplyEvent(r *Recipient, ev DeliveryEvent, now time.Time) bool {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}

	switch ev.Type {
	case EventUnsubscribed:
		if r.Status == RecipientUnsubscribed {
			return false
		}
		r.Status = RecipientUnsubscribed
		return true

	case EventBounced, EventFailed:
		if r.Status.absorbing() {
			return false
		}
		if ev.Type == EventBounced {
			r.Status = RecipientBounced
		} else {
			r.Status = RecipientFailed
		}
		if ev.Reason != "" {
			reason := ev.Reason
			r.ErrorMessage = &reason
		}
		return true

	case EventDelivered, EventOpened, EventClicked:
		if r.Status.absorbing() {
			return false
		}
		changed := false

		var target RecipientStatus
		switch ev.Type {
		case EventDelivered:
			target = RecipientDelivered
			if r.DeliveredAt == nil {
				t := ev.OccurredAt
				r.DeliveredAt = &t
				changed = true
			}
		case EventOpened:
			target = RecipientOpened
			if r.OpenedAt == nil {
				t := ev.OccurredAt
				r.OpenedAt = &t
				changed = true
			}
		case EventClicked:
			target = RecipientClicked
			if r.ClickedAt == nil {
				t := ev.OccurredAt
				r.ClickedAt = &t
				changed = true
			}
		}

		if engagementRank[target] > engagementRank[r.Status] {
			r.Status = target
			changed = true
		}
		return changed
	}

	return false
}
