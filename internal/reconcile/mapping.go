// internal/reconcile/mapping.go
package reconcile

import "github.com/unclebandit/msgblast-backend/internal/model"

// Provider status vocabularies mapped onto the canonical event set. A status
// absent from its table is transient (queued, sending, deferred, ...) and is
// deliberately ignored: no recipient change, payload still acknowledged.

// emailEvents covers the SendGrid webhook vocabulary.
//
//	processed, deferred          -> ignored
//	delivered                    -> delivered
//	open                         -> opened
//	click                        -> clicked
//	bounce                       -> bounced (reason recorded)
//	dropped, blocked             -> failed (reason recorded)
//	unsubscribe, group_unsubscribe, spamreport -> unsubscribed
var emailEvents = map[string]model.EventType{
	"delivered":         model.EventDelivered,
	"open":              model.EventOpened,
	"click":             model.EventClicked,
	"bounce":            model.EventBounced,
	"dropped":           model.EventFailed,
	"blocked":           model.EventFailed,
	"unsubscribe":       model.EventUnsubscribed,
	"group_unsubscribe": model.EventUnsubscribed,
	"spamreport":        model.EventUnsubscribed,
}

// smsEvents covers the Twilio status-callback vocabulary for SMS and
// WhatsApp.
//
//	queued, accepted, sending, sent -> ignored (send-time status already set)
//	delivered                       -> delivered
//	read (WhatsApp receipts)        -> opened
//	undelivered                     -> bounced (error recorded)
//	failed                          -> failed (error recorded)
var smsEvents = map[string]model.EventType{
	"delivered":   model.EventDelivered,
	"read":        model.EventOpened,
	"undelivered": model.EventBounced,
	"failed":      model.EventFailed,
}

func mapEmailEvent(status string) (model.EventType, bool) {
	ev, ok := emailEvents[status]
	return ev, ok
}

func mapSMSEvent(status string) (model.EventType, bool) {
	ev, ok := smsEvents[status]
	return ev, ok
}
