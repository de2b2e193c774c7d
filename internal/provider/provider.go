// internal/provider/provider.go
package provider

import (
	"context"
	"fmt"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

// Result is what a provider reports back for one accepted message. MessageID
// is the join key used later to reconcile webhook events onto the recipient.
type Result struct {
	MessageID      string
	ProviderStatus string
}

// Sender is the provider-send collaborator. Implementations must return an
// *appErrors.ErrProvider for transport or validation failures so the
// dispatcher can record the reason on the recipient.
type Sender interface {
	Send(ctx context.Context, rec *model.Recipient, content model.Content) (*Result, error)
}

// Registry maps each channel to its configured sender.
type Registry struct {
	senders map[model.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[model.Channel]Sender)}
}

func (r *Registry) Register(channel model.Channel, s Sender) {
	r.senders[channel] = s
}

// For returns the sender for a channel.
func (r *Registry) For(channel model.Channel) (Sender, error) {
	s, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("no sender registered for channel %s", channel)
	}
	return s, nil
}
