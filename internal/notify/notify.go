package notify

import (
	"context"
	"fmt"

	"bookline/backend/internal/domain"
)

// Notifier dispatches a single reminder over its channel.
type Notifier interface {
	Dispatch(ctx context.Context, r domain.Reminder) error
}

// Router fans a reminder out to the channel-specific sender.
type Router struct {
	Email EmailSender
	SMS   SMSSender
}

func (n *Router) Dispatch(ctx context.Context, r domain.Reminder) error {
	if r.Recipient == "" {
		return fmt.Errorf("reminder %s has no recipient", r.ID)
	}
	switch r.Channel {
	case domain.ChannelEmail:
		if n.Email == nil {
			return fmt.Errorf("no email sender configured")
		}
		return n.Email.Send(r.Recipient, "Appointment reminder", r.Body)
	case domain.ChannelSMS:
		if n.SMS == nil {
			return fmt.Errorf("no sms sender configured")
		}
		return n.SMS.Send(ctx, r.Recipient, r.Body)
	default:
		return fmt.Errorf("unknown reminder channel %q", r.Channel)
	}
}

// Noop accepts every dispatch; used when no transport is configured.
type Noop struct{}

func (Noop) Dispatch(context.Context, domain.Reminder) error { return nil }
