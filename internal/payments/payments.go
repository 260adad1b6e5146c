package payments

import (
	"context"

	"bookline/backend/internal/domain"
)

// Redirect is where the requester completes payment.
type Redirect struct {
	URL       string
	Reference string
}

// Authority is the opaque external payment system. It only initiates
// payment; the outcome arrives later through the payment callback.
type Authority interface {
	Initiate(ctx context.Context, appt domain.Appointment, amountCents int64) (Redirect, error)
}

// Noop is used when no payment provider is configured; the booking stays
// pending until a callback is delivered by other means.
type Noop struct{}

func (Noop) Initiate(_ context.Context, appt domain.Appointment, _ int64) (Redirect, error) {
	return Redirect{Reference: "noop-" + appt.ID.String()}, nil
}
