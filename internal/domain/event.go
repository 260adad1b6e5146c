package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OutboxEvent is a lifecycle event recorded in the same transaction as the
// state change it describes; a separate publisher drains it to the broker.
type OutboxEvent struct {
	bun.BaseModel `bun:"table:outbox_events"`

	ID            int64      `bun:"id,pk,autoincrement"`
	AppointmentID uuid.UUID  `bun:"appointment_id,notnull,type:uuid"`
	EventType     string     `bun:"event_type,notnull"`
	Payload       []byte     `bun:"payload,type:jsonb"`
	PublishedAt   *time.Time `bun:"published_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
}

func (e *OutboxEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

const (
	EventBookingRequested    = "booking.requested.v1"
	EventPaymentSucceeded    = "booking.payment_succeeded.v1"
	EventPaymentFailed       = "booking.payment_failed.v1"
	EventBookingConfirmed    = "booking.confirmed.v1"
	EventBookingCancelled    = "booking.cancelled.v1"
	EventRescheduleRequested = "booking.reschedule_requested.v1"
	EventRescheduleAccepted  = "booking.reschedule_accepted.v1"
	EventRescheduleRejected  = "booking.reschedule_rejected.v1"
	EventBookingCompleted    = "booking.completed.v1"
	EventBookingNoShow       = "booking.no_show.v1"
)
