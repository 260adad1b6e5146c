package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/domain"
)

// BookingTx is the unit of work available while the provider's calendar is
// locked. Every validate-then-write sequence runs through it.
type BookingTx interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// CreateAppointment inserts the appointment. When the insert lands on a
	// row already created under the same idempotency key with a matching
	// payload, the stored row is returned with replayed=true instead of an
	// error.
	CreateAppointment(ctx context.Context, appt domain.Appointment) (created domain.Appointment, replayed bool, err error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// ListProviderDay returns the provider's non-cancelled appointments on
	// the given date, excluding excludeID when non-nil.
	ListProviderDay(ctx context.Context, providerID string, date time.Time, excludeID uuid.UUID) ([]domain.Appointment, error)
	// CountRequesterDay counts the requester's non-cancelled appointments on
	// the given date, excluding excludeID when non-nil.
	CountRequesterDay(ctx context.Context, requesterID string, date time.Time, excludeID uuid.UUID) (int, error)

	CreateReminders(ctx context.Context, reminders []domain.Reminder) error
	CancelPendingReminders(ctx context.Context, appointmentID uuid.UUID) error

	RecordEvent(ctx context.Context, ev domain.OutboxEvent) error
}

type AppointmentRepository interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListProviderDay(ctx context.Context, providerID string, date time.Time) ([]domain.Appointment, error)

	// InProviderTransaction runs fn inside a transaction holding the
	// provider's calendar lock, serializing concurrent booking attempts for
	// the same provider.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx BookingTx) error) error
}
