package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/domain"
)

// DueReminder pairs a claimed reminder with its owning appointment's status
// at claim time, so the processor can skip reminders whose appointment is no
// longer confirmed.
type DueReminder struct {
	Reminder    domain.Reminder
	OwnerStatus domain.Status
}

type ReminderRepository interface {
	// ClaimDue atomically moves up to limit due pending reminders to
	// dispatching with a lease, and returns them. Safe to call from
	// multiple worker instances.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]DueReminder, error)

	// ReclaimExpired returns dispatching reminders whose lease has lapsed
	// back to pending, and reports how many it reclaimed.
	ReclaimExpired(ctx context.Context, now time.Time) (int64, error)

	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed records a dispatch failure; the reminder returns to pending
	// until attempts reaches maxAttempts, then becomes failed.
	MarkFailed(ctx context.Context, id uuid.UUID, attempts, maxAttempts int, lastError string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}
