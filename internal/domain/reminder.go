package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ReminderKind string

const (
	ReminderDayBefore     ReminderKind = "day_before"
	ReminderTwoHourBefore ReminderKind = "two_hours_before"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type ReminderStatus string

const (
	ReminderPending     ReminderStatus = "pending"
	ReminderDispatching ReminderStatus = "dispatching"
	ReminderSent        ReminderStatus = "sent"
	ReminderFailed      ReminderStatus = "failed"
	ReminderCancelled   ReminderStatus = "cancelled"
)

type Reminder struct {
	bun.BaseModel `bun:"table:reminders"`

	ID            uuid.UUID      `bun:"id,pk,type:uuid"`
	AppointmentID uuid.UUID      `bun:"appointment_id,notnull,type:uuid"`
	ScheduledFor  time.Time      `bun:"scheduled_for,notnull"`
	Kind          ReminderKind   `bun:"kind,notnull"`
	Channel       Channel        `bun:"channel,notnull"`
	Recipient     string         `bun:"recipient"`
	Body          string         `bun:"body"`
	Status        ReminderStatus `bun:"status,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	LastError     string         `bun:"last_error"`
	LeaseExpires  *time.Time     `bun:"lease_expires_at"`
	SentAt        *time.Time     `bun:"sent_at"`
	CreatedAt     time.Time      `bun:"created_at,notnull"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull"`
}

func (r *Reminder) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}
