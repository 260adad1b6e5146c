package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DateFormat  = "2006-01-02"
	ClockFormat = "15:04"
)

type Kind string

const (
	KindStandard Kind = "standard"
	KindFollowUp Kind = "follow_up"
	KindUrgent   Kind = "urgent"
)

type kindSpec struct {
	duration  time.Duration
	fee       int64 // cents
	minNotice time.Duration
}

// kindSpecs fixes duration, fee and minimum advance notice per booking kind.
var kindSpecs = map[Kind]kindSpec{
	KindStandard: {duration: 30 * time.Minute, fee: 5000, minNotice: time.Hour},
	KindFollowUp: {duration: 20 * time.Minute, fee: 3000, minNotice: time.Hour},
	KindUrgent:   {duration: 30 * time.Minute, fee: 7500, minNotice: 15 * time.Minute},
}

func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func (k Kind) Duration() time.Duration {
	return kindSpecs[k].duration
}

func (k Kind) FeeCents() int64 {
	return kindSpecs[k].fee
}

func (k Kind) MinNotice() time.Duration {
	return kindSpecs[k].minNotice
}

type Mode string

const (
	ModeInPerson Mode = "in_person"
	ModeRemote   Mode = "remote"
)

func (m Mode) Valid() bool {
	return m == ModeInPerson || m == ModeRemote
}

type Role string

const (
	RoleProvider  Role = "provider"
	RoleRequester Role = "requester"
	// RoleSystem marks automated transitions such as a payment-failure
	// cancellation; it never maps to a cancellation policy.
	RoleSystem Role = "system"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID     `bun:"id,pk,type:uuid"`
	ProviderID     string        `bun:"provider_id,notnull"`
	RequesterID    string        `bun:"requester_id,notnull"`
	RequesterEmail string        `bun:"requester_email"`
	RequesterPhone string        `bun:"requester_phone"`
	Date           time.Time     `bun:"date,notnull"`
	StartTime      string        `bun:"start_time,notnull"`
	Kind           Kind          `bun:"kind,notnull"`
	Mode           Mode          `bun:"mode,notnull"`
	Status         Status        `bun:"status,notnull"`
	PaymentStatus  PaymentStatus `bun:"payment_status,notnull"`
	PaymentRef     string        `bun:"payment_ref"`

	CancelledAt   *time.Time `bun:"cancelled_at"`
	CancelledBy   string     `bun:"cancelled_by"`
	CancelledRole Role       `bun:"cancelled_role"`
	CancelReason  string     `bun:"cancel_reason"`

	PreviousDate     *time.Time `bun:"previous_date"`
	PreviousTime     *string    `bun:"previous_time"`
	RescheduleReason string     `bun:"reschedule_reason"`
	RescheduleCount  int        `bun:"reschedule_count,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// StartAt composes the calendar date and HH:MM start into a UTC instant.
func (a *Appointment) StartAt() (time.Time, error) {
	return ComposeStart(a.Date, a.StartTime)
}

func (a *Appointment) EndAt() (time.Time, error) {
	start, err := a.StartAt()
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(a.Kind.Duration()), nil
}

func ComposeStart(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(ClockFormat, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q: %w", clock, err)
	}
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
