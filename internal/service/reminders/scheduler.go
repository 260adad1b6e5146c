package reminders

import (
	"fmt"
	"time"

	"bookline/backend/internal/domain"
)

// Lead is one entry of the reminder plan: a channel fired a fixed duration
// before the appointment start.
type Lead struct {
	Kind    domain.ReminderKind
	Channel domain.Channel
	Before  time.Duration
}

func DefaultLeads() []Lead {
	return []Lead{
		{Kind: domain.ReminderDayBefore, Channel: domain.ChannelEmail, Before: 24 * time.Hour},
		{Kind: domain.ReminderTwoHourBefore, Channel: domain.ChannelSMS, Before: 2 * time.Hour},
	}
}

type Planner struct {
	leads []Lead
}

func NewPlanner(leads []Lead) *Planner {
	if len(leads) == 0 {
		leads = DefaultLeads()
	}
	return &Planner{leads: leads}
}

// Plan derives the reminder rows for a confirmed appointment. Entries whose
// computed time is not after now are omitted, so a reminder is never
// scheduled in the past. Leads with no usable recipient are skipped.
func (p *Planner) Plan(appt domain.Appointment, now time.Time) []domain.Reminder {
	start, err := appt.StartAt()
	if err != nil {
		return nil
	}
	now = now.UTC()

	var out []domain.Reminder
	for _, lead := range p.leads {
		at := start.Add(-lead.Before)
		if !at.After(now) {
			continue
		}
		recipient := ""
		switch lead.Channel {
		case domain.ChannelEmail:
			recipient = appt.RequesterEmail
		case domain.ChannelSMS:
			recipient = appt.RequesterPhone
		}
		if recipient == "" {
			continue
		}
		out = append(out, domain.Reminder{
			AppointmentID: appt.ID,
			ScheduledFor:  at,
			Kind:          lead.Kind,
			Channel:       lead.Channel,
			Recipient:     recipient,
			Body: fmt.Sprintf("Reminder: your %s appointment is on %s at %s.",
				appt.Kind, appt.Date.Format(domain.DateFormat), appt.StartTime),
			Status: domain.ReminderPending,
		})
	}
	return out
}
