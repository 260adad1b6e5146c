package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/payments"
	"bookline/backend/internal/store"
)

// ReminderPlanner derives the reminder rows for a confirmed appointment.
type ReminderPlanner interface {
	Plan(appt domain.Appointment, now time.Time) []domain.Reminder
}

// ExternalDependencyError wraps a failure of an outside collaborator
// (payment provider, notifier transport).
type ExternalDependencyError struct {
	Dependency string
	Err        error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }

type Service struct {
	repo             store.AppointmentRepository
	planner          ReminderPlanner
	payments         payments.Authority
	rules            domain.BookingRules
	cancelPolicies   domain.CancellationPolicies
	reschedulePolicy domain.ReschedulePolicy
	log              *slog.Logger
	now              func() time.Time
}

type Params struct {
	Repo             store.AppointmentRepository
	Planner          ReminderPlanner
	Payments         payments.Authority
	Rules            domain.BookingRules
	CancelPolicies   domain.CancellationPolicies
	ReschedulePolicy domain.ReschedulePolicy
	Log              *slog.Logger
}

func NewService(p Params) *Service {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	pay := p.Payments
	if pay == nil {
		pay = payments.Noop{}
	}
	return &Service{
		repo:             p.Repo,
		planner:          p.Planner,
		payments:         pay,
		rules:            p.Rules,
		cancelPolicies:   p.CancelPolicies,
		reschedulePolicy: p.ReschedulePolicy,
		log:              log.With(slog.String("component", "booking")),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

type RequestBookingInput struct {
	ProviderID     string
	RequesterID    string
	RequesterEmail string
	RequesterPhone string
	Date           time.Time
	StartTime      string
	Kind           domain.Kind
	Mode           domain.Mode
	IdempotencyKey string
}

// RequestBooking validates the candidate inside the provider's calendar
// lock, creates the appointment in pending status and initiates payment.
func (s *Service) RequestBooking(ctx context.Context, in RequestBookingInput) (domain.Appointment, payments.Redirect, error) {
	var codes []domain.ValidationCode
	if strings.TrimSpace(in.ProviderID) == "" {
		codes = append(codes, domain.CodeMissingProvider)
	}
	if strings.TrimSpace(in.RequesterID) == "" {
		codes = append(codes, domain.CodeMissingRequester)
	}
	if !in.Kind.Valid() {
		codes = append(codes, domain.CodeInvalidKind)
	}
	if !in.Mode.Valid() {
		codes = append(codes, domain.CodeInvalidMode)
	}
	clock, err := domain.NormalizeClock(in.StartTime)
	if err != nil {
		codes = append(codes, domain.CodeInvalidTime)
	}
	if len(codes) > 0 {
		return domain.Appointment{}, payments.Redirect{}, &domain.ValidationError{Codes: codes}
	}

	now := s.now()
	date := in.Date.UTC().Truncate(24 * time.Hour)
	candidate := domain.BookingCandidate{
		ProviderID:  in.ProviderID,
		RequesterID: in.RequesterID,
		Date:        date,
		StartTime:   clock,
		Kind:        in.Kind,
	}

	appt := domain.Appointment{
		ProviderID:     in.ProviderID,
		RequesterID:    in.RequesterID,
		RequesterEmail: strings.TrimSpace(in.RequesterEmail),
		RequesterPhone: strings.TrimSpace(in.RequesterPhone),
		Date:           date,
		StartTime:      clock,
		Kind:           in.Kind,
		Mode:           in.Mode,
		Status:         domain.StatusPending,
		PaymentStatus:  domain.PaymentUnpaid,
	}

	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("bookline:request_booking:"+in.RequesterID+":"+key))
	}

	var created domain.Appointment
	var replayed bool
	err = s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		existing, err := tx.ListProviderDay(ctx, in.ProviderID, date, uuid.Nil)
		if err != nil {
			return err
		}
		requesterCount, err := tx.CountRequesterDay(ctx, in.RequesterID, date, uuid.Nil)
		if err != nil {
			return err
		}

		if codes := domain.ValidateBooking(candidate, existing, requesterCount, now, s.rules); len(codes) > 0 {
			return &domain.ValidationError{Codes: codes}
		}

		created, replayed, err = tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		if replayed {
			// The original request already recorded its event.
			return nil
		}
		return tx.RecordEvent(ctx, s.newEvent(created, domain.EventBookingRequested))
	})
	if err != nil {
		return domain.Appointment{}, payments.Redirect{}, err
	}

	redirect, err := s.payments.Initiate(ctx, created, created.Kind.FeeCents())
	if err != nil {
		// A booking must never dangle in pending behind an unreachable
		// payment provider.
		s.log.Error("payment initiation failed", slog.String("appointment_id", created.ID.String()), slog.Any("err", err))
		if cancelErr := s.cancelInternal(ctx, created.ID, domain.RoleSystem, "payment failed"); cancelErr != nil {
			s.log.Error("payment-failure cancellation failed", slog.String("appointment_id", created.ID.String()), slog.Any("err", cancelErr))
		}
		return domain.Appointment{}, payments.Redirect{}, &ExternalDependencyError{Dependency: "payment", Err: err}
	}

	s.log.Info("booking requested",
		slog.String("appointment_id", created.ID.String()),
		slog.String("provider_id", created.ProviderID),
		slog.String("requester_id", created.RequesterID),
		slog.String("date", created.Date.Format(domain.DateFormat)),
		slog.String("start_time", created.StartTime),
	)
	return created, redirect, nil
}

type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailure PaymentOutcome = "failure"
)

// PaymentCallback advances the booking on the payment authority's verdict.
// Idempotent on repeated delivery of the same outcome.
func (s *Service) PaymentCallback(ctx context.Context, id uuid.UUID, outcome PaymentOutcome, reference string) error {
	if outcome != PaymentOutcomeSuccess && outcome != PaymentOutcomeFailure {
		return fmt.Errorf("unknown payment outcome %q", outcome)
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		if outcome == PaymentOutcomeSuccess {
			// Replayed delivery: every post-payment status carries
			// PaymentPaid, including completed and no_show.
			if appt.PaymentStatus == domain.PaymentPaid {
				return nil
			}
			if err := domain.CheckTransition(appt.Status, domain.StatusAwaitingConfirmation); err != nil {
				return err
			}
			appt.Status = domain.StatusAwaitingConfirmation
			appt.PaymentStatus = domain.PaymentPaid
			appt.PaymentRef = reference
			if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
				return err
			}
			return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventPaymentSucceeded))
		}

		if appt.Status == domain.StatusCancelled {
			return nil
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusCancelled); err != nil {
			return err
		}
		now := s.now()
		appt.Status = domain.StatusCancelled
		appt.PaymentStatus = domain.PaymentFailed
		appt.PaymentRef = reference
		appt.CancelledAt = &now
		appt.CancelledRole = domain.RoleSystem
		appt.CancelReason = "payment failed"
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.CancelPendingReminders(ctx, appt.ID); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventPaymentFailed))
	})
}

// ConfirmBooking is the provider's confirmation action; reminders are
// scheduled on this transition and only here.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusConfirmed); err != nil {
			return err
		}
		appt.Status = domain.StatusConfirmed
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.CreateReminders(ctx, s.planner.Plan(appt, s.now())); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventBookingConfirmed))
	})
}

// CancelBooking applies the role's cancellation policy and, when allowed,
// moves the booking to cancelled and voids its pending reminders.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, actorID string, role domain.Role, reason string) error {
	policy, err := s.cancelPolicies.For(role)
	if err != nil {
		return err
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := domain.EvaluateCancellation(appt, policy, now); err != nil {
			return err
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusCancelled); err != nil {
			return err
		}
		appt.Status = domain.StatusCancelled
		appt.CancelledAt = &now
		appt.CancelledBy = actorID
		appt.CancelledRole = role
		appt.CancelReason = reason
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.CancelPendingReminders(ctx, appt.ID); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventBookingCancelled))
	})
}

// RequestReschedule moves a confirmed booking to pending_reschedule with the
// proposed slot applied and the previous slot snapshotted, after the policy
// and the proposed slot's availability both pass.
func (s *Service) RequestReschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string, reason string) error {
	clock, err := domain.NormalizeClock(newTime)
	if err != nil {
		return &domain.ValidationError{Codes: []domain.ValidationCode{domain.CodeInvalidTime}}
	}
	date := newDate.UTC().Truncate(24 * time.Hour)

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusPendingReschedule); err != nil {
			return err
		}

		now := s.now()
		change, err := domain.EvaluateReschedule(appt, date, clock, s.reschedulePolicy, now)
		if err != nil {
			return err
		}

		existing, err := tx.ListProviderDay(ctx, appt.ProviderID, date, appt.ID)
		if err != nil {
			return err
		}
		requesterCount, err := tx.CountRequesterDay(ctx, appt.RequesterID, date, appt.ID)
		if err != nil {
			return err
		}
		candidate := domain.BookingCandidate{
			ProviderID:  appt.ProviderID,
			RequesterID: appt.RequesterID,
			Date:        date,
			StartTime:   clock,
			Kind:        appt.Kind,
		}
		if codes := domain.ValidateBooking(candidate, existing, requesterCount, now, s.rules); len(codes) > 0 {
			return &domain.ValidationError{Codes: codes}
		}

		appt.Status = domain.StatusPendingReschedule
		appt.PreviousDate = &change.PreviousDate
		appt.PreviousTime = &change.PreviousTime
		appt.Date = change.NewDate
		appt.StartTime = change.NewTime
		appt.RescheduleReason = reason
		appt.RescheduleCount = change.Count
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		// Reminders for the old slot are void either way; acceptance
		// regenerates them against the new start.
		if err := tx.CancelPendingReminders(ctx, appt.ID); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventRescheduleRequested))
	})
}

// RespondToReschedule resolves a pending reschedule: acceptance re-validates
// the new slot against live state and returns to confirmed; rejection
// cancels the whole appointment.
func (s *Service) RespondToReschedule(ctx context.Context, id uuid.UUID, accept bool) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		if !accept {
			if err := domain.CheckTransition(appt.Status, domain.StatusCancelled); err != nil {
				return err
			}
			now := s.now()
			appt.Status = domain.StatusCancelled
			appt.CancelledAt = &now
			appt.CancelledRole = domain.RoleProvider
			appt.CancelReason = "reschedule rejected"
			if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
				return err
			}
			if err := tx.CancelPendingReminders(ctx, appt.ID); err != nil {
				return err
			}
			return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventRescheduleRejected))
		}

		if err := domain.CheckTransition(appt.Status, domain.StatusConfirmed); err != nil {
			return err
		}

		// The slot was validated when the reschedule was requested, but a
		// competing booking may have landed since; re-check at commit time.
		existing, err := tx.ListProviderDay(ctx, appt.ProviderID, appt.Date, appt.ID)
		if err != nil {
			return err
		}
		candidate := domain.BookingCandidate{
			ProviderID:  appt.ProviderID,
			RequesterID: appt.RequesterID,
			Date:        appt.Date,
			StartTime:   appt.StartTime,
			Kind:        appt.Kind,
		}
		if domain.HasConflict(candidate, existing) {
			return store.ErrConflict
		}

		appt.Status = domain.StatusConfirmed
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.CreateReminders(ctx, s.planner.Plan(appt, s.now())); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventRescheduleAccepted))
	})
}

// CompleteBooking marks a confirmed appointment done; only permitted on or
// after the appointment's date.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusCompleted); err != nil {
			return err
		}
		if dayStart(s.now()).Before(dayStart(appt.Date)) {
			return &domain.PolicyViolationError{
				Rule:   "completion_before_date",
				Reason: "an appointment can only be completed on or after its date",
			}
		}
		appt.Status = domain.StatusCompleted
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventBookingCompleted))
	})
}

// MarkNoShow records that the requester did not appear; never automatic.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusNoShow); err != nil {
			return err
		}
		appt.Status = domain.StatusNoShow
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventBookingNoShow))
	})
}

// GetBooking returns a single appointment by id.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// AvailableSlots computes the provider's free slot start times for a date.
func (s *Service) AvailableSlots(ctx context.Context, providerID string, date time.Time) ([]string, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, &domain.ValidationError{Codes: []domain.ValidationCode{domain.CodeMissingProvider}}
	}
	appts, err := s.repo.ListProviderDay(ctx, providerID, date.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	occupied := make([]string, 0, len(appts))
	for _, a := range appts {
		occupied = append(occupied, a.StartTime)
	}
	return domain.FreeSlots(s.rules.Hours, s.rules.Granularity, occupied)
}

func (s *Service) cancelInternal(ctx context.Context, id uuid.UUID, role domain.Role, reason string) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == domain.StatusCancelled {
			return nil
		}
		if err := domain.CheckTransition(appt.Status, domain.StatusCancelled); err != nil {
			return err
		}
		now := s.now()
		appt.Status = domain.StatusCancelled
		appt.PaymentStatus = domain.PaymentFailed
		appt.CancelledAt = &now
		appt.CancelledRole = role
		appt.CancelReason = reason
		if _, err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, s.newEvent(appt, domain.EventPaymentFailed))
	})
}

func (s *Service) newEvent(a domain.Appointment, eventType string) domain.OutboxEvent {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": a.ID.String(),
		"provider_id":    a.ProviderID,
		"requester_id":   a.RequesterID,
		"date":           a.Date.Format(domain.DateFormat),
		"start_time":     a.StartTime,
		"kind":           a.Kind,
		"mode":           a.Mode,
		"status":         a.Status,
	})
	if err != nil {
		payload = []byte(`{}`)
	}
	return domain.OutboxEvent{
		AppointmentID: a.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
