package domain

import (
	"fmt"
	"time"
)

// PolicyViolationError reports a cancellation or reschedule request that is
// outside the allowed window or over a configured limit.
type PolicyViolationError struct {
	Rule     string
	Reason   string
	Deadline time.Time // zero when the rule has no deadline
}

func (e *PolicyViolationError) Error() string {
	if e.Deadline.IsZero() {
		return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Reason)
	}
	return fmt.Sprintf("policy violation (%s): %s (deadline %s)", e.Rule, e.Reason, e.Deadline.Format(time.RFC3339))
}

// CancellationPolicy is the role-specific minimum notice before start.
type CancellationPolicy struct {
	MinimumNotice time.Duration
}

// CancellationPolicies is a closed role → policy mapping. Unknown roles are
// an error, never a silent fallback to a default policy.
type CancellationPolicies map[Role]CancellationPolicy

func (p CancellationPolicies) For(role Role) (CancellationPolicy, error) {
	policy, ok := p[role]
	if !ok {
		return CancellationPolicy{}, &PolicyViolationError{
			Rule:   "unknown_role",
			Reason: fmt.Sprintf("no cancellation policy for role %q", role),
		}
	}
	return policy, nil
}

// EvaluateCancellation decides whether the appointment may be cancelled at
// now under the given policy. The deadline boundary is inclusive: a request
// made exactly at start − MinimumNotice is still allowed. Returns nil when
// cancellation is permitted; performs no mutation.
func EvaluateCancellation(a Appointment, policy CancellationPolicy, now time.Time) error {
	switch a.Status {
	case StatusCancelled:
		return &PolicyViolationError{Rule: "already_cancelled", Reason: "appointment is already cancelled"}
	case StatusCompleted:
		return &PolicyViolationError{Rule: "already_completed", Reason: "a completed appointment cannot be cancelled"}
	}

	start, err := a.StartAt()
	if err != nil {
		return err
	}
	deadline := start.Add(-policy.MinimumNotice)
	if now.UTC().After(deadline) {
		return &PolicyViolationError{
			Rule:     "cancellation_deadline",
			Reason:   fmt.Sprintf("cancellation requires %s notice before start", policy.MinimumNotice),
			Deadline: deadline,
		}
	}
	return nil
}

type ReschedulePolicy struct {
	MinimumNotice  time.Duration
	MaxReschedules int
	PenaltyPercent int
}

// RescheduleChange is the field set the lifecycle applies atomically with
// the confirmed → pending_reschedule transition.
type RescheduleChange struct {
	PreviousDate time.Time
	PreviousTime string
	NewDate      time.Time
	NewTime      string
	Count        int
}

// EvaluateReschedule checks the count cap and the notice window and, when
// both pass, returns the change to apply. The notice boundary is exclusive:
// the request must arrive strictly before start − MinimumNotice. Slot
// availability of the proposed time is the caller's job (it needs live
// provider state). No mutation.
func EvaluateReschedule(a Appointment, newDate time.Time, newTime string, policy ReschedulePolicy, now time.Time) (RescheduleChange, error) {
	if a.RescheduleCount >= policy.MaxReschedules {
		return RescheduleChange{}, &PolicyViolationError{
			Rule:   "reschedule_limit",
			Reason: fmt.Sprintf("appointment was already rescheduled %d of %d allowed times", a.RescheduleCount, policy.MaxReschedules),
		}
	}

	start, err := a.StartAt()
	if err != nil {
		return RescheduleChange{}, err
	}
	deadline := start.Add(-policy.MinimumNotice)
	if !now.UTC().Before(deadline) {
		return RescheduleChange{}, &PolicyViolationError{
			Rule:     "reschedule_deadline",
			Reason:   fmt.Sprintf("rescheduling requires %s notice before start", policy.MinimumNotice),
			Deadline: deadline,
		}
	}

	return RescheduleChange{
		PreviousDate: a.Date,
		PreviousTime: a.StartTime,
		NewDate:      newDate.UTC(),
		NewTime:      newTime,
		Count:        a.RescheduleCount + 1,
	}, nil
}
