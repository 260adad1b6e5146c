package domain

import "fmt"

type Status string

const (
	StatusPending              Status = "pending"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusPendingReschedule    Status = "pending_reschedule"
	StatusCompleted            Status = "completed"
	StatusNoShow               Status = "no_show"
	StatusCancelled            Status = "cancelled"
)

// transitions is the closed set of legal status moves. Anything not listed
// here is rejected with *InvalidTransitionError.
var transitions = map[Status][]Status{
	StatusPending:              {StatusAwaitingConfirmation, StatusCancelled},
	StatusAwaitingConfirmation: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:            {StatusCompleted, StatusNoShow, StatusPendingReschedule, StatusCancelled},
	StatusPendingReschedule:    {StatusConfirmed, StatusCancelled},
	StatusCompleted:            nil,
	StatusNoShow:               nil,
	StatusCancelled:            nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

func (s Status) canTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

// CheckTransition returns nil when moving from → to is on the transition
// table, and *InvalidTransitionError otherwise.
func CheckTransition(from, to Status) error {
	if !from.canTransitionTo(to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
