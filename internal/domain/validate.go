package domain

import (
	"strings"
	"time"
)

type ValidationCode string

const (
	CodeMissingProvider      ValidationCode = "missing_provider_id"
	CodeMissingRequester     ValidationCode = "missing_requester_id"
	CodeInvalidKind          ValidationCode = "invalid_kind"
	CodeInvalidMode          ValidationCode = "invalid_mode"
	CodeInvalidTime          ValidationCode = "invalid_time"
	CodeStartInPast          ValidationCode = "start_in_past"
	CodeOutsideBusinessHours ValidationCode = "outside_business_hours"
	CodeSlotConflict         ValidationCode = "slot_conflict"
	CodeBeyondMaxAdvance     ValidationCode = "beyond_max_advance"
	CodeBelowMinNotice       ValidationCode = "below_min_notice"
	CodeProviderDailyLimit   ValidationCode = "provider_daily_limit"
	CodeRequesterDailyLimit  ValidationCode = "requester_daily_limit"
)

// ValidationError carries every rule a booking candidate broke, so a caller
// can surface all of them at once.
type ValidationError struct {
	Codes []ValidationCode
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Codes))
	for i, c := range e.Codes {
		parts[i] = string(c)
	}
	return "booking validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Has(code ValidationCode) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

type BookingCandidate struct {
	ProviderID  string
	RequesterID string
	Date        time.Time
	StartTime   string // normalized HH:MM
	Kind        Kind
}

// BookingRules holds the configured limits the validator enforces.
type BookingRules struct {
	Hours             BusinessHours
	Granularity       time.Duration
	MaxAdvance        time.Duration
	ProviderDailyMax  int
	RequesterDailyMax int
}

// ValidateBooking runs every eligibility check on the candidate and returns
// the full list of broken rules; an empty slice means the candidate is
// bookable. existing must be the provider's non-cancelled appointments on
// the candidate date, and requesterSameDay the requester's non-cancelled
// count on that date. Pure decision over supplied state.
func ValidateBooking(c BookingCandidate, existing []Appointment, requesterSameDay int, now time.Time, rules BookingRules) []ValidationCode {
	var codes []ValidationCode

	start, err := ComposeStart(c.Date, c.StartTime)
	if err != nil {
		// Without a parseable start the temporal checks are meaningless.
		return []ValidationCode{CodeInvalidTime}
	}
	now = now.UTC()

	if !start.After(now) {
		codes = append(codes, CodeStartInPast)
	}
	if !rules.Hours.Contains(c.StartTime, c.Kind.Duration()) {
		codes = append(codes, CodeOutsideBusinessHours)
	}
	if HasConflict(c, existing) {
		codes = append(codes, CodeSlotConflict)
	}
	if start.Sub(now) > rules.MaxAdvance {
		codes = append(codes, CodeBeyondMaxAdvance)
	}
	if start.After(now) && start.Sub(now) < c.Kind.MinNotice() {
		codes = append(codes, CodeBelowMinNotice)
	}
	if rules.ProviderDailyMax > 0 && len(existing) >= rules.ProviderDailyMax {
		codes = append(codes, CodeProviderDailyLimit)
	}
	if rules.RequesterDailyMax > 0 && requesterSameDay >= rules.RequesterDailyMax {
		codes = append(codes, CodeRequesterDailyLimit)
	}
	return codes
}
