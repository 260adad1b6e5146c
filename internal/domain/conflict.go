package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeClock canonicalizes a wall-clock string to zero-padded HH:MM.
// Seconds are tolerated and dropped ("09:00:00" → "09:00").
func NormalizeClock(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return "", fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("invalid clock time %q", s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

func clockMinutes(s string) (int, error) {
	norm, err := NormalizeClock(s)
	if err != nil {
		return 0, err
	}
	h, _ := strconv.Atoi(norm[:2])
	m, _ := strconv.Atoi(norm[3:])
	return h*60 + m, nil
}

func sameDate(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.YearDay() == bu.YearDay()
}

// HasConflict reports whether the candidate's [start, start+duration)
// interval intersects any existing non-cancelled appointment for the same
// provider on the same date. Different providers or dates never conflict.
func HasConflict(c BookingCandidate, existing []Appointment) bool {
	newStart, err := clockMinutes(c.StartTime)
	if err != nil {
		return false
	}
	newEnd := newStart + int(c.Kind.Duration().Minutes())

	for _, a := range existing {
		if a.Status == StatusCancelled {
			continue
		}
		if a.ProviderID != c.ProviderID || !sameDate(a.Date, c.Date) {
			continue
		}
		start, err := clockMinutes(a.StartTime)
		if err != nil {
			continue
		}
		end := start + int(a.Kind.Duration().Minutes())
		if newStart < end && newEnd > start {
			return true
		}
	}
	return false
}
