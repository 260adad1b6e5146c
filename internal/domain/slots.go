package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfiguration = errors.New("invalid slot configuration")

// BusinessHours is the daily open window, in whole local hours.
// CloseHour is exclusive: OpenHour 9 and CloseHour 17 means 09:00–17:00.
type BusinessHours struct {
	OpenHour  int
	CloseHour int
}

func (h BusinessHours) validate() error {
	if h.OpenHour < 0 || h.CloseHour > 24 || h.OpenHour >= h.CloseHour {
		return fmt.Errorf("%w: open=%d close=%d", ErrInvalidConfiguration, h.OpenHour, h.CloseHour)
	}
	return nil
}

// Contains reports whether a slot of the given duration starting at the
// HH:MM clock fits entirely inside the open window.
func (h BusinessHours) Contains(clock string, duration time.Duration) bool {
	start, err := clockMinutes(clock)
	if err != nil {
		return false
	}
	end := start + int(duration.Minutes())
	return start >= h.OpenHour*60 && end <= h.CloseHour*60
}

// FreeSlots returns the ordered HH:MM start times of every free slot in the
// open window at the given granularity, excluding occupied start times.
// Occupied entries tolerate HH:MM:SS input; malformed entries or
// configuration are rejected with ErrInvalidConfiguration.
func FreeSlots(hours BusinessHours, granularity time.Duration, occupied []string) ([]string, error) {
	if err := hours.validate(); err != nil {
		return nil, err
	}
	step := int(granularity.Minutes())
	if step <= 0 {
		return nil, fmt.Errorf("%w: granularity %s", ErrInvalidConfiguration, granularity)
	}

	taken := make(map[string]struct{}, len(occupied))
	for _, o := range occupied {
		norm, err := NormalizeClock(o)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		taken[norm] = struct{}{}
	}

	var slots []string
	for m := hours.OpenHour * 60; m+step <= hours.CloseHour*60; m += step {
		clock := fmt.Sprintf("%02d:%02d", m/60, m%60)
		if _, ok := taken[clock]; ok {
			continue
		}
		slots = append(slots, clock)
	}
	return slots, nil
}
