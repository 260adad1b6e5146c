package domain

import (
	"testing"
	"time"
)

func apptAt(provider, clock string, kind Kind, date time.Time) Appointment {
	return Appointment{
		ProviderID:  provider,
		RequesterID: "r1",
		Date:        date,
		StartTime:   clock,
		Kind:        kind,
		Status:      StatusConfirmed,
	}
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "09:00"},
		{in: "9:00", want: "09:00"},
		{in: "09:00:00", want: "09:00"},
		{in: " 14:30 ", want: "14:30"},
		{in: "23:59", want: "23:59"},
		{in: "24:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "nine", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("NormalizeClock(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeClock(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("NormalizeClock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasConflict_OverlapScenarios(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	existing := []Appointment{apptAt("p1", "09:00", KindStandard, date)}

	tests := []struct {
		name  string
		start string
		want  bool
	}{
		{name: "same start", start: "09:00", want: true},
		{name: "starts inside existing", start: "09:15", want: true},
		{name: "starts exactly at existing end", start: "09:30", want: false},
		{name: "ends exactly at existing start", start: "08:30", want: false},
		{name: "new interval swallows existing", start: "08:45", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := BookingCandidate{
				ProviderID: "p1",
				Date:       date,
				StartTime:  tt.start,
				Kind:       KindStandard,
			}
			if got := HasConflict(c, existing); got != tt.want {
				t.Fatalf("HasConflict(start=%s) = %v, want %v", tt.start, got, tt.want)
			}
		})
	}
}

func TestHasConflict_IgnoresOtherProviderDateAndCancelled(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	c := BookingCandidate{ProviderID: "p1", Date: date, StartTime: "09:00", Kind: KindStandard}

	otherProvider := apptAt("p2", "09:00", KindStandard, date)
	if HasConflict(c, []Appointment{otherProvider}) {
		t.Fatalf("appointments of another provider must not conflict")
	}

	otherDate := apptAt("p1", "09:00", KindStandard, date.AddDate(0, 0, 1))
	if HasConflict(c, []Appointment{otherDate}) {
		t.Fatalf("appointments on another date must not conflict")
	}

	cancelled := apptAt("p1", "09:00", KindStandard, date)
	cancelled.Status = StatusCancelled
	if HasConflict(c, []Appointment{cancelled}) {
		t.Fatalf("cancelled appointments must not conflict")
	}
}

func TestHasConflict_ToleratesSecondsInStoredTimes(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	existing := []Appointment{apptAt("p1", "09:00:00", KindStandard, date)}
	c := BookingCandidate{ProviderID: "p1", Date: date, StartTime: "09:15", Kind: KindStandard}
	if !HasConflict(c, existing) {
		t.Fatalf("expected conflict against HH:MM:SS stored time")
	}
}

func TestHasConflict_ShortKindsDoNotTouch(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	// follow_up runs 20 minutes, so 09:00 + follow_up ends 09:20.
	existing := []Appointment{apptAt("p1", "09:00", KindFollowUp, date)}
	c := BookingCandidate{ProviderID: "p1", Date: date, StartTime: "09:20", Kind: KindStandard}
	if HasConflict(c, existing) {
		t.Fatalf("slot starting at the previous end must not conflict")
	}
}
