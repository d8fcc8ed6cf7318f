package parkwatch

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

var resolveNow = time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

func TestResolveDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  TargetDate
	}{
		{"short form implies current year", "3/29", TargetDate{2025, time.March, 29}},
		{"zero padded short form", "03/29", TargetDate{2025, time.March, 29}},
		{"long form uses given year", "03/29/2026", TargetDate{2026, time.March, 29}},
		{"today is accepted", "3/10", TargetDate{2025, time.March, 10}},
		{"surrounding whitespace", "  12/31 ", TargetDate{2025, time.December, 31}},
		{"leap day", "2/29/2028", TargetDate{2028, time.February, 29}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDate(tt.input, resolveNow)
			if err != nil {
				t.Fatalf("ResolveDate(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ResolveDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveDate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrInvalidFormat},
		{"iso format", "2025-03-29", ErrInvalidFormat},
		{"two digit year", "3/29/25", ErrInvalidFormat},
		{"trailing text", "3/29 please", ErrInvalidFormat},
		{"three digit month", "003/29", ErrInvalidFormat},
		{"month 13", "13/01", ErrInvalidCalendarDate},
		{"month zero", "0/12", ErrInvalidCalendarDate},
		{"day zero", "4/0", ErrInvalidCalendarDate},
		{"february 30", "02/30", ErrInvalidCalendarDate},
		{"not a leap year", "2/29/2027", ErrInvalidCalendarDate},
		{"april 31", "4/31", ErrInvalidCalendarDate},
		{"yesterday", "3/9", ErrPastDate},
		{"past year", "03/29/2024", ErrPastDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveDate(tt.input, resolveNow)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ResolveDate(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolveDate_UsesLocationOfNow(t *testing.T) {
	// 01:00 on March 11 in UTC+10 is still March 10 in UTC
	loc := time.FixedZone("AEST", 10*60*60)
	now := time.Date(2025, time.March, 11, 1, 0, 0, 0, loc)

	if _, err := ResolveDate("3/10", now); !errors.Is(err, ErrPastDate) {
		t.Errorf("ResolveDate(3/10) error = %v, want ErrPastDate in the caller's zone", err)
	}
	if _, err := ResolveDate("3/11", now); err != nil {
		t.Errorf("ResolveDate(3/11) error = %v", err)
	}
}

func TestResolveDate_EveryShortDateUsesCurrentYear(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for m := time.January; m <= time.December; m++ {
		for d := 1; d <= 31; d++ {
			input := strconv.Itoa(int(m)) + "/" + strconv.Itoa(d)
			got, err := ResolveDate(input, now)
			if errors.Is(err, ErrInvalidCalendarDate) {
				continue
			}
			if err != nil {
				t.Fatalf("ResolveDate(%q) error = %v", input, err)
			}
			if got.Year != 2025 {
				t.Fatalf("ResolveDate(%q).Year = %d, want 2025", input, got.Year)
			}
		}
	}
}

func TestTargetDate_String(t *testing.T) {
	d := TargetDate{Year: 2025, Month: time.March, Day: 9}
	if got := d.String(); got != "2025-03-09" {
		t.Errorf("String() = %q, want 2025-03-09", got)
	}
}

func TestTargetDate_IsZero(t *testing.T) {
	if !(TargetDate{}).IsZero() {
		t.Error("zero TargetDate should report IsZero")
	}
	if (TargetDate{Year: 2025, Month: time.March, Day: 29}).IsZero() {
		t.Error("set TargetDate should not report IsZero")
	}
}
