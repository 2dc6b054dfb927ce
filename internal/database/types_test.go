package database

import (
	"errors"
	"testing"
	"time"
)

func TestNewDayKey_TruncatesToDate(t *testing.T) {
	ts := time.Date(2026, 3, 9, 17, 45, 12, 99, time.FixedZone("CET", 3600))
	key := NewDayKey(4, 7, ts)

	if key.DateString() != "2026-03-09" {
		t.Errorf("expected 2026-03-09, got %s", key.DateString())
	}
	if key.Date.Hour() != 0 || key.Date.Location() != time.UTC {
		t.Errorf("expected midnight UTC, got %v", key.Date)
	}
	if key.LockKey() != "4/2026-03-09" {
		t.Errorf("unexpected lock key %q", key.LockKey())
	}
	if key.DateNumber() != 20260309 {
		t.Errorf("unexpected date number %d", key.DateNumber())
	}
}

func TestDayKey_LockKeyIgnoresOwner(t *testing.T) {
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if NewDayKey(1, 1, date).LockKey() != NewDayKey(1, 2, date).LockKey() {
		t.Error("lock key should depend only on classroom and date")
	}
	if NewDayKey(1, 1, date).LockKey() == NewDayKey(2, 1, date).LockKey() {
		t.Error("different classrooms must not share a lock key")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2026-10-18", false},
		{"2026-02-30", true},
		{"18/10/2026", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestDateRange_Contains(t *testing.T) {
	d := func(s string) time.Time {
		t, _ := ParseDate(s)
		return t
	}
	r := DateRange{From: d("2026-01-10"), To: d("2026-01-20")}

	if !r.Contains(d("2026-01-10")) || !r.Contains(d("2026-01-20")) {
		t.Error("range bounds should be inclusive")
	}
	if r.Contains(d("2026-01-09")) || r.Contains(d("2026-01-21")) {
		t.Error("dates outside range should not be contained")
	}
	if !(DateRange{}).Contains(d("1999-12-31")) {
		t.Error("open range should contain everything")
	}
}

func TestProvider_NotInitialized(t *testing.T) {
	ResetBackend()
	t.Cleanup(ResetBackend)

	if IsInitialized() {
		t.Fatal("expected provider to be uninitialized")
	}
	if _, err := GetRosterWriter(t.Context()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := GetAttendanceStore(t.Context()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestProvider_RegisterBackend(t *testing.T) {
	ResetBackend()
	t.Cleanup(ResetBackend)

	RegisterBackend("test", nil, nil)

	if !IsInitialized() || BackendName() != "test" {
		t.Fatalf("expected registered test backend, got %q", BackendName())
	}
	if _, err := GetRosterReader(t.Context()); err == nil {
		t.Error("expected error for missing roster constructor")
	}
}
