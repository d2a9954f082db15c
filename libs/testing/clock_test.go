package testing

import (
	"context"
	"testing"
	"time"
)

func TestSystemClock(t *testing.T) {
	clock := SystemClock{}

	before := time.Now()
	clockTime := clock.Now()
	after := time.Now()

	if clockTime.Before(before) || clockTime.After(after) {
		t.Errorf("SystemClock.Now() returned time outside expected range: %v (should be between %v and %v)",
			clockTime, before, after)
	}
}

func TestFixedClock(t *testing.T) {
	fixedTime := time.Date(2026, 2, 13, 9, 30, 0, 0, time.UTC)
	clock := FixedClock{T: fixedTime}

	for i := 0; i < 5; i++ {
		if got := clock.Now(); !got.Equal(fixedTime) {
			t.Errorf("FixedClock.Now() = %v, want %v", got, fixedTime)
		}
	}
}

func TestManualClock(t *testing.T) {
	startTime := time.Date(2026, 2, 13, 9, 30, 0, 0, time.UTC)
	clock := NewManualClock(startTime)

	if got := clock.Now(); !got.Equal(startTime) {
		t.Errorf("ManualClock.Now() = %v, want %v", got, startTime)
	}

	clock.Advance(1 * time.Hour)
	expected := startTime.Add(1 * time.Hour)
	if got := clock.Now(); !got.Equal(expected) {
		t.Errorf("After Advance(1h), ManualClock.Now() = %v, want %v", got, expected)
	}

	newTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock.Set(newTime)
	if got := clock.Now(); !got.Equal(newTime) {
		t.Errorf("After Set(), ManualClock.Now() = %v, want %v", got, newTime)
	}
}

func TestWithClock(t *testing.T) {
	fixedTime := time.Date(2026, 2, 13, 9, 30, 0, 0, time.UTC)
	clock := FixedClock{T: fixedTime}

	ctx := WithClock(context.Background(), clock)

	got := ClockFromContext(ctx).Now()
	if !got.Equal(fixedTime) {
		t.Errorf("Clock from context returned %v, want %v", got, fixedTime)
	}
}

func TestClockFromContextDefault(t *testing.T) {
	clock := ClockFromContext(context.Background())
	if _, ok := clock.(SystemClock); !ok {
		t.Fatalf("expected SystemClock default, got %T", clock)
	}
}

func TestNow(t *testing.T) {
	fixedTime := time.Date(2026, 2, 13, 14, 45, 30, 0, time.UTC)
	ctx := WithClock(context.Background(), FixedClock{T: fixedTime})

	if got := Now(ctx); !got.Equal(fixedTime) {
		t.Errorf("Now(ctx) = %v, want %v", got, fixedTime)
	}
}
