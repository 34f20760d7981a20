//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package seed

import (
	"testing"
	"time"
)

func at(weekday time.Weekday, hour, minute int) time.Time {
	// 2026-03-02 is a Monday.
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	t := base.AddDate(0, 0, int(weekday-time.Monday))
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, time.UTC)
}

func TestActivityLevelClosedOvernight(t *testing.T) {
	for _, hour := range []int{0, 3, 6, 22, 23} {
		if got := ActivityLevel(at(time.Tuesday, hour, 0)); got != 0 {
			t.Errorf("hour %d: activity = %v, want 0 (closed)", hour, got)
		}
	}
}

func TestActivityLevelShape(t *testing.T) {
	morning := ActivityLevel(at(time.Tuesday, 8, 0))
	lunch := ActivityLevel(at(time.Tuesday, 12, 30))
	afternoon := ActivityLevel(at(time.Tuesday, 15, 0))
	evening := ActivityLevel(at(time.Tuesday, 18, 0))

	if lunch != 1.0 {
		t.Errorf("lunch peak = %v, want 1.0", lunch)
	}
	if morning >= lunch {
		t.Errorf("morning (%v) should be below the lunch peak (%v)", morning, lunch)
	}
	if afternoon >= evening {
		t.Errorf("afternoon lull (%v) should be below the evening peak (%v)", afternoon, evening)
	}
}

func TestActivityLevelWeekendBoost(t *testing.T) {
	weekday := ActivityLevel(at(time.Wednesday, 15, 0))
	weekend := ActivityLevel(at(time.Saturday, 15, 0))
	if weekend <= weekday {
		t.Errorf("weekend (%v) should exceed weekday (%v)", weekend, weekday)
	}
}

func TestActivityLevelNeverExceedsOne(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		for _, day := range []time.Weekday{time.Monday, time.Saturday} {
			if got := ActivityLevel(at(day, hour, 30)); got < 0 || got > 1 {
				t.Errorf("%v %02d:30: activity = %v, want within [0, 1]", day, hour, got)
			}
		}
	}
}

func TestHourWeightsZeroWhenClosed(t *testing.T) {
	weights := hourWeights(at(time.Tuesday, 0, 0))
	if len(weights) != 24 {
		t.Fatalf("expected 24 weights, got %d", len(weights))
	}
	for _, hour := range []int{0, 5, 23} {
		if weights[hour] != 0 {
			t.Errorf("hour %d weight = %d, want 0", hour, weights[hour])
		}
	}
	if weights[12] == 0 {
		t.Error("lunch hour weight should be positive")
	}
}
