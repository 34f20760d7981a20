//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package refresh

import (
	"testing"
	"time"

	"github.com/retailpulse/pipeline/internal/config"
)

func TestTryAcquireSingleFlight(t *testing.T) {
	s := NewScheduler(nil, config.RefreshConfig{})

	if !s.tryAcquire("agg_daily_sales") {
		t.Fatal("first acquire should succeed")
	}
	if s.tryAcquire("agg_daily_sales") {
		t.Error("second acquire of the same view should fail")
	}
	if !s.tryAcquire("agg_regional_performance") {
		t.Error("a different view should not be blocked")
	}

	s.release("agg_daily_sales")
	if !s.tryAcquire("agg_daily_sales") {
		t.Error("acquire after release should succeed")
	}
}

func TestNextTick(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"mid hour",
			time.Date(2026, 3, 10, 14, 25, 30, 0, time.UTC),
			time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		},
		{
			"exactly on the hour",
			time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
		},
		{
			"end of day",
			time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC),
			time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextTick(tt.now); !got.Equal(tt.want) {
				t.Errorf("nextTick(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
