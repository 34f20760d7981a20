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
	"time"
)

// ActivityLevel returns relative store footfall for an instant, in [0, 1].
// Stores are closed overnight, ramp up through the morning, dip after the
// lunch peak and peak again in the early evening. Weekends run hotter than
// weekdays.
//
// The curve shapes generated transaction timestamps: an hour with twice the
// activity receives roughly twice the transactions.
func ActivityLevel(t time.Time) float64 {
	hour := t.Hour()
	minute := t.Minute()
	weekday := t.Weekday()

	// Weekend: 30% more traffic all day
	weekendFactor := 1.0
	if weekday == time.Saturday || weekday == time.Sunday {
		weekendFactor = 1.30
	}

	decimalHour := float64(hour) + float64(minute)/60.0

	// Closed: 10PM - 7AM
	if hour >= 22 || hour < 7 {
		return 0.0
	}

	var base float64
	switch {
	// Morning ramp: 7AM - 10AM (20% to 70%)
	case hour < 10:
		progress := (decimalHour - 7.0) / 3.0
		base = 0.20 + 0.50*progress

	// Lunch peak: 10AM - 2PM
	case hour < 14:
		base = 0.85
		if hour == 12 {
			base = 1.0
		}

	// Afternoon lull: 2PM - 5PM
	case hour < 17:
		base = 0.55

	// Evening peak: 5PM - 8PM
	case hour < 20:
		base = 0.95

	// Wind down: 8PM - 10PM (60% down to 15%)
	default:
		progress := (decimalHour - 20.0) / 2.0
		base = 0.60 - 0.45*progress
	}

	level := base * weekendFactor
	if level > 1.0 {
		level = 1.0
	}
	return level
}

// hourWeights converts the activity curve into integer weights for one day,
// suitable for weighted hour selection.
func hourWeights(day time.Time) []int {
	weights := make([]int, 24)
	for h := 0; h < 24; h++ {
		at := time.Date(day.Year(), day.Month(), day.Day(), h, 30, 0, 0, day.Location())
		weights[h] = int(ActivityLevel(at) * 100)
	}
	return weights
}
