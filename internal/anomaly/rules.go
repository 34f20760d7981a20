//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package anomaly

import "math"

// Anomaly types produced by the detector.
const (
	TypeSuspiciousTransaction = "suspicious_transaction"
	TypeUnusualStorePattern   = "unusual_store_pattern"
	TypeHighSubstitutionRate  = "high_substitution_rate"
)

// Severities.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Rule windows in days.
const (
	suspiciousWindowDays   = 30
	storePatternWindowDays = 7
	substitutionWindowDays = 7
)

// Rule thresholds.
const (
	// minStoreTxnsForPattern is the minimum 7-day transaction count for a
	// store to participate in the cross-store deviation scan.
	minStoreTxnsForPattern = 5

	// minStoreTxnsForSubstitution is the minimum 7-day transaction count
	// for the substitution-rate scan.
	minStoreTxnsForSubstitution = 10

	// substitutionRateLimitPct flags stores whose substitution rate
	// strictly exceeds this percentage.
	substitutionRateLimitPct = 25.0
)

// SuspiciousThreshold is the flag boundary for transaction amounts:
// mean + 3 standard deviations of the trailing distribution.
func SuspiciousThreshold(mean, stddev float64) float64 {
	return mean + 3*stddev
}

// ClassifySuspicious reports whether an amount is flagged and at which
// severity. The threshold is a strict lower bound: an amount exactly at
// mean + 3*stddev is not flagged. Amounts strictly above twice the threshold
// are high severity.
func ClassifySuspicious(amount, mean, stddev float64) (bool, string) {
	threshold := SuspiciousThreshold(mean, stddev)
	if amount <= threshold {
		return false, ""
	}
	if amount > 2*threshold {
		return true, SeverityHigh
	}
	return true, SeverityMedium
}

// StoreDeviates reports whether a store's average transaction value deviates
// from the cross-store mean by strictly more than 2 standard deviations.
// The statistics are population statistics over per-store averages.
func StoreDeviates(storeAvg, fleetMean, fleetStddev float64) bool {
	if fleetStddev <= 0 {
		return false
	}
	return math.Abs(storeAvg-fleetMean) > 2*fleetStddev
}

// HighSubstitutionRate reports whether a substitution rate (in percent)
// strictly exceeds the limit.
func HighSubstitutionRate(ratePct float64) bool {
	return ratePct > substitutionRateLimitPct
}

// PopulationStats returns the mean and population standard deviation of xs.
func PopulationStats(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
