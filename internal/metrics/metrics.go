// Package metrics holds the process-wide Prometheus collectors shared
// across controller tiers, following the same registration style as the
// envelope package's nonce-cache gauge.
//
// Import Path: pdsno.io/controller/internal/metrics
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LockContention counts failed AcquireLock attempts by resource kind,
// distinguishing device-lock contention the approval engine retries from
// contention surfaced elsewhere.
var LockContention = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pdsno",
	Subsystem: "nib",
	Name:      "lock_contention_total",
	Help:      "Count of AcquireLock calls that failed because the resource was already held.",
}, []string{"resource_kind"})

// ApprovalTierDuration tracks how long a configuration request spends
// between proposal and reaching a terminal or executing state, bucketed by
// the sensitivity tier that drove its routing.
var ApprovalTierDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pdsno",
	Subsystem: "approval",
	Name:      "tier_duration_seconds",
	Help:      "Time from proposal to next state transition, by classified sensitivity tier.",
	Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
}, []string{"tier", "outcome"})

func init() {
	prometheus.MustRegister(LockContention, ApprovalTierDuration)
}
