// Package telemetry holds the Prometheus collectors for the rotation and
// gamification engines and the HTTP layer.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AssignmentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorewheel_assignments_created_total",
			Help: "Assignments created, by origin",
		},
		[]string{"origin"}, // auto, reassign, take, take_unassigned
	)

	AssignmentsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chorewheel_assignments_expired_total",
		Help: "Pending assignments expired by cycle rollover",
	})

	Completions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chorewheel_completions_total",
		Help: "Assignments completed",
	})

	Cancellations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chorewheel_cancellations_total",
		Help: "Assignments released for others to claim",
	})

	Rollovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorewheel_cycle_rollovers_total",
			Help: "Cycle rollovers, by trigger",
		},
		[]string{"trigger"}, // forced, auto
	)

	XPAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorewheel_xp_awarded_total",
			Help: "Experience points awarded, by source",
		},
		[]string{"source"},
	)

	AchievementsUnlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chorewheel_achievements_unlocked_total",
		Help: "Achievements unlocked",
	})

	ChallengeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorewheel_challenge_events_total",
			Help: "Challenge lifecycle events",
		},
		[]string{"event"}, // created, completed, claimed, expired
	)

	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorewheel_side_effect_failures_total",
			Help: "Best-effort steps that failed without failing the triggering operation",
		},
		[]string{"step"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorewheel_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chorewheel_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AssignmentsCreated, AssignmentsExpired, Completions, Cancellations, Rollovers,
			XPAwarded, AchievementsUnlocked, ChallengeEvents, SideEffectFailures,
			HTTPRequests, HTTPDuration,
		)
	})
}
