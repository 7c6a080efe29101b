package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "olympiad"

var (
	AttemptsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "attempts_started_total",
		Help:      "Number of quiz attempts started, by whether an unsubmitted attempt was resumed.",
	}, []string{"resumed"})

	AttemptsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "attempts_submitted_total",
		Help:      "Number of quiz attempts persisted, by submission reason and outcome.",
	}, []string{"reason", "passed"})

	SubmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "submit_failures_total",
		Help:      "Number of submissions that could not be persisted, by submission reason.",
	}, []string{"reason"})

	WarningsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "proctoring",
		Name:      "warnings_observed_total",
		Help:      "Number of proctoring warning increases observed by quiz sessions.",
	})

	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "live",
		Help:      "Number of quiz sessions held in memory.",
	})
)
