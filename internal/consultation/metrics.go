package consultation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultation_sessions_started_total",
		Help: "Start calls by outcome (created or resumed)",
	}, []string{"outcome"})

	answersRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultation_answers_total",
		Help: "Answers recorded by answer value",
	}, []string{"answer"})

	diagnosesReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consultation_diagnosis_candidates_total",
		Help: "Answers that reached a terminal node of the decision tree",
	})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultation_status_transitions_total",
		Help: "Lifecycle transitions by target status",
	}, []string{"status"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultation_errors_total",
		Help: "Failed service operations by operation and error kind",
	}, []string{"op", "kind"})

	writeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consultation_write_conflict_retries_total",
		Help: "Read-modify-write cycles retried after a version conflict",
	})
)
