package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	iterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinaht_scheduler_iterations_total",
		Help: "Total scheduling iterations across all runs",
	})

	moduleExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinaht_module_executions_total",
		Help: "Module executions by module and outcome",
	}, []string{"module", "outcome"})

	factsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinaht_facts_committed_total",
		Help: "Facts attached to the fact graph, seeds included",
	})

	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pinaht_resolve_duration_seconds",
		Help:    "Time spent resolving one dependency resolver",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinaht_runs_finished_total",
		Help: "Finished runs by final state",
	}, []string{"state"})
)
