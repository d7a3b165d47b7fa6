package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_storage_builds_total",
		Help: "Storage handler build batches by outcome.",
	}, []string{"outcome"})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docstore_storage_build_duration_seconds",
		Help:    "Wall time spent building one batch of storage handlers.",
		Buckets: prometheus.DefBuckets,
	})

	handlersBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docstore_storage_handlers_built_total",
		Help: "Storage handlers produced by successful builds.",
	})
)
