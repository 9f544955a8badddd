package runtimecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rebuildCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runtimecache_rebuild_total",
		Help: "Number of times the cached runtime was rebuilt from new :code/:heappages, by outcome.",
	}, []string{"outcome"})

	headerSubscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runtimecache_header_subscribers",
		Help: "Current number of live best-header subscribers.",
	})

	versionSubscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runtimecache_version_subscribers",
		Help: "Current number of live runtime-version subscribers.",
	})
)
