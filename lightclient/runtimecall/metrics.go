package runtimecall

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// retryCount tracks how often RecentBestBlockRuntimeCall has to
// restart its snapshot/proof-fetch because the tracked runtime's spec
// version changed underneath it (spec §4.6 step 3, scenario 3).
var retryCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "runtimecall_retry_total",
	Help: "Number of times a runtime call restarted after observing a concurrent runtime upgrade.",
})
