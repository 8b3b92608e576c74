// Package metrics holds the process-wide Prometheus registry that
// every worker loop registers its collectors against, and that
// internal/health exposes over HTTP.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the registry every package's collectors are registered
// against, instead of prometheus's global DefaultRegisterer. Keeping
// it private to the process lets tests spin up multiple Watchdog or
// Dispatcher instances without colliding on collector names.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
