package cli

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"dynexec/internal/dynamic"
)

var (
	metricsOnce sync.Once
	raceMetrics *dynamic.Metrics
)

// driverMetrics returns the process-wide race counters, registering them
// with the default registry on first use. Registration must happen at most
// once per process no matter how many invocations run.
func driverMetrics() *dynamic.Metrics {
	metricsOnce.Do(func() {
		raceMetrics = dynamic.NewMetrics(prometheus.DefaultRegisterer)
	})
	return raceMetrics
}
