package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	monitorTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tswatch",
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Steady-state poll ticks.",
		},
	)
	playbackToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tswatch",
			Subsystem: "monitor",
			Name:      "playback_toggles_total",
			Help:      "Playback toggles issued to the companion player.",
		},
		[]string{"direction"},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tswatch",
			Subsystem: "monitor",
			Name:      "disconnects_total",
			Help:      "Self-disconnects from the voice server.",
		},
		[]string{"reason"},
	)
	backoffWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tswatch",
			Subsystem: "monitor",
			Name:      "backoff_waits_total",
			Help:      "Backoff waits entered during the readiness regime.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(monitorTicks, playbackToggles, disconnects, backoffWaits)
	})
}

func RecordTick() {
	RegisterMetrics()
	monitorTicks.Inc()
}

func RecordToggle(direction string) {
	RegisterMetrics()
	playbackToggles.WithLabelValues(direction).Inc()
}

func RecordDisconnect(reason string) {
	RegisterMetrics()
	disconnects.WithLabelValues(reason).Inc()
}

func RecordBackoff(outcome string) {
	RegisterMetrics()
	backoffWaits.WithLabelValues(outcome).Inc()
}

// Handler exposes the registered metrics over HTTP.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
