package dynamic

import "github.com/prometheus/client_golang/prometheus"

// Metrics publishes race-outcome counters. All methods are nil-safe so the
// coordinator can be used without any registry wired in.
type Metrics struct {
	wins                *prometheus.CounterVec
	delayedLocalStarts  prometheus.Counter
	interruptedBranches *prometheus.CounterVec
}

// NewMetrics creates the race counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		wins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynexec_race_wins_total",
				Help: "Races won, by strategy mode.",
			},
			[]string{"mode"},
		),
		delayedLocalStarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dynexec_delayed_local_starts_total",
				Help: "Local branches delayed because a remote execution had already completed.",
			},
		),
		interruptedBranches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynexec_interrupted_branches_total",
				Help: "Branches that abandoned a race, by strategy mode.",
			},
			[]string{"mode"},
		),
	}
	reg.MustRegister(m.wins, m.delayedLocalStarts, m.interruptedBranches)
	return m
}

func (m *Metrics) observeWin(mode Mode) {
	if m == nil {
		return
	}
	m.wins.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) observeDelayedLocalStart() {
	if m == nil {
		return
	}
	m.delayedLocalStarts.Inc()
}

func (m *Metrics) observeInterrupted(mode Mode) {
	if m == nil {
		return
	}
	m.interruptedBranches.WithLabelValues(string(mode)).Inc()
}
