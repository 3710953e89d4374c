package notify

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts notification outcomes.
type Metrics struct {
	sent   prometheus.Counter
	failed prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apiserver",
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notifications handed to the delivery backend successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apiserver",
			Subsystem: "notifications",
			Name:      "failed_total",
			Help:      "Notifications whose delivery attempt failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.failed)
	}
	return m
}

func (m *Metrics) observeSent() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *Metrics) observeFailure() {
	if m != nil {
		m.failed.Inc()
	}
}
