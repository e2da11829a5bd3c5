package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend calls and token refreshes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Backend requests by method and response code.",
		}, []string{"method", "code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "api",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.refreshes)
	}
	return m
}

func (m *Metrics) observeRequest(method string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(method, label).Inc()
}

func (m *Metrics) observeRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.refreshes.WithLabelValues(result).Inc()
}
