package metricsvc

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/shule/core/token"
	"github.com/trezcool/shule/services/schoolapi"
)

var (
	_ token.Observer     = (*Metrics)(nil) // interface compliance check
	_ schoolapi.Observer = (*Metrics)(nil)
)

// Metrics holds the prometheus collectors for the session/token core.
type Metrics struct {
	refreshes      *prometheus.CounterVec
	requests       *prometheus.CounterVec
	guardRedirects prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shule",
			Name:      "token_refreshes_total",
			Help:      "Token refresh attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shule",
			Name:      "backend_requests_total",
			Help:      "Backend requests by method, status and whether they were retried after a refresh.",
		}, []string{"method", "status", "retried"}),
		guardRedirects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shule",
			Name:      "guard_redirects_total",
			Help:      "Navigations redirected to login by the route guard.",
		}),
	}
}

// ObserveRefresh implements token.Observer.
func (m *Metrics) ObserveRefresh(trigger string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.refreshes.WithLabelValues(trigger, outcome).Inc()
}

// ObserveRequest implements schoolapi.Observer.
func (m *Metrics) ObserveRequest(method string, status int, retried bool) {
	m.requests.WithLabelValues(method, strconv.Itoa(status), strconv.FormatBool(retried)).Inc()
}

// ObserveGuardRedirect counts a route guard redirect to login.
func (m *Metrics) ObserveGuardRedirect() {
	m.guardRedirects.Inc()
}
