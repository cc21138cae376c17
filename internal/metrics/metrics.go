package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schoolcore", Name: "logins_total", Help: "Login attempts by outcome",
	}, []string{"outcome"})
	AttendanceBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "schoolcore", Name: "attendance_batches_total", Help: "Committed attendance batches",
	})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "schoolcore", Name: "handler_errors_total", Help: "Requests answered with a 5xx",
	})
)

func init() {
	prometheus.MustRegister(Logins, AttendanceBatches, HandlerErrors)
}

func Handler() http.Handler { return promhttp.Handler() }
