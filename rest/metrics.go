package rest

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restclient_requests_total",
		Help: "Requests sent to REST devices.",
	}, []string{"method"})
	failuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restclient_request_failures_total",
		Help: "Requests to REST devices that failed after retrying.",
	}, []string{"method"})
	noSocketCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "restclient_no_socket_total",
		Help: "Requests rejected because every socket was busy.",
	})
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		requestsCounter,
		failuresCounter,
		noSocketCounter,
	)
}
