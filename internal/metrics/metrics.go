package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BroadcastEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tuweeter_broadcast_events_total",
		Help: "Realtime events accepted by the hub",
	}, []string{"event"})
	BroadcastDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tuweeter_broadcast_dropped_total",
		Help: "Realtime events or deliveries dropped",
	}, []string{"reason"})
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tuweeter_ws_connections",
		Help: "Currently registered websocket clients",
	})
	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tuweeter_mutations_total",
		Help: "Mutation engine operations by outcome",
	}, []string{"op", "outcome"})
	StoreUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuweeter_store_unavailable_total",
		Help: "Store calls that failed with a timeout or connection error",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tuweeter_rate_limited_total",
		Help: "Requests rejected by the per-IP limiter",
	})
)

func init() {
	prometheus.MustRegister(BroadcastEvents, BroadcastDropped, WSConnections, Mutations, StoreUnavailable, RateLimited)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMutation records the outcome of a mutation engine call.
func ObserveMutation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	Mutations.WithLabelValues(op, outcome).Inc()
}

func IncDropped(reason string) { BroadcastDropped.WithLabelValues(reason).Inc() }
