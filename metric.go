package payroll

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricNameSpace = "payroll"
)

var (
	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricNameSpace,
			Name:      "active_streams",
			Help:      "number of active payment streams",
		},
	)
	activeSchedules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricNameSpace,
			Name:      "active_schedules",
			Help:      "number of active payment schedules",
		},
	)
	streamOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricNameSpace,
			Name:      "stream_ops_total",
			Help:      "stream lifecycle operations",
		},
		[]string{"op"},
	)
	scheduleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricNameSpace,
			Name:      "schedule_ops_total",
			Help:      "schedule lifecycle operations",
		},
		[]string{"op"},
	)
	streamPayouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricNameSpace,
			Name:      "stream_payouts_total",
			Help:      "successful stream payout requests",
		},
	)
	schedulePayouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricNameSpace,
			Name:      "schedule_payouts_total",
			Help:      "successful schedule payout requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		activeStreams,
		activeSchedules,
		streamOps,
		scheduleOps,
		streamPayouts,
		schedulePayouts,
	)
}

func NewMetricServer() {
	port := ":9000"
	log.Info("Starting metric server", "listen", port)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(port, nil); err != nil {
			panic(err)
		}
	}()
}

func metricStreamOp(op string) {
	streamOps.WithLabelValues(op).Inc()
}

func metricScheduleOp(op string) {
	scheduleOps.WithLabelValues(op).Inc()
}

func metricStreamPayout() {
	streamPayouts.Inc()
}

func metricSchedulePayout() {
	schedulePayouts.Inc()
}
