package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sampling metrics
	SamplesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_samples_total",
			Help: "Total number of price samples attempted",
		},
		[]string{"chain", "status"}, // recorded, fetch_error, store_error
	)

	PriceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_price_fetch_duration_seconds",
			Help:    "Duration of price source calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"chain"},
	)

	LatestPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricewatch_latest_price_usd",
			Help: "Most recently sampled USD price per chain",
		},
		[]string{"chain"},
	)

	// Evaluation metrics
	AlertsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_alerts_evaluated_total",
			Help: "Total number of alert evaluations",
		},
		[]string{"status"}, // ok, failed
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_notifications_total",
			Help: "Total number of notifications attempted",
		},
		[]string{"rule", "status"}, // relative_change/threshold, success/error
	)

	// Loop metrics
	TickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_tick_duration_seconds",
			Help:    "Duration of scheduler ticks",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"loop"},
	)

	LastTick = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricewatch_last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick",
		},
		[]string{"loop"},
	)

	HealthCheckStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_health_check_status",
			Help: "Health check status (1 = healthy, 0 = unhealthy)",
		},
	)
)

// RecordSample records the outcome of one per-chain sampling attempt.
func RecordSample(chain, status string, fetchDuration time.Duration) {
	SamplesRecorded.WithLabelValues(chain, status).Inc()
	if fetchDuration > 0 {
		PriceFetchDuration.WithLabelValues(chain).Observe(fetchDuration.Seconds())
	}
}

// RecordPrice publishes the latest sampled price.
func RecordPrice(chain string, price float64) {
	LatestPrice.WithLabelValues(chain).Set(price)
}

// RecordEvaluation records one alert evaluation.
func RecordEvaluation(failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	AlertsEvaluated.WithLabelValues(status).Inc()
}

// RecordNotification records one notification attempt.
func RecordNotification(rule string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	NotificationsSent.WithLabelValues(rule, status).Inc()
}

// RecordTick records a finished scheduler tick.
func RecordTick(loop string, duration time.Duration, at time.Time) {
	TickDuration.WithLabelValues(loop).Observe(duration.Seconds())
	LastTick.WithLabelValues(loop).Set(float64(at.Unix()))
}

// RecordHealthCheck records health check status.
func RecordHealthCheck(healthy bool) {
	if healthy {
		HealthCheckStatus.Set(1)
	} else {
		HealthCheckStatus.Set(0)
	}
}
