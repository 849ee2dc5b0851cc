package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aamani-c/PalmIQ/internal/store"
)

// Total readings accepted from devices
var readingsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "palmiq_readings_total",
		Help: "The total number of accepted sensor readings",
	},
)

var malformedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "palmiq_malformed_messages_total",
		Help: "Device messages dropped because they could not be parsed",
	},
)

var activeConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "palmiq_ws_active_connections",
		Help: "Currently open device connections",
	},
)

var connectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "palmiq_ws_connections_total",
		Help: "Device connections accepted since start",
	},
)

// Distribution of reported vitals, one series per field
var readingValues = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "palmiq_reading_value",
		Help: "Distribution of reported heart rate (BPM), SpO2 (percent) and temperature (C)",
		Buckets: []float64{
			30, 35, 36, 37, 38, 40, // temperature
			50, 60, 80, 90, 95, 100, // spo2 / resting heart rate
			120, 150, 200, // elevated heart rate
		},
	},
	[]string{"field"},
)

var broadcastDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "palmiq_broadcast_dropped_total",
		Help: "Readings not forwarded because the broadcast queue was full",
	},
)

var sinkErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "palmiq_sink_publish_errors_total",
		Help: "Failed publishes per downstream sink",
	},
	[]string{"sink"},
)

func observeReading(r store.Reading) {
	readingsTotal.Inc()
	if r.Heart != nil {
		readingValues.WithLabelValues("heart").Observe(*r.Heart)
	}
	if r.SpO2 != nil {
		readingValues.WithLabelValues("spo2").Observe(*r.SpO2)
	}
	if r.TempC != nil {
		readingValues.WithLabelValues("temp_c").Observe(*r.TempC)
	}
}
