/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the compositor,
// transport and HTTP surface.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts compositor ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "showcreator_ticks_total",
		Help: "Compositor ticks evaluated.",
	})

	// TickDuration observes the cost of one tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "showcreator_tick_duration_seconds",
		Help:    "Wall time of one compositor tick.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10),
	})

	// PacketsSent counts Art-Net frames actually written, per universe.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showcreator_artnet_packets_total",
		Help: "Art-Net OpDmx packets sent.",
	}, []string{"universe"})

	// MappingMisses counts skipped channel writes due to absent roles.
	MappingMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "showcreator_mapping_misses_total",
		Help: "Channel writes skipped because the fixture lacks the role.",
	})

	// CompileSteps observes step counts of compiled sequences.
	CompileSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "showcreator_compile_steps",
		Help:    "Steps per compiled sequence.",
		Buckets: []float64{1, 8, 16, 32, 64, 128, 256},
	})

	// PlaybackPosition is the current show position in seconds.
	PlaybackPosition = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "showcreator_playback_position_seconds",
		Help: "Current playback position.",
	})

	// HTTPRequests counts API requests by endpoint and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showcreator_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"endpoint", "status"})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
