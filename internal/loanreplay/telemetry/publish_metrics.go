// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry provides opt-in, low-overhead Prometheus metrics for
// the publish pipeline. Safe to call from hot paths: when disabled, every
// public function is a no-op.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether metrics are collected and, optionally, served.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g. ":9090"; empty disables the standalone server
}

var modEnabled atomic.Bool

var (
	recordsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loan_replay_records_sent_total",
		Help: "Total records successfully handed to a sink across all lanes",
	})
	recordsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loan_replay_records_failed_total",
		Help: "Total records that exhausted retries or were dropped",
	})
	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loan_replay_retries_total",
		Help: "Total send retry attempts issued by either sink",
	})
	batchSizeHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "loan_replay_batch_size",
		Help:    "Distribution of records per observed sink call (1 for a single send, the entry count for a lane's final flush)",
		Buckets: []float64{1, 2, 5, 10},
	})
	sendLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "loan_replay_send_latency_seconds",
		Help:    "Latency of one sink call (single send or one batch flush)",
		Buckets: prometheus.DefBuckets,
	})
	laneQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loan_replay_lane_queue_depth",
		Help: "Number of records currently queued in a lane, sampled at submit time",
	}, []string{"lane"})
)

func init() {
	prometheus.MustRegister(recordsSentTotal, recordsFailedTotal, retriesTotal,
		batchSizeHist, sendLatencySeconds, laneQueueDepth)
}

// Enable turns metric collection on and, if MetricsAddr is set, starts a
// dedicated /metrics HTTP server. Safe to call more than once.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether metrics are currently collected.
func Enabled() bool { return modEnabled.Load() }

// ObserveSend records the outcome and latency of one sink call (a direct
// send or one batch flush of size n).
func ObserveSend(n int, sent, failed int, latency time.Duration) {
	if !modEnabled.Load() {
		return
	}
	if sent > 0 {
		recordsSentTotal.Add(float64(sent))
	}
	if failed > 0 {
		recordsFailedTotal.Add(float64(failed))
	}
	if n > 0 {
		batchSizeHist.Observe(float64(n))
	}
	sendLatencySeconds.Observe(latency.Seconds())
}

// ObserveRetry increments the retry counter once per extra attempt beyond
// the first for a single send or batch flush.
func ObserveRetry() {
	if !modEnabled.Load() {
		return
	}
	retriesTotal.Inc()
}

// ObserveLaneQueueDepth records a point-in-time queue depth sample for one
// lane, taken by the caller at submit time.
func ObserveLaneQueueDepth(lane int, depth int) {
	if !modEnabled.Load() {
		return
	}
	laneQueueDepth.WithLabelValues(itoa(lane)).Set(float64(depth))
}

func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
