// Copyright 2025 UMH Systems GmbH
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

package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
	"github.com/united-manufacturing-hub/ircmux/pkg/sentry"
)

const (
	// Component Labels.
	ComponentCoordinator   = "coordinator"
	ComponentWorker        = "worker"
	ComponentLogAggregator = "log_aggregator"
	ComponentLogSink       = "log_sink"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "ircmux"
	subsystem = "core"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	// Worker state.
	workerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worker_state",
			Help:      "Current state of the connection worker (0=Idle, 1=Connecting, 2=Handshaking, 3=Joining, 4=Active, 5=Reconnecting, 6=Disconnecting, 7=Terminated, -1=Unknown)",
		},
		[]string{"server"},
	)

	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts per server",
		},
		[]string{"server"},
	)

	reconnectDelay = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay of the most recently scheduled reconnect per server",
		},
		[]string{"server"},
	)

	joinedChannels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "joined_channels",
			Help:      "Number of channels with a confirmed join per server",
		},
		[]string{"server"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Total number of dispatched commands by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Log pipeline.
	logRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "log_records_total",
			Help:      "Log records by outcome (enqueued, spilled, dropped, written, failed)",
		},
		[]string{"outcome"},
	)

	logQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "log_queue_depth",
			Help:      "Number of log records waiting for the aggregator",
		},
	)

	logSinkWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "log_sink_write_duration_seconds",
			Help:      "Duration of a single log sink write in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	logRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "log_rotations_total",
			Help:      "Total number of log file rotations",
		},
	)

	// Starvation timer.
	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "log_pipeline_starved_total_seconds",
			Help:      "Total seconds the log aggregator made no progress while records were pending",
		},
	)
)

// StatusProvider provides worker introspection data for the debug endpoint.
type StatusProvider interface {
	GetDebugInfo() interface{}
}

var statusRegistry struct {
	providers map[string]StatusProvider
	mu        sync.RWMutex
}

// RegisterStatusProvider registers a provider for the /debug/workers endpoint.
func RegisterStatusProvider(name string, provider StatusProvider) {
	statusRegistry.mu.Lock()
	defer statusRegistry.mu.Unlock()

	if statusRegistry.providers == nil {
		statusRegistry.providers = make(map[string]StatusProvider)
	}

	statusRegistry.providers[name] = provider
}

// UnregisterStatusProvider removes a provider from the registry.
func UnregisterStatusProvider(name string) {
	statusRegistry.mu.Lock()
	defer statusRegistry.mu.Unlock()

	delete(statusRegistry.providers, name)
}

// handleWorkersDebug handles the /debug/workers endpoint.
func handleWorkersDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	statusRegistry.mu.RLock()
	defer statusRegistry.mu.RUnlock()

	response := make(map[string]interface{}, len(statusRegistry.providers))
	for name, provider := range statusRegistry.providers {
		response[name] = provider.GetDebugInfo()
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(response); err != nil {
		http.Error(w, "Failed to encode debug info", http.StatusInternalServerError)
	}
}

// NewHandler returns the handler serving /metrics and /debug/workers.
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/workers", handleWorkersDebug)

	return mux
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	server := &http.Server{
		Addr:        addr,
		Handler:     NewHandler(),
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeError, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// UpdateWorkerState records the current state of a worker.
func UpdateWorkerState(server, state string) {
	workerState.WithLabelValues(server).Set(getStateValue(state))
}

// RecordReconnect records a scheduled reconnect and its delay.
func RecordReconnect(server string, delay time.Duration) {
	reconnectsTotal.WithLabelValues(server).Inc()
	reconnectDelay.WithLabelValues(server).Set(delay.Seconds())
}

// SetJoinedChannels records the number of confirmed channel joins.
func SetJoinedChannels(server string, n int) {
	joinedChannels.WithLabelValues(server).Set(float64(n))
}

// RecordCommand records the outcome of a dispatched command.
func RecordCommand(kind, result string) {
	commandsTotal.WithLabelValues(kind, result).Inc()
}

// RecordLogEnqueued counts a record accepted by the log queue.
func RecordLogEnqueued() {
	logRecordsTotal.WithLabelValues("enqueued").Inc()
	logQueueDepth.Inc()
}

// RecordLogDropped counts a record rejected because the log queue was closed.
func RecordLogDropped() {
	logRecordsTotal.WithLabelValues("dropped").Inc()
}

// RecordLogSpilled counts a record that overflowed the log queue channel.
func RecordLogSpilled() {
	logRecordsTotal.WithLabelValues("spilled").Inc()
}

// RecordLogDequeued marks a record as taken off the queue.
func RecordLogDequeued() {
	logQueueDepth.Dec()
}

// RecordLogWritten records a completed sink write.
func RecordLogWritten(duration time.Duration) {
	logRecordsTotal.WithLabelValues("written").Inc()
	logSinkWriteDuration.Observe(duration.Seconds())
}

// RecordLogWriteFailed counts a failed sink write.
func RecordLogWriteFailed() {
	logRecordsTotal.WithLabelValues("failed").Inc()
	IncErrorCount(ComponentLogSink, "write")
}

// RecordLogRotation counts a log file rotation.
func RecordLogRotation() {
	logRotationsTotal.Inc()
}

// AddStarvationTime increases the starvation counter by the specified seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}

// getStateValue converts a state string to a numeric value for the metric.
func getStateValue(state string) float64 {
	switch state {
	case "idle":
		return 0
	case "connecting":
		return 1
	case "handshaking":
		return 2
	case "joining":
		return 3
	case "active":
		return 4
	case "reconnecting":
		return 5
	case "disconnecting":
		return 6
	case "terminated":
		return 7
	default:
		return -1 // Unknown state
	}
}
