package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "plantmonitor_"

	ResultSuccess = "success"
	ResultError   = "error"

	ProvisionAlreadyProvisioned = "already_provisioned"
	AckDuplicate                = "duplicate"
)

var (
	registerOnce sync.Once

	commandsEnqueued  *prometheus.CounterVec
	commandsDelivered prometheus.Counter
	commandAcks       *prometheus.CounterVec
	commandsExpired   prometheus.Counter

	provisioningTotal *prometheus.CounterVec
	authFailures      prometheus.Counter

	sweepTotal    *prometheus.CounterVec
	sweepLatency  prometheus.Histogram
	devicesReaped prometheus.Counter
)

// Init registers the queue and credential metrics with the default registry.
// Recording helpers are no-ops until Init has run.
func Init() {
	registerOnce.Do(func() {
		commandsEnqueued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_enqueued_total",
				Help: "Total commands enqueued by type",
			},
			[]string{"type"},
		)
		commandsDelivered = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_delivered_total",
				Help: "Total commands handed to devices by polls",
			},
		)
		commandAcks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_acks_total",
				Help: "Total command acknowledgments by outcome",
			},
			[]string{"outcome"},
		)
		commandsExpired = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_expired_total",
				Help: "Total commands expired by the sweeper",
			},
		)
		provisioningTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "provisioning_total",
				Help: "Total provisioning attempts by result",
			},
			[]string{"result"},
		)
		authFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_auth_failures_total",
				Help: "Total rejected device requests",
			},
		)
		sweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_cycles_total",
				Help: "Total sweeper cycles by result",
			},
			[]string{"result"},
		)
		sweepLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sweep_latency_seconds",
				Help:    "Sweeper cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		devicesReaped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "devices_marked_offline_total",
				Help: "Total devices marked offline for missing heartbeats",
			},
		)

		prometheus.MustRegister(
			commandsEnqueued,
			commandsDelivered,
			commandAcks,
			commandsExpired,
			provisioningTotal,
			authFailures,
			sweepTotal,
			sweepLatency,
			devicesReaped,
		)
	})
}

// IncCommandEnqueued counts a created command.
func IncCommandEnqueued(commandType string) {
	if commandType == "" {
		commandType = "unknown"
	}
	if commandsEnqueued != nil {
		commandsEnqueued.WithLabelValues(commandType).Inc()
	}
}

// AddCommandsDelivered counts commands returned by a poll.
func AddCommandsDelivered(count int) {
	if count <= 0 {
		return
	}
	if commandsDelivered != nil {
		commandsDelivered.Add(float64(count))
	}
}

// IncCommandAck counts an acknowledgment; outcome is a command status or "duplicate".
func IncCommandAck(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if commandAcks != nil {
		commandAcks.WithLabelValues(outcome).Inc()
	}
}

// AddCommandsExpired counts commands moved to expired.
func AddCommandsExpired(count int64) {
	if count <= 0 {
		return
	}
	if commandsExpired != nil {
		commandsExpired.Add(float64(count))
	}
}

// IncProvisioning counts a provisioning attempt.
func IncProvisioning(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if provisioningTotal != nil {
		provisioningTotal.WithLabelValues(result).Inc()
	}
}

// IncAuthFailure counts a rejected device request.
func IncAuthFailure() {
	if authFailures != nil {
		authFailures.Inc()
	}
}

// ObserveSweep records one sweeper cycle.
func ObserveSweep(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if sweepTotal != nil {
		sweepTotal.WithLabelValues(result).Inc()
	}
	if sweepLatency != nil {
		sweepLatency.Observe(duration.Seconds())
	}
}

// AddDevicesReaped counts devices flipped offline.
func AddDevicesReaped(count int64) {
	if count <= 0 {
		return
	}
	if devicesReaped != nil {
		devicesReaped.Add(float64(count))
	}
}
