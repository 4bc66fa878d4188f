// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal         prometheus.Counter
	PollFailures       *prometheus.CounterVec // label: class
	LiveActions        prometheus.Counter
	LiveActionFailures prometheus.Counter
	RecordersStarted   prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	TrackedStreamersGauge prometheus.Gauge
	LiveStreamersGauge    prometheus.Gauge
	RunningRecordersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_recorder_polls_total", Help: "Number of poll cycles attempted"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitch_recorder_poll_failures_total", Help: "Number of failed poll cycles by error class"}, []string{"class"})
		LiveActions = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_recorder_live_actions_total", Help: "Number of live-actions fired"})
		LiveActionFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_recorder_live_action_failures_total", Help: "Number of live-actions that returned an error"})
		RecordersStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "twitch_recorder_recorders_started_total", Help: "Number of recorder processes spawned"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "twitch_recorder_poll_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		TrackedStreamersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "twitch_recorder_tracked_streamers", Help: "Number of streamers in the registry"})
		LiveStreamersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "twitch_recorder_live_streamers", Help: "Number of tracked streamers live in the last successful poll"})
		RunningRecordersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "twitch_recorder_running_recorders", Help: "Recorder processes currently running"})
	})
}

// IncPolls counts one poll cycle.
func IncPolls() {
	if PollsTotal != nil {
		PollsTotal.Inc()
	}
}

// IncPollFailure counts a failed poll cycle under the given error class.
func IncPollFailure(class string) {
	if PollFailures != nil {
		PollFailures.WithLabelValues(class).Inc()
	}
}

// IncLiveAction counts a fired live-action and whether it failed.
func IncLiveAction(failed bool) {
	if LiveActions != nil {
		LiveActions.Inc()
	}
	if failed && LiveActionFailures != nil {
		LiveActionFailures.Inc()
	}
}

// IncRecordersStarted counts a spawned recorder process.
func IncRecordersStarted() {
	if RecordersStarted != nil {
		RecordersStarted.Inc()
	}
}

// SetTrackedStreamers records the registry size.
func SetTrackedStreamers(n int) {
	if TrackedStreamersGauge != nil {
		TrackedStreamersGauge.Set(float64(n))
	}
}

// SetLiveStreamers records how many tracked streamers are live.
func SetLiveStreamers(n int) {
	if LiveStreamersGauge != nil {
		LiveStreamersGauge.Set(float64(n))
	}
}

// SetRunningRecorders records how many recorder processes are running.
func SetRunningRecorders(n int) {
	if RunningRecordersGauge != nil {
		RunningRecordersGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
