// Package observe provides observability primitives for LinguaWorlds:
// OpenTelemetry metric instruments and a Prometheus exporter bridge so the
// conversation pipeline can be watched from a standard /metrics scrape.
//
// Tests should use [NewMetrics] with a private [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/linguaworlds/linguaworlds"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks end-to-end conversation turn latency (transcribe →
	// respond → speak). Use with attribute.String("language", ...).
	TurnDuration metric.Float64Histogram

	// SpeakDuration tracks speech synthesis + playback start latency.
	SpeakDuration metric.Float64Histogram

	// Turns counts processed conversation turns. Use with attributes:
	//   attribute.String("language", ...), attribute.String("status", ...)
	Turns metric.Int64Counter

	// TranscriptionFailures counts transcriptions that yielded nothing usable.
	TranscriptionFailures metric.Int64Counter

	// BackendErrors counts failed backend calls. Use with attribute:
	//   attribute.String("op", ...)
	BackendErrors metric.Int64Counter

	// CacheHits and CacheMisses count synthesized-audio cache lookups.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// ActiveSessions tracks live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote-AI conversation latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("lingua.turn.duration",
		metric.WithDescription("End-to-end conversation turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("lingua.speak.duration",
		metric.WithDescription("Speech synthesis latency up to playback start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("lingua.turns",
		metric.WithDescription("Processed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionFailures, err = m.Int64Counter("lingua.transcription.failures",
		metric.WithDescription("Transcriptions that yielded no usable text."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("lingua.backend.errors",
		metric.WithDescription("Failed calls to the conversation backend."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("lingua.speak.cache.hits",
		metric.WithDescription("Synthesized-audio cache hits."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("lingua.speak.cache.misses",
		metric.WithDescription("Synthesized-audio cache misses."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("lingua.sessions.active",
		metric.WithDescription("Live conversation sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}
