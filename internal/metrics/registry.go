package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// Registry holds the scoring metrics. It implements fraud.Recorder.
type Registry struct {
	meter metric.Meter

	ChannelDuration     metric.Float64Histogram
	ChannelDegraded     metric.Int64Counter
	DecisionScore       metric.Float64Histogram
	DecisionCounter     metric.Int64Counter
	FraudCounter        metric.Int64Counter
	TranscriptionPolls  metric.Int64Histogram
	TranscriptionResult metric.Int64Counter
	InFlightRequests    metric.Int64ObservableGauge

	inFlight atomic.Int64
}

// NewRegistry creates the registry on the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	return NewRegistryWithProvider(otel.GetMeterProvider(), meterName)
}

// NewRegistryWithProvider creates the registry on mp
func NewRegistryWithProvider(mp metric.MeterProvider, meterName string) (*Registry, error) {
	r := &Registry{meter: mp.Meter(meterName)}

	if err := r.initChannelMetrics(); err != nil {
		return nil, err
	}
	if err := r.initDecisionMetrics(); err != nil {
		return nil, err
	}
	if err := r.initTranscriptionMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initChannelMetrics() error {
	var err error

	r.ChannelDuration, err = r.meter.Float64Histogram(
		"deepguard.channel.duration",
		metric.WithDescription("Duration of one channel scoring in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000, 30000, 120000, 300000),
	)
	if err != nil {
		return err
	}

	r.ChannelDegraded, err = r.meter.Int64Counter(
		"deepguard.channel.degraded_total",
		metric.WithDescription("Channel scorings that fell back to the neutral score"),
	)
	if err != nil {
		return err
	}

	r.InFlightRequests, err = r.meter.Int64ObservableGauge(
		"deepguard.requests.in_flight",
		metric.WithDescription("Assessments currently being processed"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.inFlight.Load())
			return nil
		}),
	)
	return err
}

func (r *Registry) initDecisionMetrics() error {
	var err error

	r.DecisionScore, err = r.meter.Float64Histogram(
		"deepguard.decision.risk_score",
		metric.WithDescription("Fused risk score per decision"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	if err != nil {
		return err
	}

	r.DecisionCounter, err = r.meter.Int64Counter(
		"deepguard.decision.total",
		metric.WithDescription("Total fused decisions"),
	)
	if err != nil {
		return err
	}

	r.FraudCounter, err = r.meter.Int64Counter(
		"deepguard.decision.fraud_total",
		metric.WithDescription("Decisions above the fraud threshold"),
	)
	return err
}

func (r *Registry) initTranscriptionMetrics() error {
	var err error

	r.TranscriptionPolls, err = r.meter.Int64Histogram(
		"deepguard.transcription.polls",
		metric.WithDescription("Status polls per transcription job"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 40, 60),
	)
	if err != nil {
		return err
	}

	r.TranscriptionResult, err = r.meter.Int64Counter(
		"deepguard.transcription.jobs_total",
		metric.WithDescription("Transcription jobs by outcome"),
	)
	return err
}

// RecordChannel records one channel scoring
func (r *Registry) RecordChannel(ctx context.Context, channel risk.Channel, duration time.Duration, degraded bool) {
	attrs := metric.WithAttributes(
		attribute.String("channel", string(channel)),
		attribute.Bool("degraded", degraded),
	)
	r.ChannelDuration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	if degraded {
		r.ChannelDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(channel))))
	}
}

// RecordDecision records one fused decision
func (r *Registry) RecordDecision(ctx context.Context, kind string, score float64, isFraud bool) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	r.DecisionScore.Record(ctx, score, attrs)
	r.DecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("is_fraud", isFraud),
	))
	if isFraud {
		r.FraudCounter.Add(ctx, 1, attrs)
	}
}

// RecordTranscriptionPolls records how many polls a job needed and how it ended
func (r *Registry) RecordTranscriptionPolls(ctx context.Context, polls int, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	r.TranscriptionPolls.Record(ctx, int64(polls), attrs)
	r.TranscriptionResult.Add(ctx, 1, attrs)
}

// TrackRequest increments the in-flight gauge; call the returned func when done
func (r *Registry) TrackRequest() func() {
	r.inFlight.Add(1)
	return func() { r.inFlight.Add(-1) }
}
