package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// Broadcaster pushes decisions to live subscribers
type Broadcaster interface {
	Broadcast(ctx context.Context, event fraud.DecisionEvent) error
}

// Fanout sends every decision to the durable stream and fraud decisions
// to live subscribers as well.
type Fanout struct {
	stream fraud.EventPublisher
	alerts Broadcaster
	logger *zap.Logger
}

// NewFanout accepts nil for either sink.
func NewFanout(stream fraud.EventPublisher, alerts Broadcaster, logger *zap.Logger) *Fanout {
	return &Fanout{stream: stream, alerts: alerts, logger: logger}
}

func (f *Fanout) PublishDecision(ctx context.Context, event fraud.DecisionEvent) error {
	var errs []error

	if f.stream != nil {
		if err := f.stream.PublishDecision(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	if f.alerts != nil && event.Decision.IsFraud {
		if err := f.alerts.Broadcast(ctx, event); err != nil {
			f.logger.Warn("fraud alert not delivered to all subscribers",
				zap.String("event_id", event.EventID.String()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
