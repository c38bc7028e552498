package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// DecisionRepository stores fused decisions for audit.
type DecisionRepository struct {
	db     querier
	logger *zap.Logger
}

func NewDecisionRepository(pool *pgxpool.Pool, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{db: pool, logger: logger}
}

// SaveDecision inserts the event. Replays of the same event id are ignored.
func (r *DecisionRepository) SaveDecision(ctx context.Context, event fraud.DecisionEvent) error {
	channels, err := json.Marshal(event.Decision.Channels)
	if err != nil {
		return errors.NewInternalError("failed to marshal decision channels").WithCause(err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO fraud_decisions (
			event_id, decision_id, request_id, kind, risk_score, is_fraud,
			threshold, channels, decided_at, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.Decision.ID, event.RequestID, event.Kind,
		event.Decision.RiskScore.Float64(), event.Decision.IsFraud,
		event.Decision.Threshold, channels, event.Decision.DecidedAt, event.OccurredAt)
	if err != nil {
		return errors.NewInternalError("failed to insert decision").WithCause(err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Debug("decision already stored", zap.String("event_id", event.EventID.String()))
	}
	return nil
}

// FindByRequestID returns the decisions recorded for one request, oldest first.
func (r *DecisionRepository) FindByRequestID(ctx context.Context, requestID string) ([]fraud.DecisionEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT event_id, decision_id, request_id, kind, risk_score, is_fraud,
		       threshold, channels, decided_at, occurred_at
		FROM fraud_decisions
		WHERE request_id = $1
		ORDER BY occurred_at
	`, requestID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query decisions").WithCause(err)
	}
	defer rows.Close()

	var out []fraud.DecisionEvent
	for rows.Next() {
		var (
			event    fraud.DecisionEvent
			score    float64
			channels []byte
		)
		if err := rows.Scan(&event.EventID, &event.Decision.ID, &event.RequestID, &event.Kind,
			&score, &event.Decision.IsFraud, &event.Decision.Threshold, &channels,
			&event.Decision.DecidedAt, &event.OccurredAt); err != nil {
			return nil, errors.NewInternalError("failed to scan decision").WithCause(err)
		}
		event.Decision.RiskScore = risk.NewScore(score)
		if err := json.Unmarshal(channels, &event.Decision.Channels); err != nil {
			return nil, errors.NewInternalError("failed to unmarshal decision channels").WithCause(err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read decisions").WithCause(err)
	}
	return out, nil
}
