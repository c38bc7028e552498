package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// FeedbackRepository stores analyst and customer fraud reports
type FeedbackRepository struct {
	db     querier
	logger *zap.Logger
}

func NewFeedbackRepository(pool *pgxpool.Pool, logger *zap.Logger) *FeedbackRepository {
	return &FeedbackRepository{db: pool, logger: logger}
}

func (r *FeedbackRepository) SaveFeedback(ctx context.Context, fb *fraud.Feedback) error {
	if fb == nil {
		return errors.NewValidationError("FEEDBACK_REQUIRED", "feedback is required")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO feedback_reports (
			id, session_id, user_id, is_fraud, notes, object_uri, submitted_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`, fb.ID, fb.SessionID, fb.UserID, fb.IsFraud, fb.Notes, fb.ObjectURI, fb.SubmittedAt)
	if err != nil {
		return errors.NewInternalError("failed to insert feedback").WithCause(err)
	}

	r.logger.Debug("feedback stored",
		zap.String("feedback_id", fb.ID.String()),
		zap.String("session_id", fb.SessionID))
	return nil
}

// ListBySession returns every report filed for a session, newest first.
func (r *FeedbackRepository) ListBySession(ctx context.Context, sessionID string) ([]*fraud.Feedback, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, COALESCE(user_id, ''), is_fraud,
		       COALESCE(notes, ''), COALESCE(object_uri, ''), submitted_at
		FROM feedback_reports
		WHERE session_id = $1
		ORDER BY submitted_at DESC
	`, sessionID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query feedback").WithCause(err)
	}
	defer rows.Close()

	var out []*fraud.Feedback
	for rows.Next() {
		fb := &fraud.Feedback{}
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.UserID, &fb.IsFraud,
			&fb.Notes, &fb.ObjectURI, &fb.SubmittedAt); err != nil {
			return nil, errors.NewInternalError("failed to scan feedback").WithCause(err)
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read feedback").WithCause(err)
	}
	return out, nil
}
