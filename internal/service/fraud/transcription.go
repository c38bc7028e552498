package fraud

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/telemetry"
)

// TranscriptionCoordinator drives one transcription job per call: submit,
// poll at a fixed interval under a hard ceiling, then fetch the result.
type TranscriptionCoordinator struct {
	service      TranscriptionService
	fetcher      TranscriptFetcher
	pollInterval time.Duration
	maxWait      time.Duration
	newJobName   func() string
	recorder     Recorder
	logger       *slog.Logger
}

// NewTranscriptionCoordinator creates a coordinator. Non-positive durations
// fall back to the defaults.
func NewTranscriptionCoordinator(svc TranscriptionService, fetcher TranscriptFetcher, cfg TranscriptionConfig, recorder Recorder, logger *slog.Logger) *TranscriptionCoordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptionCoordinator{
		service:      svc,
		fetcher:      fetcher,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		newJobName:   newJobName,
		recorder:     recorder,
		logger:       logger,
	}
}

func newJobName() string {
	return JobNamePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Transcribe returns the transcript of the media at mediaURI.
//
// Errors:
//   - TIMEOUT when the job is still running after the max wait
//   - EXTERNAL_SERVICE_ERROR when the provider reports FAILED or a call fails
//   - MALFORMED_RESULT when the transcript document lacks the expected fields
//
// Cancellation of ctx is returned as ctx.Err().
func (c *TranscriptionCoordinator) Transcribe(ctx context.Context, mediaURI, languageCode string) (_ risk.Transcript, err error) {
	jobName := c.newJobName()
	ctx, span := telemetry.StartSpan(ctx, "transcription.job", map[string]interface{}{
		"job_name": jobName,
		"language": languageCode,
	})
	defer func() { telemetry.EndSpan(span, err) }()

	jobID, err := c.service.Submit(ctx, jobName, mediaURI, languageCode)
	if err != nil {
		return risk.Transcript{}, asExternal("transcribe", "submit job", err)
	}

	c.logger.DebugContext(ctx, "transcription job submitted",
		"job_id", jobID,
		"language", languageCode,
		"max_wait", c.maxWait)

	status, polls, err := c.await(ctx, jobID)
	if err != nil {
		outcome := "error"
		if errors.IsType(err, errors.ErrorTypeTimeout) {
			outcome = "timeout"
		}
		c.recorder.RecordTranscriptionPolls(ctx, polls, outcome)
		return risk.Transcript{}, err
	}

	if status.State == JobFailed {
		c.recorder.RecordTranscriptionPolls(ctx, polls, "failed")
		reason := status.FailureReason
		if reason == "" {
			reason = "unknown failure"
		}
		return risk.Transcript{}, errors.NewExternalError("transcribe", reason).
			WithDetails(map[string]interface{}{"job_id": jobID, "failure_reason": reason})
	}
	c.recorder.RecordTranscriptionPolls(ctx, polls, "completed")

	text, err := c.fetchTranscript(ctx, status.ResultURI)
	if err != nil {
		return risk.Transcript{}, err
	}

	return risk.Transcript{Text: text, Language: languageCode}, nil
}

// await polls until a terminal state or until maxWait elapses.
func (c *TranscriptionCoordinator) await(ctx context.Context, jobID string) (JobStatus, int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		status, err := c.service.Poll(waitCtx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return JobStatus{}, polls, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return JobStatus{}, polls, c.timeout(jobID)
			}
			return JobStatus{}, polls, asExternal("transcribe", "poll job", err)
		}

		if status.State.Terminal() {
			return status, polls, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return JobStatus{}, polls, ctx.Err()
			}
			return JobStatus{}, polls, c.timeout(jobID)
		case <-ticker.C:
		}
	}
}

func (c *TranscriptionCoordinator) timeout(jobID string) error {
	return errors.NewTimeoutError("transcription job", c.maxWait).
		WithDetails(map[string]interface{}{"job_id": jobID})
}

type transcriptDocument struct {
	Results *struct {
		Transcripts []struct {
			Transcript *string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

func (c *TranscriptionCoordinator) fetchTranscript(ctx context.Context, uri string) (string, error) {
	if uri == "" {
		return "", errors.NewMalformedResultError("transcribe", "completed job has no transcript URI")
	}

	body, err := c.fetcher.Fetch(ctx, uri)
	if err != nil {
		return "", asExternal("transcribe", "fetch transcript", err)
	}

	return parseTranscript(body)
}

// parseTranscript extracts results.transcripts[0].transcript.
func parseTranscript(body []byte) (string, error) {
	var doc transcriptDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", errors.NewMalformedResultError("transcribe", "transcript is not valid JSON").WithCause(err)
	}
	if doc.Results == nil {
		return "", errors.NewMalformedResultError("transcribe", "missing results")
	}
	if len(doc.Results.Transcripts) == 0 {
		return "", errors.NewMalformedResultError("transcribe", "missing results.transcripts")
	}
	if doc.Results.Transcripts[0].Transcript == nil {
		return "", errors.NewMalformedResultError("transcribe", "missing results.transcripts[0].transcript")
	}
	return *doc.Results.Transcripts[0].Transcript, nil
}

// asExternal keeps typed errors from adapters and wraps anything else as an
// external service failure.
func asExternal(service, op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewExternalError(service, fmt.Sprintf("%s failed", op)).WithCause(err)
}
