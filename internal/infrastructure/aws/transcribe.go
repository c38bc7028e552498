package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

type transcribeAPI interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// TranscribeService submits WAV transcription jobs with speaker labels.
type TranscribeService struct {
	client      transcribeAPI
	maxSpeakers int32
}

// NewTranscribeService creates the adapter. maxSpeakers < 2 disables
// speaker labelling.
func NewTranscribeService(awsCfg awssdk.Config, maxSpeakers int) *TranscribeService {
	return newTranscribeService(transcribe.NewFromConfig(awsCfg), maxSpeakers)
}

func newTranscribeService(client transcribeAPI, maxSpeakers int) *TranscribeService {
	return &TranscribeService{client: client, maxSpeakers: int32(maxSpeakers)}
}

// Submit starts a job named jobName; the job name doubles as its id.
func (s *TranscribeService) Submit(ctx context.Context, jobName, mediaURI, languageCode string) (string, error) {
	input := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: awssdk.String(jobName),
		Media:                &types.Media{MediaFileUri: awssdk.String(mediaURI)},
		MediaFormat:          types.MediaFormatWav,
		LanguageCode:         types.LanguageCode(languageCode),
	}
	if s.maxSpeakers >= 2 {
		input.Settings = &types.Settings{
			ShowSpeakerLabels: awssdk.Bool(true),
			MaxSpeakerLabels:  awssdk.Int32(s.maxSpeakers),
		}
	}

	out, err := s.client.StartTranscriptionJob(ctx, input)
	if err != nil {
		return "", serviceError("transcribe", "start transcription job", err)
	}
	if out.TranscriptionJob != nil && out.TranscriptionJob.TranscriptionJobName != nil {
		return *out.TranscriptionJob.TranscriptionJobName, nil
	}
	return jobName, nil
}

// Poll reads the job's current state.
func (s *TranscribeService) Poll(ctx context.Context, jobID string) (fraud.JobStatus, error) {
	out, err := s.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: awssdk.String(jobID),
	})
	if err != nil {
		return fraud.JobStatus{}, serviceError("transcribe", "get transcription job", err)
	}

	job := out.TranscriptionJob
	if job == nil {
		return fraud.JobStatus{}, errors.NewMalformedResultError("transcribe", "response has no transcription job")
	}

	status := fraud.JobStatus{State: jobState(job.TranscriptionJobStatus)}
	if job.Transcript != nil {
		status.ResultURI = awssdk.ToString(job.Transcript.TranscriptFileUri)
	}
	status.FailureReason = awssdk.ToString(job.FailureReason)
	return status, nil
}

func jobState(s types.TranscriptionJobStatus) fraud.JobState {
	switch s {
	case types.TranscriptionJobStatusCompleted:
		return fraud.JobCompleted
	case types.TranscriptionJobStatusFailed:
		return fraud.JobFailed
	case types.TranscriptionJobStatusQueued:
		return fraud.JobQueued
	default:
		return fraud.JobInProgress
	}
}
