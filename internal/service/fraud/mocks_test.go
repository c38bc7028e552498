package fraud

import (
	"context"
	"image"
	"image/color"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, body, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type mockTranscriptionService struct {
	mock.Mock
}

func (m *mockTranscriptionService) Submit(ctx context.Context, jobName, mediaURI, languageCode string) (string, error) {
	args := m.Called(ctx, jobName, mediaURI, languageCode)
	return args.String(0), args.Error(1)
}

func (m *mockTranscriptionService) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(JobStatus), args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	args := m.Called(ctx, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, mediaURI, languageCode string) (risk.Transcript, error) {
	args := m.Called(ctx, mediaURI, languageCode)
	return args.Get(0).(risk.Transcript), args.Error(1)
}

type mockTextAnalysis struct {
	mock.Mock
}

func (m *mockTextAnalysis) DetectSentiment(ctx context.Context, text, languageCode string) (risk.SentimentResult, error) {
	args := m.Called(ctx, text, languageCode)
	return args.Get(0).(risk.SentimentResult), args.Error(1)
}

func (m *mockTextAnalysis) DetectLanguage(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *mockTextAnalysis) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	args := m.Called(ctx, text, sourceLanguage, targetLanguage)
	return args.String(0), args.Error(1)
}

type mockBiometricService struct {
	mock.Mock
}

func (m *mockBiometricService) CreateLivenessSession(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockBiometricService) GetLivenessResult(ctx context.Context, sessionID string) (risk.LivenessResult, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(risk.LivenessResult), args.Error(1)
}

func (m *mockBiometricService) CompareFaces(ctx context.Context, reference, probe FaceImage) (float64, error) {
	args := m.Called(ctx, reference, probe)
	return args.Get(0).(float64), args.Error(1)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, frame image.Image) (float64, error) {
	args := m.Called(ctx, frame)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockClassifier) Ready(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

type mockDecoder struct {
	mock.Mock
}

func (m *mockDecoder) Open(ctx context.Context, video risk.VideoArtifact) (FrameSource, error) {
	args := m.Called(ctx, video)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(FrameSource), args.Error(1)
}

type mockProbe struct {
	mock.Mock
}

func (m *mockProbe) FirstFrameJPEG(ctx context.Context, video risk.VideoArtifact) ([]byte, error) {
	args := m.Called(ctx, video)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockNormalizer struct {
	mock.Mock
}

func (m *mockNormalizer) Normalize(ctx context.Context, audio risk.AudioArtifact) (risk.AudioArtifact, error) {
	args := m.Called(ctx, audio)
	return args.Get(0).(risk.AudioArtifact), args.Error(1)
}

type mockFraudScore struct {
	mock.Mock
}

func (m *mockFraudScore) Predict(ctx context.Context, event FraudEvent) (*Prediction, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Prediction), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishDecision(ctx context.Context, event DecisionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockDecisionStore struct {
	mock.Mock
}

func (m *mockDecisionStore) SaveDecision(ctx context.Context, event DecisionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockFeedbackStore struct {
	mock.Mock
}

func (m *mockFeedbackStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	args := m.Called(ctx, fb)
	return args.Error(0)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Register(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockSessions) Exists(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordChannel(ctx context.Context, channel risk.Channel, duration time.Duration, degraded bool) {
	m.Called(ctx, channel, duration, degraded)
}

func (m *mockRecorder) RecordDecision(ctx context.Context, kind string, score float64, isFraud bool) {
	m.Called(ctx, kind, score, isFraud)
}

func (m *mockRecorder) RecordTranscriptionPolls(ctx context.Context, polls int, outcome string) {
	m.Called(ctx, polls, outcome)
}

// sliceSource yields a fixed list of frames, then io.EOF or err.
type sliceSource struct {
	frames []image.Image
	err    error
	pos    int
	closed bool
}

func (s *sliceSource) Next() (image.Image, error) {
	if s.pos >= len(s.frames) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func solidFrames(n, w, h int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(x, y, color.RGBA{R: uint8(i), G: 80, B: 160, A: 255})
			}
		}
		frames[i] = img
	}
	return frames
}

