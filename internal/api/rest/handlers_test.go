package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/metrics"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Detect(ctx context.Context, req fraud.DetectRequest) (*fraud.DetectResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fraud.DetectResult), args.Error(1)
}

func (m *mockService) VerifyKYC(ctx context.Context, req fraud.KYCRequest) (*fraud.KYCResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fraud.KYCResult), args.Error(1)
}

func (m *mockService) AnalyzeTransaction(ctx context.Context, tx risk.Transaction) (*risk.TransactionAssessment, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.TransactionAssessment), args.Error(1)
}

func (m *mockService) DetectJamtara(ctx context.Context, batch []risk.Transaction) (*fraud.JamtaraResult, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fraud.JamtaraResult), args.Error(1)
}

func (m *mockService) CreateLivenessSession(ctx context.Context) (*fraud.LivenessSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fraud.LivenessSession), args.Error(1)
}

func (m *mockService) SubmitFeedback(ctx context.Context, fb *fraud.Feedback) error {
	return m.Called(ctx, fb).Error(0)
}

func (m *mockService) ModelLoaded(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func newTestHandlers(t *testing.T, svc fraud.Service) *Handlers {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandlers(svc, NewErrorHandler(logger), metrics.NewHTTPMetrics(prometheus.NewRegistry()), logger, 1<<20, t.TempDir())
}

type filePart struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, files []filePart, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + f.field + `"; filename="` + f.name + `"`}
		h["Content-Type"] = []string{f.contentType}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	assert.False(t, env.Success)
	return env.Error
}

func sampleDecision(score float64) risk.FraudDecision {
	return risk.FraudDecision{
		ID:        uuid.New(),
		RiskScore: risk.NewScore(score),
		IsFraud:   score >= 0.7,
		Threshold: 0.7,
	}
}

func TestHandlers_Detect(t *testing.T) {
	video := filePart{field: "video", name: "clip.mp4", contentType: "video/mp4", data: []byte("fake video")}
	audio := filePart{field: "audio", name: "call.wav", contentType: "audio/wav", data: []byte("fake audio")}

	tests := []struct {
		name       string
		files      []filePart
		setupMocks func(*mockService)
		wantStatus int
		wantCode   string
	}{
		{
			name:  "video only",
			files: []filePart{video},
			setupMocks: func(m *mockService) {
				m.On("Detect", mock.Anything, mock.MatchedBy(func(req fraud.DetectRequest) bool {
					_, err := os.Stat(req.Video.Path)
					return err == nil && req.Audio == nil && req.Video.ContentType == "video/mp4"
				})).Return(&fraud.DetectResult{
					Deepfake: risk.NewChannelResult(risk.ChannelVideo, 0.2, nil),
					Decision: sampleDecision(0.2),
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "video and audio",
			files: []filePart{video, audio},
			setupMocks: func(m *mockService) {
				m.On("Detect", mock.Anything, mock.MatchedBy(func(req fraud.DetectRequest) bool {
					return req.Audio != nil && req.Audio.ContentType == "audio/wav"
				})).Return(&fraud.DetectResult{Decision: sampleDecision(0.9)}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing video",
			files:      []filePart{audio},
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_VIDEO",
		},
		{
			name:  "service failure is sanitized",
			files: []filePart{video},
			setupMocks: func(m *mockService) {
				m.On("Detect", mock.Anything, mock.Anything).
					Return(nil, domainErrors.NewInternalError("decoder crashed on /tmp/upload-1.mp4"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			h := newTestHandlers(t, svc)

			body, contentType := multipartBody(t, tt.files, nil)
			req := httptest.NewRequest(http.MethodPost, "/detect", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			h.Detect(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				resp := decodeError(t, rec.Body)
				assert.Equal(t, tt.wantCode, resp.Code)
				assert.NotContains(t, resp.Message, "/tmp")
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandlers_Detect_RejectsNonMultipart(t *testing.T) {
	h := newTestHandlers(t, new(mockService))

	req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Detect(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec.Body).Code)
}

func TestHandlers_Detect_PayloadTooLarge(t *testing.T) {
	svc := new(mockService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(svc, NewErrorHandler(logger), metrics.NewHTTPMetrics(prometheus.NewRegistry()), logger, 512, t.TempDir())

	body, contentType := multipartBody(t, []filePart{{field: "video", name: "v.mp4", contentType: "video/mp4", data: bytes.Repeat([]byte("x"), 4096)}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Detect(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	svc.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
}

func TestHandlers_VerifyKYC(t *testing.T) {
	video := filePart{field: "video", name: "selfie.mp4", contentType: "video/mp4", data: []byte("video")}
	idCard := filePart{field: "id_card", name: "id.jpg", contentType: "image/jpeg", data: []byte("jpeg")}

	tests := []struct {
		name       string
		files      []filePart
		values     map[string]string
		setupMocks func(*mockService)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "passes session id through",
			files:  []filePart{video, idCard},
			values: map[string]string{"session_id": "sess-1"},
			setupMocks: func(m *mockService) {
				m.On("VerifyKYC", mock.Anything, mock.MatchedBy(func(req fraud.KYCRequest) bool {
					return req.SessionID == "sess-1" && req.IDCard.Format == "image/jpeg" && req.IDCard.Path != ""
				})).Return(&fraud.KYCResult{SessionID: "sess-1", Passed: true, Decision: sampleDecision(0.1)}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing id card",
			files:      []filePart{video},
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_ID_CARD",
		},
		{
			name:       "missing video",
			files:      []filePart{idCard},
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_VIDEO",
		},
		{
			name:   "unknown session",
			files:  []filePart{video, idCard},
			values: map[string]string{"session_id": "gone"},
			setupMocks: func(m *mockService) {
				m.On("VerifyKYC", mock.Anything, mock.Anything).Return(nil, domainErrors.ErrSessionNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			h := newTestHandlers(t, svc)

			body, contentType := multipartBody(t, tt.files, tt.values)
			req := httptest.NewRequest(http.MethodPost, "/vkyc", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			h.VerifyKYC(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec.Body).Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandlers_AnalyzeTransaction(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*mockService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "valid transaction",
			body: `{"user_id":"u1","amount":499.5,"currency":"inr","location":"Jamtara","device_type":"android"}`,
			setupMocks: func(m *mockService) {
				m.On("AnalyzeTransaction", mock.Anything, mock.MatchedBy(func(tx risk.Transaction) bool {
					return tx.UserID == "u1" && tx.Currency == "INR" && tx.Amount.String() == "499.5"
				})).Return(&risk.TransactionAssessment{EventID: "e1", RiskScore: risk.NewScore(0.3)}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing user id",
			body:       `{"amount":10}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "zero amount accepted",
			body: `{"user_id":"u1","amount":0}`,
			setupMocks: func(m *mockService) {
				m.On("AnalyzeTransaction", mock.Anything, mock.MatchedBy(func(tx risk.Transaction) bool {
					return tx.Amount.IsZero()
				})).Return(&risk.TransactionAssessment{EventID: "e2", RiskScore: risk.NewScore(0.1)}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing amount",
			body:       `{"user_id":"u1","currency":"INR"}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "negative amount",
			body:       `{"user_id":"u1","amount":-1}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown field",
			body:       `{"user_id":"u1","amount":1,"card":"4111"}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "malformed json",
			body:       `{"user_id":`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "empty body",
			body:       ``,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			h := newTestHandlers(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/analyze-transaction", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.AnalyzeTransaction(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec.Body).Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandlers_DetectJamtara(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*mockService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "batch forwarded in order",
			body: `[{"user_id":"a","amount":100,"location":"x","timestamp":"2024-03-01T10:00:00Z"},` +
				`{"user_id":"b","amount":200,"location":"y","timestamp":"2024-03-01T10:05:00+05:30"}]`,
			setupMocks: func(m *mockService) {
				m.On("DetectJamtara", mock.Anything, mock.MatchedBy(func(batch []risk.Transaction) bool {
					return len(batch) == 2 && batch[0].UserID == "a" && batch[1].UserID == "b" &&
						batch[1].Timestamp.Location() == time.UTC
				})).Return(&fraud.JamtaraResult{RiskScore: risk.NewScore(0.4)}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "missing timestamp",
			body: `[{"user_id":"u1","amount":100,"location":"Delhi","timestamp":"2024-03-01T10:00:00Z"},` +
				`{"user_id":"u1","amount":100,"location":"Delhi"},{"user_id":"u1","amount":100,"location":"Delhi"}]`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "empty batch",
			body:       `[]`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "EMPTY_BATCH",
		},
		{
			name:       "invalid element",
			body:       `[{"user_id":"a","amount":1,"timestamp":"2024-03-01T10:00:00Z"},{"amount":2}]`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "object instead of array",
			body:       `{"user_id":"a","amount":1}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			h := newTestHandlers(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/detect-jamtara", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.DetectJamtara(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec.Body).Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandlers_CreateLivenessSession(t *testing.T) {
	svc := new(mockService)
	svc.On("CreateLivenessSession", mock.Anything).
		Return(&fraud.LivenessSession{SessionID: "sess-9", Region: "ap-south-1"}, nil)
	h := newTestHandlers(t, svc)

	rec := httptest.NewRecorder()
	h.CreateLivenessSession(rec, httptest.NewRequest(http.MethodPost, "/liveness/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got fraud.LivenessSession
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "sess-9", got.SessionID)
	assert.Equal(t, "ap-south-1", got.Region)
}

func TestHandlers_Report(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*mockService)
		wantStatus int
	}{
		{
			name: "stores report",
			body: `{"session_id":"s1","user_id":"u1","is_fraud":false,"notes":"legit"}`,
			setupMocks: func(m *mockService) {
				m.On("SubmitFeedback", mock.Anything, mock.MatchedBy(func(fb *fraud.Feedback) bool {
					return fb.SessionID == "s1" && !fb.IsFraud && fb.ID != uuid.Nil
				})).Return(nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "is_fraud required",
			body:       `{"session_id":"s1"}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "notes too long",
			body:       `{"session_id":"s1","is_fraud":true,"notes":"` + strings.Repeat("n", 2001) + `"}`,
			setupMocks: func(m *mockService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store unavailable",
			body: `{"session_id":"s1","is_fraud":true}`,
			setupMocks: func(m *mockService) {
				m.On("SubmitFeedback", mock.Anything, mock.Anything).
					Return(domainErrors.NewExternalError("s3", "put failed"))
			},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			tt.setupMocks(svc)
			h := newTestHandlers(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/report", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.Report(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var resp ReportResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, "success", resp.Status)
			}
			svc.AssertExpectations(t)
		})
	}
}
