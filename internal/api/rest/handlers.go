package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainErrors "github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/metrics"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

const (
	maxJSONBodyBytes = 1 << 20
	maxBatchSize     = 10000
)

// Handlers serves the fraud assessment endpoints
type Handlers struct {
	service        fraud.Service
	validate       *validator.Validate
	errors         *ErrorHandler
	metrics        *metrics.HTTPMetrics
	logger         *slog.Logger
	maxUploadBytes int64
	tempDir        string
}

func NewHandlers(service fraud.Service, errorHandler *ErrorHandler, httpMetrics *metrics.HTTPMetrics, logger *slog.Logger, maxUploadBytes int64, tempDir string) *Handlers {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	return &Handlers{
		service:        service,
		validate:       v,
		errors:         errorHandler,
		metrics:        httpMetrics,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		tempDir:        tempDir,
	}
}

// TransactionRequest is the body of /analyze-transaction and one element of /detect-jamtara
type TransactionRequest struct {
	UserID     string          `json:"user_id" validate:"required,max=128"`
	Amount     *decimal.Decimal `json:"amount" validate:"required,gte=0"`
	Currency   string           `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	DeviceType string           `json:"device_type,omitempty" validate:"max=64"`
	Location   string           `json:"location,omitempty" validate:"max=256"`
	Timestamp  *time.Time       `json:"timestamp,omitempty"`
}

func (t TransactionRequest) toDomain() risk.Transaction {
	tx := risk.Transaction{
		UserID:     strings.TrimSpace(t.UserID),
		Currency:   strings.ToUpper(t.Currency),
		DeviceType: t.DeviceType,
		Location:   t.Location,
	}
	if t.Amount != nil {
		tx.Amount = *t.Amount
	}
	if t.Timestamp != nil {
		tx.Timestamp = t.Timestamp.UTC()
	}
	return tx
}

// ReportRequest is the body of /report
type ReportRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
	UserID    string `json:"user_id,omitempty" validate:"max=128"`
	IsFraud   *bool  `json:"is_fraud" validate:"required"`
	Notes     string `json:"notes,omitempty" validate:"max=2000"`
}

// ReportResponse acknowledges a stored report
type ReportResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Detect handles POST /detect: multipart video plus optional audio.
func (h *Handlers) Detect(w http.ResponseWriter, r *http.Request) {
	form, err := readUploads(r, h.maxUploadBytes, h.tempDir, "video", "audio")
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	defer form.RemoveAll()

	video := form.Take("video")
	if video == nil {
		h.errors.HandleError(w, r, domainErrors.ErrMissingVideo)
		return
	}
	h.metrics.ObserveUpload("video", video.Size)

	req := fraud.DetectRequest{
		RequestID: RequestIDFromContext(r.Context()),
		Video:     risk.NewVideoArtifact(video.Path, video.ContentType),
	}
	if audio := form.Take("audio"); audio != nil {
		h.metrics.ObserveUpload("audio", audio.Size)
		artifact := risk.NewAudioArtifact(audio.Path, audio.ContentType)
		req.Audio = &artifact
	}

	result, err := h.service.Detect(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VerifyKYC handles POST /vkyc: multipart video, id_card and optional session_id.
func (h *Handlers) VerifyKYC(w http.ResponseWriter, r *http.Request) {
	form, err := readUploads(r, h.maxUploadBytes, h.tempDir, "video", "id_card")
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	defer form.RemoveAll()

	if form.Files["video"] == nil {
		h.errors.HandleError(w, r, domainErrors.ErrMissingVideo)
		return
	}
	if form.Files["id_card"] == nil {
		h.errors.HandleError(w, r, domainErrors.ErrMissingIDCard)
		return
	}
	sessionID := form.Values["session_id"]
	if len(sessionID) > 128 {
		h.errors.HandleError(w, r, &ValidationError{Message: "session_id is too long"})
		return
	}

	video := form.Take("video")
	idCard := form.Take("id_card")
	h.metrics.ObserveUpload("video", video.Size)
	h.metrics.ObserveUpload("id_card", idCard.Size)

	result, err := h.service.VerifyKYC(r.Context(), fraud.KYCRequest{
		RequestID: RequestIDFromContext(r.Context()),
		SessionID: sessionID,
		Video:     risk.NewVideoArtifact(video.Path, video.ContentType),
		IDCard:    fraud.IDCardImage{Path: idCard.Path, Format: idCard.ContentType},
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AnalyzeTransaction handles POST /analyze-transaction.
func (h *Handlers) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if err := h.validateStruct(&req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	result, err := h.service.AnalyzeTransaction(r.Context(), req.toDomain())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DetectJamtara handles POST /detect-jamtara with a JSON array of transactions.
func (h *Handlers) DetectJamtara(w http.ResponseWriter, r *http.Request) {
	var reqs []TransactionRequest
	if err := h.decodeJSON(r, &reqs); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if len(reqs) == 0 {
		h.errors.HandleError(w, r, domainErrors.ErrEmptyBatch)
		return
	}
	if len(reqs) > maxBatchSize {
		h.errors.HandleError(w, r, &ValidationError{Message: fmt.Sprintf("batch exceeds %d transactions", maxBatchSize)})
		return
	}

	batch := make([]risk.Transaction, 0, len(reqs))
	for i := range reqs {
		if err := h.validateStruct(&reqs[i]); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Message = fmt.Sprintf("transaction %d: %s", i, ve.Message)
			}
			h.errors.HandleError(w, r, err)
			return
		}
		if reqs[i].Timestamp == nil || reqs[i].Timestamp.IsZero() {
			h.errors.HandleError(w, r, &ValidationError{
				Message: fmt.Sprintf("transaction %d: timestamp is required", i),
				Fields:  map[string][]string{"timestamp": {"This field is required"}},
			})
			return
		}
		batch = append(batch, reqs[i].toDomain())
	}

	result, err := h.service.DetectJamtara(r.Context(), batch)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateLivenessSession handles POST /liveness/session.
func (h *Handlers) CreateLivenessSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.CreateLivenessSession(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Report handles POST /report.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if err := h.validateStruct(&req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	fb := &fraud.Feedback{
		ID:        uuid.New(),
		SessionID: strings.TrimSpace(req.SessionID),
		UserID:    strings.TrimSpace(req.UserID),
		IsFraud:   *req.IsFraud,
		Notes:     req.Notes,
	}
	if err := h.service.SubmitFeedback(r.Context(), fb); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "feedback recorded",
		"feedback_id", fb.ID,
		"session_id", fb.SessionID,
		"is_fraud", fb.IsFraud)
	writeJSON(w, http.StatusOK, ReportResponse{
		Status:  "success",
		Message: "Feedback recorded",
	})
}

// decodeJSON reads a bounded JSON body and rejects unknown fields
func (h *Handlers) decodeJSON(r *http.Request, v interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return &ValidationError{Message: "Content-Type must be application/json"}
	}

	body := http.MaxBytesReader(nil, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &ValidationError{Message: "request body is required"}
		}
		return &ValidationError{Message: "Invalid JSON", Fields: map[string][]string{"body": {err.Error()}}}
	}
	if dec.More() {
		return &ValidationError{Message: "request body must contain a single JSON value"}
	}
	return nil
}

// validateStruct converts validator errors into a field map
func (h *Handlers) validateStruct(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{Message: "Validation error"}
	}

	fields := make(map[string][]string)
	for _, fe := range validationErrors {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	return &ValidationError{Message: "Validation failed", Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return fmt.Sprintf("Maximum length is %s", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "alpha":
		return "Must contain letters only"
	default:
		return fmt.Sprintf("Failed %s validation", fe.Tag())
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// decimalValue lets numeric validation tags apply to decimal amounts
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}
