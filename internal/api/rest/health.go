package rest

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthCheck probes one dependency; a nil error means healthy
type HealthCheck func(ctx context.Context) error

// ModelStatus reports whether the local frame classifier is ready
type ModelStatus interface {
	ModelLoaded(ctx context.Context) bool
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string            `json:"status"`
	ModelLoaded   bool              `json:"model_loaded"`
	AWSConfigured bool              `json:"aws_configured"`
	Version       string            `json:"version,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// HealthService answers liveness probes. Dependency failures are reported
// per check but never change the overall status.
type HealthService struct {
	model         ModelStatus
	awsConfigured func(ctx context.Context) bool
	checks        map[string]HealthCheck
	version       string
	timeout       time.Duration
}

func NewHealthService(model ModelStatus, awsConfigured func(ctx context.Context) bool, version string) *HealthService {
	return &HealthService{
		model:         model,
		awsConfigured: awsConfigured,
		checks:        make(map[string]HealthCheck),
		version:       version,
		timeout:       2 * time.Second,
	}
}

// SetModel sets the classifier readiness source
func (s *HealthService) SetModel(model ModelStatus) {
	s.model = model
}

// AddCheck registers a named dependency probe
func (s *HealthService) AddCheck(name string, check HealthCheck) {
	if check != nil {
		s.checks[name] = check
	}
}

func (s *HealthService) Check(ctx context.Context) HealthResponse {
	resp := HealthResponse{Status: "ok", Version: s.version}
	if s.model != nil {
		resp.ModelLoaded = s.model.ModelLoaded(ctx)
	}
	if s.awsConfigured != nil {
		resp.AWSConfigured = s.awsConfigured(ctx)
	}
	if len(s.checks) == 0 {
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			results[i] = "pass"
			if err := check(ctx); err != nil {
				results[i] = "fail"
			}
		}(i, s.checks[name])
	}
	wg.Wait()

	resp.Checks = make(map[string]string, len(names))
	for i, name := range names {
		resp.Checks[name] = results[i]
	}
	return resp
}

// ServeHTTP handles GET /health.
func (s *HealthService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s.Check(r.Context()))
}
