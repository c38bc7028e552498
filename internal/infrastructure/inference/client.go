// Package inference talks to the model server that hosts the deepfake
// frame classifier.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

const (
	classifyPath = "/v1/classify"
	readyPath    = "/v1/ready"

	// readyCacheTTL spaces readiness probes
	readyCacheTTL = 10 * time.Second
	frameQuality  = 95
)

// Config locates the model server
type Config struct {
	URL     string
	Timeout time.Duration
	APIKey  string
}

type classifyResponse struct {
	FakeProbability *float64 `json:"fake_probability"`
}

type readyResponse struct {
	Ready bool   `json:"ready"`
	Model string `json:"model,omitempty"`
}

// Client classifies frames over HTTP. Frames are sent as JPEG.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time

	ready     atomic.Bool
	checkedAt atomic.Int64
}

// NewClient returns nil when no URL is configured so the video channel
// reports the model as unavailable.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Classify returns the probability that frame is synthetic.
func (c *Client) Classify(ctx context.Context, frame image.Image) (float64, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame, &jpeg.Options{Quality: frameQuality}); err != nil {
		return 0, errors.NewInternalError("failed to encode frame").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+classifyPath, &body)
	if err != nil {
		return 0, errors.NewInternalError("failed to build classify request").WithCause(err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.ready.Store(false)
		return 0, errors.NewModelUnavailableError().WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		c.ready.Store(false)
		return 0, errors.NewModelUnavailableError()
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return 0, errors.NewExternalError("inference", fmt.Sprintf("classify returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.NewMalformedResultError("inference", "classify response is not valid JSON").WithCause(err)
	}
	if out.FakeProbability == nil {
		return 0, errors.NewMalformedResultError("inference", "classify response has no fake_probability")
	}
	return risk.Clamp(*out.FakeProbability, 0, 1), nil
}

// Ready probes the model server, caching the answer briefly.
func (c *Client) Ready(ctx context.Context) bool {
	if c == nil {
		return false
	}
	now := c.now()
	if last := c.checkedAt.Load(); last != 0 && now.Sub(time.Unix(0, last)) < readyCacheTTL {
		return c.ready.Load()
	}

	ready := c.probe(ctx)
	c.ready.Store(ready)
	c.checkedAt.Store(now.UnixNano())
	return ready
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+readyPath, nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "model server unreachable", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Ready
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
