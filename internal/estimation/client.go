// internal/estimation/client.go
package estimation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gainslog/internal/models"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 1 << 20

// Estimator converts a text or image description into nutrition values.
type Estimator interface {
	EstimateText(ctx context.Context, req models.TextEstimateRequest) (*models.Estimate, error)
	EstimateImage(ctx context.Context, req models.ImageEstimateRequest) (*models.Estimate, error)
}

// ClientConfig locates the estimation service.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	TextPath  string
	ImagePath string
	Timeout   time.Duration
}

// Client calls the HTTP estimation service.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
	logger     *slog.Logger
}

var _ Estimator = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout takes precedence over
// ClientConfig.Timeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.TextPath == "" {
		cfg.TextPath = "/estimate/text"
	}
	if cfg.ImagePath == "" {
		cfg.ImagePath = "/estimate/image"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) EstimateText(ctx context.Context, req models.TextEstimateRequest) (*models.Estimate, error) {
	return c.post(ctx, c.config.TextPath, req)
}

// EstimateImage returns ErrUnusableInput when the service reports the image
// could not be interpreted, either by status 422 or by the sentinel title.
func (c *Client) EstimateImage(ctx context.Context, req models.ImageEstimateRequest) (*models.Estimate, error) {
	if req.ImageURL == "" {
		return nil, fmt.Errorf("image url is required: %w", ErrUnusableInput)
	}
	est, err := c.post(ctx, c.config.ImagePath, req)
	var estErr *Error
	if errors.As(err, &estErr) && estErr.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrUnusableInput
	}
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(est.GeneratedTitle), models.InvalidImageTitle) {
		return nil, ErrUnusableInput
	}
	return est, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*models.Estimate, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + path

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(0, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newError(resp.StatusCode, "failed to read response body", err)
	}

	c.logger.Debug("Estimation service responded",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(resp.StatusCode, string(bodyBytes), nil)
	}

	var est models.Estimate
	if err := json.Unmarshal(bodyBytes, &est); err != nil {
		return nil, newError(0, "failed to decode response", err)
	}
	if est.Error != "" {
		return nil, newError(0, est.Error, nil)
	}

	return &est, nil
}
