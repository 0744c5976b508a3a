// Package novelai talks to the NovelAI image generation API.
package novelai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultTimeout bounds a whole generate call
const DefaultTimeout = 2 * time.Minute

const fallbackMimeType = "image/png"

// ExternalAPIError is returned for a non-2xx response
type ExternalAPIError struct {
	StatusCode int
	Body       string
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("image API returned %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client
type Config struct {
	Endpoint string
	Model    string
	Size     string
	Timeout  time.Duration
}

// Prompt is the caller-supplied part of a generation
type Prompt struct {
	Positive string
	Negative string
	Seed     int64
}

// Image is a generated image, base64 encoded
type Image struct {
	MimeType string
	Data     string
}

// Client generates images. It is safe for concurrent use.
type Client struct {
	apiKey     string
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger failures are reported to
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the given API key
func NewClient(apiKey string, cfg Config, opts ...Option) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Size == "" {
		cfg.Size = DefaultSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		apiKey:     apiKey,
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate produces one image. Failures are logged and reported as ok=false;
// no retry is attempted.
func (c *Client) Generate(ctx context.Context, p Prompt) (Image, bool) {
	img, err := c.generate(ctx, p)
	if err != nil {
		c.logger.Error("image generation failed",
			"model", c.cfg.Model,
			"seed", p.Seed,
			"error", err,
		)
		return Image{}, false
	}
	return img, true
}

func (c *Client) generate(ctx context.Context, p Prompt) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(NewRequestBody(p.Positive, p.Negative, c.cfg.Model, c.cfg.Size, p.Seed))
	if err != nil {
		return Image{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Image{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "binary/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return Image{}, &ExternalAPIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	assembled, err := Assemble(resp.Body)
	if err != nil {
		return Image{}, err
	}
	if len(assembled.Data) == 0 {
		return Image{}, ErrEmptyResponseBody
	}

	data := assembled.Data
	if assembled.Kind == KindArchive {
		name, img, err := ExtractImage(data)
		if err != nil {
			return Image{}, err
		}
		c.logger.Debug("extracted image from archive", "entry", name, "bytes", len(img))
		data = img
	}

	return Image{
		MimeType: detectMimeType(data),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func detectMimeType(data []byte) string {
	mt := mimetype.Detect(data)
	if mt == nil || !strings.HasPrefix(mt.String(), "image/") {
		return fallbackMimeType
	}
	return mt.String()
}
