// Package gateway provides the HTTP client for the photo service's batch edit
// and album endpoints, with retries and error classification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/photo-batch-client/pkg/albums"
	"github.com/Sternrassler/photo-batch-client/pkg/batch"
)

// API paths relative to Config.BaseURL.
const (
	BatchEditPath = "/api/v1/batch/photos/edit"
	AlbumsPath    = "/api/v1/albums"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// Config holds the gateway configuration.
type Config struct {
	// BaseURL of the photo service, e.g. "https://photos.example.com"
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// User-Agent header
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// AlbumLimit is the count parameter of album list requests
	AlbumLimit int

	Retry RetryConfig
}

// DefaultConfig returns a default configuration for the given service.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:    baseURL,
		Token:      token,
		UserAgent:  "photo-batch-client/1.0",
		Timeout:    30 * time.Second,
		AlbumLimit: 10000,
		Retry:      DefaultRetryConfig(),
	}
}

// Client talks to the photo service. It implements batch.Gateway and
// albums.Source.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

var (
	_ batch.Gateway = (*Client)(nil)
	_ albums.Source = (*Client)(nil)
)

// New creates a new gateway client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.AlbumLimit < 1 {
		return nil, fmt.Errorf("album_limit must be >= 1 (got %d)", cfg.AlbumLimit)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	base.Path = strings.TrimRight(base.Path, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "gateway").Logger(),
	}, nil
}

// SetHTTPClient replaces the HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type batchRequest struct {
	Photos []string     `json:"photos"`
	Values batch.Values `json:"values,omitempty"`
}

// FetchBatch loads the photos and aggregated field values for ids.
func (c *Client) FetchBatch(ctx context.Context, ids []string) (*batch.Response, error) {
	return c.batchEdit(ctx, "fetch", batchRequest{Photos: ids})
}

// SaveBatch submits values for ids and returns the confirmed photos.
func (c *Client) SaveBatch(ctx context.Context, ids []string, values batch.Values) (*batch.Response, error) {
	if values == nil {
		values = batch.Values{}
	}
	return c.batchEdit(ctx, "save", batchRequest{Photos: ids, Values: values})
}

func (c *Client) batchEdit(ctx context.Context, operation string, body batchRequest) (*batch.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", operation, err)
	}

	// a save is not idempotent: album creation and list actions would repeat
	policy := retryIdempotent
	if operation == "save" {
		policy = retryUnsent
	}

	status, _, data, err := c.do(ctx, operation, http.MethodPost, c.endpoint(BatchEditPath, nil), payload, nil, policy)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return &batch.Response{Values: batch.Values{}}, nil
	}

	var resp batch.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return &resp, nil
}

// ListAlbums loads the album catalog. A non-empty etag is sent as
// If-None-Match; a 304 answer yields a result with NotModified set.
func (c *Client) ListAlbums(ctx context.Context, etag string) (*albums.ListResult, error) {
	query := url.Values{}
	query.Set("type", "album")
	query.Set("count", strconv.Itoa(c.config.AlbumLimit))

	header := http.Header{}
	if etag != "" {
		header.Set("If-None-Match", etag)
	}

	status, respHeader, data, err := c.do(ctx, "list_albums", http.MethodGet, c.endpoint(AlbumsPath, query), nil, header, retryIdempotent)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotModified {
		c.logger.Debug().Str("etag", etag).Msg("304 Not Modified - album list unchanged")
		newETag := respHeader.Get("ETag")
		if newETag == "" {
			newETag = etag
		}
		return &albums.ListResult{ETag: newETag, NotModified: true}, nil
	}

	var list []albums.Album
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode album list: %w", err)
	}
	return &albums.ListResult{Albums: list, ETag: respHeader.Get("ETag")}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one logical request, repeating attempts the policy allows. The
// body is replayed on every attempt and all attempts share one X-Request-ID.
func (c *Client) do(ctx context.Context, operation, method, target string, body []byte, header http.Header, policy retryPolicy) (int, http.Header, []byte, error) {
	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("operation", operation).
		Str("request_id", requestID).
		Logger()

	startTime := time.Now()
	defer func() {
		gatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	var (
		status     int
		respHeader http.Header
		data       []byte
	)

	err := retryWithBackoff(ctx, c.config.Retry, policy, logger, func() error {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.config.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.Token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			gatewayRequestsTotal.WithLabelValues(operation, "error").Inc()
			gatewayErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			if ctx.Err() != nil {
				// cancelled by the caller, not a transport failure
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("HTTP request failed")
			return &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		gatewayRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
		if err != nil {
			gatewayErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &APIError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body failed", Err: err}
		}

		if class := classifyStatus(resp.StatusCode); class != "" {
			gatewayErrorsTotal.WithLabelValues(string(class)).Inc()
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Class:      class,
				Message:    errorMessage(resp.StatusCode, payload),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			logger.Debug().
				Int("status", resp.StatusCode).
				Str("class", string(class)).
				Msg("Error classified")
			return apiErr
		}

		status, respHeader, data = resp.StatusCode, resp.Header, payload
		return nil
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error().Err(err).Msg("Request failed")
		}
		return 0, nil, nil, fmt.Errorf("%s: %w", operation, err)
	}

	logger.Debug().Int("status", status).Int("bytes", len(data)).Msg("Request completed")
	return status, respHeader, data, nil
}

// errorMessage extracts {"error": "..."} from a response body, falling back
// to the status text.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.ToLower(http.StatusText(status))
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
