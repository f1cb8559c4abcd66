// Package faceapi talks to the external face-recognition backend over HTTP.
package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-gateway/internal/config"
	"github.com/example/face-gateway/internal/logging"
	"github.com/example/face-gateway/internal/retry"
)

// Client exposes the backend operations used by the gateway.
type Client interface {
	Health(ctx context.Context) (*HealthResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Recognize(ctx context.Context, req RecognizeRequest) (*RecognizeResponse, error)
	Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error)
	List(ctx context.Context) (*ListResponse, error)
	Delete(ctx context.Context, faceID int64) (*DeleteResponse, error)
}

// HTTPClient is the pooled net/http implementation of Client.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	maxBodyBytes int64
	readPolicy   retry.Policy
	logger       *zap.Logger
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the pooled client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithReadRetry sets the retry policy applied to idempotent reads.
func WithReadRetry(p retry.Policy) Option {
	return func(h *HTTPClient) { h.readPolicy = p }
}

// NewHTTPClient builds a client whose transport pools at most cfg.MaxConns
// connections to the backend.
func NewHTTPClient(cfg config.FaceAPIConfig, logger *zap.Logger, opts ...Option) *HTTPClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxConns,
		MaxIdleConnsPerHost:   cfg.MaxConns,
		MaxConnsPerHost:       cfg.MaxConns,
		IdleConnTimeout:       cfg.IdleTimeout,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	c := &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ResponseTimeout,
		},
		baseURL:      cfg.BaseURL,
		maxBodyBytes: cfg.MaxBodyBytes,
		readPolicy:   retry.Default,
		logger:       logger.Named("faceapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CloseIdleConnections releases pooled connections on shutdown.
func (c *HTTPClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.read(ctx, "faceapi.health", "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var out RegisterResponse
	if err := c.write(ctx, "faceapi.register", http.MethodPost, "/face/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Recognize(ctx context.Context, req RecognizeRequest) (*RecognizeResponse, error) {
	var out RecognizeResponse
	if err := c.write(ctx, "faceapi.recognize", http.MethodPost, "/face/recognize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error) {
	var out CompareResponse
	if err := c.write(ctx, "faceapi.compare", http.MethodPost, "/face/compare", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) List(ctx context.Context) (*ListResponse, error) {
	var out ListResponse
	if err := c.read(ctx, "faceapi.list", "/face/list", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, faceID int64) (*DeleteResponse, error) {
	var out DeleteResponse
	path := "/face/delete/" + strconv.FormatInt(faceID, 10)
	if err := c.write(ctx, "faceapi.delete", http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// read performs an idempotent GET under the read retry policy.
func (c *HTTPClient) read(ctx context.Context, operation, path string, out any) error {
	return retry.Do(ctx, c.readPolicy, c.logger, operation, RequestIDFrom(ctx), func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

// write performs a single non-idempotent call.
func (c *HTTPClient) write(ctx context.Context, operation, method, path string, body, out any) error {
	err := c.do(ctx, method, path, body, out)
	if err != nil {
		requestID := RequestIDFrom(ctx)
		logging.WithOperation(c.logger, operation, requestID).Warn("face api call failed", zap.Error(err))
		return logging.NewOperationError(operation, requestID, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := RequestIDFrom(ctx); requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return ErrResponseTooLarge
	}

	c.logger.Debug("face api response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewStatusError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RequestIDHeader carries the inbound request id to the backend.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "faceapi_request_id"

// WithRequestID stores the id propagated on outbound calls.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom returns the id stored by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
