package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/metrics"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 12 * time.Second
	metricsTarget  = "backend"
	unknownMessage = "unknown error"
)

var (
	ErrConfigInvalid   = errors.New("backend config invalid")
	ErrRequestFailed   = errors.New("backend request failed")
	ErrResponseInvalid = errors.New("backend response invalid")
)

// APIError 后端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
	hasMessage bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Message)
}

// HasMessage 后端是否提供了错误信息
func (e *APIError) HasMessage() bool {
	return e != nil && e.hasMessage
}

// NotFound 是否为 404
func (e *APIError) NotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

// IsNotFound 判断错误链中是否为后端 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// Client 后端 REST 客户端
type Client struct {
	baseURL          string
	httpClient       *http.Client
	limiter          *rate.Limiter
	notificationPath string
	serviceToken     string
	timeout          time.Duration
}

// NewClient 创建后端客户端
func NewClient(cfg config.BackendConfig, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	notificationPath := strings.TrimSpace(cfg.NotificationPath)
	if notificationPath == "" {
		notificationPath = "/api/v1/payments/mercadopago/notifications"
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:          baseURL,
		httpClient:       httpClient,
		limiter:          rate.NewLimiter(limit, burst),
		notificationPath: notificationPath,
		serviceToken:     strings.TrimSpace(cfg.ServiceToken),
		timeout:          timeout,
	}, nil
}

type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	service     bool
}

func jsonRequest(op, method, path string, payload interface{}) (request, error) {
	req := request{op: op, method: method, path: path}
	if payload == nil {
		return req, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("%w: marshal request failed: %v", ErrRequestFailed, err)
	}
	req.body = bytes.NewReader(raw)
	req.contentType = "application/json"
	return req, nil
}

// do 发送请求并把 2xx 响应解码到 out；out 为 nil 时丢弃响应体
func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrRequestFailed, err)
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return fmt.Errorf("%w: build request failed: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if auth := c.authorization(ctx, r.service); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(metricsTarget, r.op, 0, time.Since(start))
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, r.method, r.path, err)
	}
	defer resp.Body.Close()
	metrics.ObserveRequest(metricsTarget, r.op, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response failed: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s response failed: %v", ErrResponseInvalid, r.op, err)
	}
	return nil
}

func (c *Client) authorization(ctx context.Context, service bool) string {
	if !service {
		if auth := AuthorizationFromContext(ctx); auth != "" {
			return auth
		}
	}
	if c.serviceToken != "" {
		return "Bearer " + c.serviceToken
	}
	return ""
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: unknownMessage}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error", "msg"} {
			if text, ok := payload[key].(string); ok && strings.TrimSpace(text) != "" {
				apiErr.Message = strings.TrimSpace(text)
				apiErr.hasMessage = true
				break
			}
		}
	}
	return apiErr
}
