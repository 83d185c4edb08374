package mercadopago

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

	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/metrics"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL  = "https://api.mercadopago.com"
	defaultTimeout  = 12 * time.Second
	metricsTarget   = "mercadopago"
	defaultCurrency = "ARS"
)

var (
	ErrConfigInvalid   = errors.New("mercadopago config invalid")
	ErrRequestFailed   = errors.New("mercadopago request failed")
	ErrResponseInvalid = errors.New("mercadopago response invalid")
)

// Client MercadoPago API 客户端
type Client struct {
	cfg        config.MercadoPagoConfig
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(cfg config.MercadoPagoConfig, httpClient *http.Client) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.CurrencyID) == "" {
		cfg.CurrencyID = defaultCurrency
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, baseURL: baseURL, httpClient: httpClient}
}

// Configured 是否配置了访问令牌
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.AccessToken) != ""
}

// WebhookSecret 通知签名密钥
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.cfg.WebhookSecret)
}

// PreferenceItem 结账条目
type PreferenceItem struct {
	ID        string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// PreferenceInput 创建结账偏好的输入
type PreferenceInput struct {
	OrderID    uint
	PaymentID  uint
	Items      []PreferenceItem
	PayerEmail string
}

// Preference 创建结果
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
	RedirectURL      string `json:"-"`
}

type preferenceItemPayload struct {
	ID         string      `json:"id,omitempty"`
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id"`
}

type preferencePayload struct {
	Items               []preferenceItemPayload `json:"items"`
	ExternalReference   string                  `json:"external_reference"`
	Metadata            map[string]interface{}  `json:"metadata"`
	NotificationURL     string                  `json:"notification_url,omitempty"`
	BackURLs            map[string]string       `json:"back_urls,omitempty"`
	AutoReturn          string                  `json:"auto_return,omitempty"`
	StatementDescriptor string                  `json:"statement_descriptor,omitempty"`
	Payer               map[string]string       `json:"payer,omitempty"`
}

// CreatePreference 创建 Checkout Pro 偏好并返回跳转地址
func (c *Client) CreatePreference(ctx context.Context, input PreferenceInput) (*Preference, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: access_token is required", ErrConfigInvalid)
	}
	if input.OrderID == 0 || len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: order id and items are required", ErrConfigInvalid)
	}

	payload := preferencePayload{
		Items: lo.Map(input.Items, func(item PreferenceItem, _ int) preferenceItemPayload {
			return preferenceItemPayload{
				ID:         item.ID,
				Title:      item.Title,
				Quantity:   item.Quantity,
				UnitPrice:  json.Number(item.UnitPrice.Round(2).String()),
				CurrencyID: c.cfg.CurrencyID,
			}
		}),
		ExternalReference: strconv.FormatUint(uint64(input.OrderID), 10),
		Metadata: map[string]interface{}{
			"order_id":   input.OrderID,
			"payment_id": input.PaymentID,
		},
		NotificationURL:     strings.TrimSpace(c.cfg.NotificationURL),
		StatementDescriptor: strings.TrimSpace(c.cfg.StatementDescriptor),
	}
	backURLs := lo.PickBy(map[string]string{
		"success": strings.TrimSpace(c.cfg.SuccessURL),
		"failure": strings.TrimSpace(c.cfg.FailureURL),
		"pending": strings.TrimSpace(c.cfg.PendingURL),
	}, func(_ string, value string) bool { return value != "" })
	if len(backURLs) > 0 {
		payload.BackURLs = backURLs
		if backURLs["success"] != "" {
			payload.AutoReturn = "approved"
		}
	}
	if email := strings.TrimSpace(input.PayerEmail); email != "" {
		payload.Payer = map[string]string{"email": email}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal preference failed", ErrRequestFailed)
	}
	respBody, status, err := c.doJSONRequest(ctx, "create_preference", http.MethodPost, "/checkout/preferences", body, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: create preference status %d: %s", ErrResponseInvalid, status, errorMessage(respBody))
	}

	var pref Preference
	if err := json.Unmarshal(respBody, &pref); err != nil {
		return nil, fmt.Errorf("%w: decode preference failed", ErrResponseInvalid)
	}
	pref.RedirectURL = pref.InitPoint
	if c.cfg.Sandbox && pref.SandboxInitPoint != "" {
		pref.RedirectURL = pref.SandboxInitPoint
	}
	if pref.ID == "" || pref.RedirectURL == "" {
		return nil, fmt.Errorf("%w: missing preference id or init point", ErrResponseInvalid)
	}
	return &pref, nil
}

// PaymentInfo MercadoPago 支付详情
type PaymentInfo struct {
	ID                json.Number            `json:"id"`
	Status            string                 `json:"status"`
	StatusDetail      string                 `json:"status_detail"`
	ExternalReference string                 `json:"external_reference"`
	Metadata          map[string]interface{} `json:"metadata"`
	TransactionAmount decimal.Decimal        `json:"transaction_amount"`
	CurrencyID        string                 `json:"currency_id"`
	DateApproved      *time.Time             `json:"date_approved"`
	LiveMode          bool                   `json:"live_mode"`
}

// OrderID 从 external_reference 或 metadata 读取订单 ID
func (p *PaymentInfo) OrderID() uint {
	if p == nil {
		return 0
	}
	if id, err := strconv.ParseUint(strings.TrimSpace(p.ExternalReference), 10, 64); err == nil {
		return uint(id)
	}
	return metadataUint(p.Metadata, "order_id")
}

// PaymentID 后端支付会话 ID（创建偏好时写入 metadata）
func (p *PaymentInfo) PaymentID() uint {
	if p == nil {
		return 0
	}
	return metadataUint(p.Metadata, "payment_id")
}

// GetPayment 查询支付详情
func (c *Client) GetPayment(ctx context.Context, providerPaymentID string) (*PaymentInfo, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: access_token is required", ErrConfigInvalid)
	}
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerPaymentID == "" {
		return nil, fmt.Errorf("%w: payment id is empty", ErrConfigInvalid)
	}
	respBody, status, err := c.doJSONRequest(ctx, "get_payment", http.MethodGet, "/v1/payments/"+url.PathEscape(providerPaymentID), nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: get payment status %d: %s", ErrResponseInvalid, status, errorMessage(respBody))
	}
	var info PaymentInfo
	decoder := json.NewDecoder(bytes.NewReader(respBody))
	decoder.UseNumber()
	if err := decoder.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode payment failed", ErrResponseInvalid)
	}
	if info.ID.String() == "" || strings.TrimSpace(info.Status) == "" {
		return nil, fmt.Errorf("%w: missing payment id or status", ErrResponseInvalid)
	}
	return &info, nil
}

func (c *Client) doJSONRequest(ctx context.Context, op, method, endpoint string, body []byte, idempotencyKey string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.AccessToken))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(metricsTarget, op, 0, time.Since(start))
		return nil, 0, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	metrics.ObserveRequest(metricsTarget, op, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := c.cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func errorMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "unknown error"
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := payload["error"].(string); ok && msg != "" {
		return msg
	}
	return "unknown error"
}

func metadataUint(metadata map[string]interface{}, key string) uint {
	switch v := metadata[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return uint(n)
		}
		if f, err := v.Float64(); err == nil && f > 0 {
			return uint(f)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	case string:
		if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			return uint(n)
		}
	}
	return 0
}
