package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lotecorto/storefront/internal/constants"
)

var (
	ErrNotificationInvalid = errors.New("mercadopago notification invalid")
	ErrSignatureInvalid    = errors.New("mercadopago signature invalid")
)

// Notification 解析后的通知（IPN 查询参数或 webhook JSON）
type Notification struct {
	Topic    string
	Action   string
	DataID   string
	LiveMode bool
}

// IsPayment 是否为支付主题
func (n *Notification) IsPayment() bool {
	return n != nil && n.Topic == constants.NotificationTopicPayment
}

type webhookBody struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	LiveMode bool   `json:"live_mode"`
	Resource string `json:"resource"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification 同时兼容 IPN（?topic=payment&id=...）与 webhook（type/data.id）
func ParseNotification(query url.Values, body []byte) (*Notification, error) {
	n := &Notification{}
	if len(strings.TrimSpace(string(body))) > 0 {
		var raw webhookBody
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: body is not json", ErrNotificationInvalid)
		}
		n.Topic = firstNonEmpty(raw.Type, raw.Topic)
		n.Action = strings.TrimSpace(raw.Action)
		n.LiveMode = raw.LiveMode
		n.DataID = rawID(raw.Data.ID)
		if n.DataID == "" && raw.Resource != "" {
			n.DataID = lastPathSegment(raw.Resource)
		}
	}

	if query != nil {
		if n.Topic == "" {
			n.Topic = firstNonEmpty(query.Get("type"), query.Get("topic"))
		}
		if n.DataID == "" {
			n.DataID = firstNonEmpty(query.Get("data.id"), query.Get("id"))
		}
	}

	n.Topic = strings.ToLower(strings.TrimSpace(n.Topic))
	n.DataID = strings.TrimSpace(n.DataID)
	if n.Topic == "" {
		return nil, fmt.Errorf("%w: missing topic", ErrNotificationInvalid)
	}
	if n.DataID == "" {
		return nil, fmt.Errorf("%w: missing data id", ErrNotificationInvalid)
	}
	if n.Action == "" {
		n.Action = n.Topic
	}
	return n, nil
}

// VerifySignature 校验 x-signature：ts=...,v1=HMAC_SHA256(secret, "id:{dataID};request-id:{requestID};ts:{ts};")
func VerifySignature(secret, signatureHeader, requestID, dataID string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: missing ts or v1", ErrSignatureInvalid)
	}
	expected := Sign(secret, requestID, dataID, ts)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return fmt.Errorf("%w: digest mismatch", ErrSignatureInvalid)
	}
	return nil
}

// Sign 计算签名摘要（十六进制小写）
func Sign(secret, requestID, dataID, ts string) string {
	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// ToPaymentStatus 把 MercadoPago 状态映射为 pending/accepted/rejected
func ToPaymentStatus(status string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "authorized":
		return constants.PaymentStatusAccepted, true
	case "pending", "in_process", "in_mediation":
		return constants.PaymentStatusPending, true
	case "rejected", "cancelled", "refunded", "charged_back":
		return constants.PaymentStatusRejected, true
	default:
		return "", false
	}
}

func rawID(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		return unquoted
	}
	return text
}

func lastPathSegment(resource string) string {
	resource = strings.TrimRight(strings.TrimSpace(resource), "/")
	if idx := strings.LastIndex(resource, "/"); idx >= 0 {
		return resource[idx+1:]
	}
	return resource
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
