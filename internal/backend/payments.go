package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// CreatePaymentSession 为订单创建 MercadoPago 支付会话
func (c *Client) CreatePaymentSession(ctx context.Context, orderID uint) (*PaymentSession, error) {
	req, err := jsonRequest("create_payment_session", http.MethodPost, "/api/v1/payments/mercadopago/add", map[string]uint{"orderID": orderID})
	if err != nil {
		return nil, err
	}
	var session PaymentSession
	if err := c.do(ctx, req, &session); err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, fmt.Errorf("%w: payment session without id", ErrResponseInvalid)
	}
	return &session, nil
}

// GetPaymentStatus 查询支付确认状态，返回原始状态字符串
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID uint) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	req := request{op: "get_payment_status", method: http.MethodGet, path: fmt.Sprintf("/api/v1/payments/%d/status", paymentID)}
	if err := c.do(ctx, req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Status) == "" {
		return "", fmt.Errorf("%w: empty payment status", ErrResponseInvalid)
	}
	return out.Status, nil
}

// Voucher 线下支付凭证文件
type Voucher struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// UploadVoucher 上传订单的支付凭证
func (c *Client) UploadVoucher(ctx context.Context, orderID uint, voucher Voucher) (*Payment, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="voucher"; filename=%q`, voucher.Filename))
	if voucher.ContentType != "" {
		header.Set("Content-Type", voucher.ContentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%w: build multipart failed: %v", ErrRequestFailed, err)
	}
	if _, err := io.Copy(part, voucher.Content); err != nil {
		return nil, fmt.Errorf("%w: copy voucher failed: %v", ErrRequestFailed, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart failed: %v", ErrRequestFailed, err)
	}

	req := request{
		op:          "upload_voucher",
		method:      http.MethodPost,
		path:        fmt.Sprintf("/api/v1/payments/%d", orderID),
		body:        &buf,
		contentType: writer.FormDataContentType(),
	}
	var payment Payment
	if err := c.do(ctx, req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ForwardPaymentNotification 把规范化通知转发给后端，使用服务令牌
func (c *Client) ForwardPaymentNotification(ctx context.Context, notification PaymentNotification) error {
	req, err := jsonRequest("forward_notification", http.MethodPost, c.notificationPath, notification)
	if err != nil {
		return err
	}
	req.service = true
	return c.do(ctx, req, nil)
}
