package public

import (
	"strconv"
	"strings"

	"github.com/lotecorto/storefront/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CheckoutRequest 结账请求
type CheckoutRequest struct {
	PayerEmail string `json:"payer_email"`
}

// Checkout 为订单创建 MercadoPago 结账，返回跳转地址与待轮询的支付 ID
func (h *Handler) Checkout(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "invalid checkout payload", err)
			return
		}
	}
	result, err := h.PaymentService.StartCheckout(c.Request.Context(), orderID, strings.TrimSpace(req.PayerEmail))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// UploadVoucher 上传转账凭证，表单字段 file
func (h *Handler) UploadVoucher(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, response.CodeBadRequest, "voucher file is required", err)
		return
	}
	payment, err := h.PaymentService.UploadVoucher(c.Request.Context(), orderID, file)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("voucher_upload_success", "order_id", orderID, "payment_id", payment.ID, "size", file.Size)
	response.Success(c, payment)
}

// GetPaymentStatus 查询一次支付状态
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	paymentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	status, err := h.PaymentService.GetPaymentStatus(c.Request.Context(), paymentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment_id": paymentID,
		"status":     status,
		"terminal":   status.Terminal(),
	})
}

// WaitPayment 长轮询直到支付进入终态；客户端断开即停止轮询
func (h *Handler) WaitPayment(c *gin.Context) {
	paymentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var orderID uint
	if raw := strings.TrimSpace(c.Query("order_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid order_id", err)
			return
		}
		orderID = uint(parsed)
	}
	result, err := h.PaymentService.WaitForConfirmation(c.Request.Context(), paymentID, orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
