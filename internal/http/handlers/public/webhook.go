package public

import (
	"errors"
	"io"
	"net/http"
	"strings"

	handlershared "github.com/lotecorto/storefront/internal/http/handlers/shared"
	"github.com/lotecorto/storefront/internal/http/response"
	"github.com/lotecorto/storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// MercadoPagoNotification MercadoPago webhook/IPN 回调。
// 已处理、重复与忽略的通知都返回 200；查询或台账失败返回 5xx 让 MercadoPago 重投。
func (h *Handler) MercadoPagoNotification(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warnw("mercadopago_webhook_body_read_failed", "error", err)
		respondError(c, response.CodeBadRequest, "invalid notification body", err)
		return
	}
	signature := strings.TrimSpace(c.GetHeader("X-Signature"))
	providerRequestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	log.Infow("mercadopago_webhook_received",
		"method", c.Request.Method,
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"query", c.Request.URL.RawQuery,
		"signed", signature != "",
	)

	result, err := h.NotificationService.HandleNotification(c.Request.Context(), service.NotificationInput{
		Query:     c.Request.URL.Query(),
		Body:      body,
		Signature: signature,
		RequestID: providerRequestID,
	})
	if err != nil {
		appErr := handlershared.MapError(err)
		switch {
		case errors.Is(err, service.ErrNotificationInvalid):
			appErr.HTTPStatus = http.StatusBadRequest
		case errors.Is(err, service.ErrSignatureInvalid):
			appErr.HTTPStatus = http.StatusUnauthorized
		case errors.Is(err, service.ErrCheckoutUnavailable):
			appErr.HTTPStatus = http.StatusServiceUnavailable
		default:
			appErr.HTTPStatus = http.StatusInternalServerError
		}
		log.Warnw("mercadopago_webhook_handle_failed", "status", appErr.HTTPStatus, "error", err)
		response.ErrorWithStatus(c, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
		return
	}
	response.Success(c, result)
}
