package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/lotecorto/storefront/internal/http/handlers/shared"
	"github.com/lotecorto/storefront/internal/http/response"
	"github.com/lotecorto/storefront/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListNotifications 支付通知台账
func (h *Handler) ListNotifications(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)

	var orderID uint
	if raw := strings.TrimSpace(c.Query("order_id")); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			orderID = uint(parsed)
		}
	}
	rows, total, err := h.NotificationService.List(repository.NotificationListFilter{
		Status:            strings.TrimSpace(c.Query("status")),
		ProviderPaymentID: strings.TrimSpace(c.Query("provider_payment_id")),
		OrderID:           orderID,
		Page:              page,
		PageSize:          pageSize,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rows, response.NewPagination(page, pageSize, total))
}

// RetryNotification 手动重发一条通知
func (h *Handler) RetryNotification(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.NotificationService.Retry(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_notification_retry_success", "notification_id", id)
	response.Success(c, result)
}
