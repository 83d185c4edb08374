package public

import (
	"github.com/lotecorto/storefront/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetOrder 订单详情，附带解码后的履约状态
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := h.OrderService.GetOrderView(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, view)
}
