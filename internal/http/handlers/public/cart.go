package public

import (
	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CartItemRequest 购物车项请求
type CartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// GetCart 获取购物车
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.CartService.GetCart(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, cart)
}

// AddCartItem 加入购物车
func (h *Handler) AddCartItem(c *gin.Context) {
	var req CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid cart item", err)
		return
	}
	cart, err := h.CartService.AddItem(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, cart)
}

// RemoveCartItem 移出购物车
func (h *Handler) RemoveCartItem(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}
	cart, err := h.CartService.RemoveItem(c.Request.Context(), productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, cart)
}

// CreateOrder 由购物车下单，请求体原样交给后端
func (h *Handler) CreateOrder(c *gin.Context) {
	var body backend.Record
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, response.CodeBadRequest, "invalid order payload", err)
			return
		}
	}
	order, err := h.CartService.CreateOrder(c.Request.Context(), body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("order_create_success", "order_id", order.ID)
	response.Success(c, order)
}
