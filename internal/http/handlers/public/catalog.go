package public

import (
	"github.com/lotecorto/storefront/internal/cache"
	"github.com/lotecorto/storefront/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetProducts 商品列表，查询参数原样透传给后端
func (h *Handler) GetProducts(c *gin.Context) {
	records, err := h.CatalogService.List(c.Request.Context(), cache.ResourceProducts, c.Request.URL.Query())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, records)
}

// GetProduct 商品详情
func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	record, err := h.CatalogService.Get(c.Request.Context(), cache.ResourceProducts, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, record)
}

// GetCategories 分类列表
func (h *Handler) GetCategories(c *gin.Context) {
	records, err := h.CatalogService.List(c.Request.Context(), cache.ResourceCategories, c.Request.URL.Query())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, records)
}
