package admin

import (
	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ListResource 管理端资源列表
func (h *Handler) ListResource(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.CatalogService.List(c.Request.Context(), resource, c.Request.URL.Query())
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.Success(c, records)
	}
}

// GetResource 管理端资源详情
func (h *Handler) GetResource(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		record, err := h.CatalogService.Get(c.Request.Context(), resource, id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.Success(c, record)
	}
}

// CreateResource 新建资源
func (h *Handler) CreateResource(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body backend.Record
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, response.CodeBadRequest, "invalid "+resource+" payload", err)
			return
		}
		record, err := h.CatalogService.Create(c.Request.Context(), resource, body)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		requestLog(c).Infow("admin_resource_create_success", "resource", resource, "id", record.ID())
		response.Success(c, record)
	}
}

// UpdateResource 更新资源；提交内容未变化时 changed=false 且不调用后端
func (h *Handler) UpdateResource(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var body backend.Record
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, response.CodeBadRequest, "invalid "+resource+" payload", err)
			return
		}
		result, err := h.CatalogService.Update(c.Request.Context(), resource, id, body)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.Success(c, result)
	}
}

// DeleteResource 删除资源
func (h *Handler) DeleteResource(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := h.CatalogService.Delete(c.Request.Context(), resource, id); err != nil {
			respondServiceError(c, err)
			return
		}
		requestLog(c).Infow("admin_resource_delete_success", "resource", resource, "id", id)
		response.Success(c, gin.H{"id": id, "deleted": true})
	}
}
