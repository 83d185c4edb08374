package admin

import (
	"errors"

	"github.com/lotecorto/storefront/internal/http/response"
	"github.com/lotecorto/storefront/internal/orderstate"

	"github.com/gin-gonic/gin"
)

// SetOrderStateRequest 整体设置状态位；flags 与 GET 返回的结构一致，也可直接给出整数 state
type SetOrderStateRequest struct {
	Flags *orderstate.State `json:"flags"`
	State *int              `json:"state"`
}

func (r SetOrderStateRequest) target() (orderstate.State, error) {
	switch {
	case r.Flags != nil:
		return *r.Flags, nil
	case r.State != nil:
		return orderstate.Parse(*r.State)
	default:
		return orderstate.State{}, errors.New("flags or state is required")
	}
}

// GetOrder 管理端订单详情
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

// ToggleOrderFlag 翻转单个状态位（confirmed/payed/sent/delivered）
func (h *Handler) ToggleOrderFlag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	flag, err := orderstate.ParseFlag(c.Param("flag"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid order flag", err)
		return
	}
	change, err := h.OrderService.ToggleFlag(c.Request.Context(), id, flag)
	if err != nil {
		if change != nil {
			// 提交失败，返回回滚后的状态供界面恢复
			appErr := mapError(err)
			response.ErrorWithData(c, appErr.Code, appErr.Message, change)
			requestLog(c).Warnw("admin_order_toggle_failed", "order_id", id, "flag", flag.String(), "error", err)
			return
		}
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_order_toggle_success", "order_id", id, "flag", flag.String(), "state", change.State)
	response.Success(c, change)
}

// SetOrderState 整体设置状态位，与当前值一致时不提交
func (h *Handler) SetOrderState(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SetOrderStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid order state", err)
		return
	}
	target, err := req.target()
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid order state", err)
		return
	}
	change, err := h.OrderService.SetState(c.Request.Context(), id, target)
	if err != nil {
		if change != nil {
			appErr := mapError(err)
			response.ErrorWithData(c, appErr.Code, appErr.Message, change)
			requestLog(c).Warnw("admin_order_set_state_failed", "order_id", id, "error", err)
			return
		}
		respondServiceError(c, err)
		return
	}
	response.Success(c, change)
}
