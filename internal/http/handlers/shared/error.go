package shared

import (
	"context"
	"errors"
	"net/http"

	"github.com/lotecorto/storefront/internal/backend"
	"github.com/lotecorto/storefront/internal/http/response"
	"github.com/lotecorto/storefront/internal/logger"
	"github.com/lotecorto/storefront/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	respond(c, response.WrapError(code, msg, err))
}

func respond(c *gin.Context, appErr *response.AppError) {
	if appErr.Err != nil {
		log := RequestLog(c)
		if appErr.Code >= response.CodeInternal {
			log.Errorw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", appErr.Err)
		} else {
			log.Warnw("handler_error", "code", appErr.Code, "message", appErr.Message, "error", appErr.Err)
		}
	}
	response.ErrorWithStatus(c, appErr.Status(), appErr.Code, appErr.Message, nil)
}

var badRequestErrors = []error{
	service.ErrInvalidOrderID,
	service.ErrInvalidFlag,
	service.ErrInvalidPaymentID,
	service.ErrInvalidResourceID,
	service.ErrEmptyUpdate,
	service.ErrCartItemInvalid,
	service.ErrVoucherInvalid,
	service.ErrVoucherTooLarge,
	service.ErrVoucherTypeNotAllowed,
	service.ErrNotificationInvalid,
}

// MapError 把服务层与后端错误映射为响应码和消息。
// 后端给出的错误信息原样返回，否则使用通用提示。
func MapError(err error) *response.AppError {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return response.WrapError(response.CodeBadRequest, target.Error(), err)
		}
	}
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		msg := response.MessageUnknown
		if apiErr.HasMessage() {
			msg = apiErr.Message
		}
		code := apiErr.StatusCode
		if code < http.StatusBadRequest {
			code = response.CodeBadGateway
		}
		return response.WrapError(code, msg, err)
	case errors.Is(err, service.ErrResourceNotAllowed), errors.Is(err, service.ErrNotificationNotFound):
		return response.WrapError(response.CodeNotFound, "not found", err)
	case errors.Is(err, service.ErrInvalidState):
		return response.WrapError(response.CodeConflict, service.ErrInvalidState.Error(), err)
	case errors.Is(err, service.ErrSignatureInvalid):
		return response.WrapError(response.CodeUnauthorized, service.ErrSignatureInvalid.Error(), err)
	case errors.Is(err, service.ErrCheckoutUnavailable):
		return response.WrapError(response.CodeServiceUnavailable, service.ErrCheckoutUnavailable.Error(), err)
	case errors.Is(err, service.ErrCheckoutFailed), errors.Is(err, service.ErrNotificationForward),
		errors.Is(err, service.ErrNotificationLookup), errors.Is(err, backend.ErrRequestFailed),
		errors.Is(err, backend.ErrResponseInvalid):
		return response.WrapError(response.CodeBadGateway, response.MessageUnknown, err)
	case errors.Is(err, service.ErrPaymentWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return response.WrapError(response.CodeGatewayTimeout, service.ErrPaymentWaitTimeout.Error(), err)
	default:
		return response.WrapError(response.CodeInternal, response.MessageUnknown, err)
	}
}

// RespondServiceError 按错误类型写出响应。
func RespondServiceError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil {
		// 客户端已断开
		RequestLog(c).Debugw("handler_client_gone", "error", err)
		c.Abort()
		return
	}
	respond(c, MapError(err))
}
