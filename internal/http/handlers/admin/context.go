package admin

import (
	handlershared "github.com/lotecorto/storefront/internal/http/handlers/shared"
	"github.com/lotecorto/storefront/internal/http/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	log := handlershared.RequestLog(c)
	if adminID, ok := handlershared.GetContextUint(c, "admin_id"); ok {
		return log.With("admin_id", adminID)
	}
	return log
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error) {
	handlershared.RespondServiceError(c, err)
}

func parseID(c *gin.Context, name string) (uint, bool) {
	return handlershared.ParseIDParam(c, name)
}

func mapError(err error) *response.AppError {
	return handlershared.MapError(err)
}
