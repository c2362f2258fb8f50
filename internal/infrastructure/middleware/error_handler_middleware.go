package middleware

import (
	stderrors "errors"
	"net/http"

	"screenrelay/internal/core/domain"
	"screenrelay/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns errors attached to the gin context into HTTP
// responses. Domain errors carry their own response shape (a failed resolve
// reports the known device names so the caller can correct the spelling);
// AppErrors carry their own status; anything else is a bare 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if status, body, ok := domainErrorResponse(err); ok {
			logger.Infow("request rejected",
				"status", status,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error(),
			)
			c.JSON(status, body)
			return
		}

		if appErr := errors.GetAppError(err); appErr != nil {
			logger.Errorw("application error",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"context", appErr.Context,
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
				"details": appErr.Context,
			})
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(errors.ErrCodeInternal),
			"message": "Internal server error",
		})
	}
}

// domainErrorResponse maps the streaming domain's error taxonomy onto HTTP.
func domainErrorResponse(err error) (int, gin.H, bool) {
	var notFound *domain.DeviceNotFoundError
	switch {
	case stderrors.As(err, &notFound):
		return http.StatusNotFound, gin.H{
			"error":         string(errors.ErrCodeDeviceNotFound),
			"message":       "device not found",
			"target":        notFound.Target,
			"known_devices": notFound.Known,
		}, true
	case stderrors.Is(err, domain.ErrEmptyTarget):
		return http.StatusBadRequest, gin.H{
			"error":   string(errors.ErrCodeInvalidInput),
			"message": err.Error(),
		}, true
	case stderrors.Is(err, domain.ErrNoActiveSession):
		return http.StatusNotFound, gin.H{
			"error":   string(errors.ErrCodeNotFound),
			"message": err.Error(),
		}, true
	}
	return 0, nil, false
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
