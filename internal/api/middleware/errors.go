package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/dto"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
)

// ErrorMiddleware turns panics into INTERNAL_ERROR responses.
type ErrorMiddleware struct{}

// NewErrorMiddleware creates a new ErrorMiddleware.
func NewErrorMiddleware() *ErrorMiddleware {
	return &ErrorMiddleware{}
}

// Recovery returns a gin middleware that recovers from panics in later
// handlers. The panic value is logged but never written to the client.
func (m *ErrorMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger := GetRequestLogger(c)
				logger.Error().
					Str("panic", fmt.Sprint(rec)).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				abortInternal(c)
			}
		}()
		c.Next()
	}
}

// HandleError writes err as a JSON error body. Domain errors keep their own
// status and code. Anything else is logged and reported as INTERNAL_ERROR
// so upstream details never leak to callers.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	if de, ok := domainerrors.GetDomainError(err); ok {
		if de.HTTPStatus >= http.StatusInternalServerError {
			logger := GetRequestLogger(c)
			logger.Error().Err(err).Str("code", de.Code).Msg("request failed")
		}
		c.AbortWithStatusJSON(de.HTTPStatus, dto.ErrorResponse{
			Code:    de.Code,
			Message: de.Message,
			Details: de.Details,
		})
		return
	}

	logger := GetRequestLogger(c)
	logger.Error().Err(err).Msg("unhandled error")
	abortInternal(c)
}

func abortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
		Code:    domainerrors.ErrCodeInternal,
		Message: "internal server error",
	})
}

// NotFound answers requests that match no route.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Code:    domainerrors.ErrCodeNotFound,
			Message: "route not found",
			Details: c.Request.URL.Path,
		})
	}
}

// MethodNotAllowed answers a known path requested with the wrong method.
func MethodNotAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.ErrorResponse{
			Code:    "METHOD_NOT_ALLOWED",
			Message: "method not allowed",
			Details: c.Request.Method + " " + c.Request.URL.Path,
		})
	}
}
