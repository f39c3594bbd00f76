// Package handler holds the gin handlers of the HTTP surface.
package handler

import (
	"errors"
	"net/http"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/interfaces/http/dto"
	"github.com/edgesync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BaseHandler gives the handlers the response envelope. Error bodies carry
// the request id.
type BaseHandler struct{}

// Success answers 200 with data
func (BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta answers 200 with one page of data
func (BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Error answers status with an error envelope and stops the handler chain
func (BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest answers 400
func (h BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleError answers with the API code of the domain error in err's chain.
// Any other error is attached to the gin context for the access log and
// answered as an internal error without its text.
func (h BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := dto.ErrCodeInternal, "An unexpected error occurred"
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code, message = dto.NormalizeErrorCode(domainErr.Code), domainErr.Message
	} else {
		_ = c.Error(err)
	}
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// ValidationError reports a binding failure field by field
func (BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}
