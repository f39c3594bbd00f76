package middleware

import (
	"fmt"
	"net/http"

	"github.com/edgesync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies at maxBytes, in practice the size of the
// largest downlink batch the edge accepts. A declared length above the cap is
// answered 413 before the batch is read; a chunked body is cut off at the cap
// and fails to decode.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	msg := fmt.Sprintf("Request body exceeds %d bytes", maxBytes)
	tooLarge := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
			dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, msg, GetRequestID(c)))
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
