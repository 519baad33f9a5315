package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// MaxWebhookBody caps a gateway callback. Real callbacks are under 2 KiB.
const MaxWebhookBody int64 = 64 << 10

// BodyLimit answers 413 ERR_REQUEST_TOO_LARGE when the declared
// Content-Length exceeds maxBytes. Bodies of unknown length are capped while
// read; the handler then sees an error for which IsBodyTooLarge is true.
// A non-positive limit disables the check.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abortWithError(c, dto.ErrCodeRequestTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", maxBytes))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from reading past a BodyLimit cap
func IsBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
