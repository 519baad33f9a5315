package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// callbackRouter mimics the webhook route: it reads the whole body and
// reports a capped read the way the handler does
func callbackRouter(limit int64) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), BodyLimit(limit))
	r.POST("/waafipay/webhook", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if IsBodyTooLarge(err) {
			abortWithError(c, dto.ErrCodeRequestTooLarge, "too large")
			return
		}
		c.String(http.StatusOK, "%d", len(body))
	})
	return r
}

func TestBodyLimit(t *testing.T) {
	callback := `{"referenceId":"WP-1","responseCode":"2001","state":"APPROVED"}`

	t.Run("callback within the webhook cap", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/waafipay/webhook", strings.NewReader(callback))
		w := serve(callbackRouter(MaxWebhookBody), req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "63", w.Body.String())
	})

	t.Run("declared length over the cap is refused before reading", func(t *testing.T) {
		body := strings.Repeat("x", int(MaxWebhookBody)+1)
		req := httptest.NewRequest(http.MethodPost, "/waafipay/webhook", strings.NewReader(body))
		w := serve(callbackRouter(MaxWebhookBody), req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, info.Code)
		assert.Equal(t, "Request body exceeds 65536 bytes", info.Message)
		assert.NotEmpty(t, info.RequestID)
	})

	t.Run("body at exactly the cap is accepted", func(t *testing.T) {
		body := strings.Repeat("x", int(MaxWebhookBody))
		req := httptest.NewRequest(http.MethodPost, "/waafipay/webhook", strings.NewReader(body))
		w := serve(callbackRouter(MaxWebhookBody), req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("streamed body is capped while read", func(t *testing.T) {
		body := strings.Repeat("x", int(MaxWebhookBody)*2)
		req := httptest.NewRequest(http.MethodPost, "/waafipay/webhook", strings.NewReader(body))
		req.ContentLength = -1
		w := serve(callbackRouter(MaxWebhookBody), req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeError(t, w).Code)
	})

	t.Run("non-positive limit disables the check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/waafipay/webhook", strings.NewReader(callback))
		w := serve(callbackRouter(0), req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bodyless requests pass", func(t *testing.T) {
		r := okRouter(BodyLimit(1))
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/test", nil)).Code)
	})
}
