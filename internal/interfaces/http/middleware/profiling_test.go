package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func labelRouter(enabled bool) *gin.Engine {
	r := gin.New()
	r.Use(Profiling(enabled))
	echo := func(c *gin.Context) {
		route, _ := pprof.Label(c.Request.Context(), "route")
		method, _ := pprof.Label(c.Request.Context(), "method")
		c.String(http.StatusOK, method+" "+route)
	}
	r.POST("/admin/payments/offline/:reference_id/approve", echo)
	r.GET("/health", echo)
	return r
}

func TestProfiling(t *testing.T) {
	t.Run("labels carry the route pattern", func(t *testing.T) {
		w := serve(labelRouter(true), httptest.NewRequest(http.MethodPost, "/admin/payments/offline/BB-42/approve", nil))
		assert.Equal(t, "POST /admin/payments/offline/:reference_id/approve", w.Body.String())
	})

	t.Run("health checks are not labelled", func(t *testing.T) {
		w := serve(labelRouter(true), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, " ", w.Body.String())
	})

	t.Run("disabled middleware adds nothing", func(t *testing.T) {
		w := serve(labelRouter(false), httptest.NewRequest(http.MethodPost, "/admin/payments/offline/BB-42/approve", nil))
		assert.Equal(t, " ", w.Body.String())
	})
}
