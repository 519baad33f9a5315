package middleware

import (
	"context"
	"strings"

	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// profilingSkipPaths are served too often or too cheaply to be worth labelling
var profilingSkipPaths = []string{"/health", "/ready", "/swagger"}

// Profiling attaches method and route pattern labels to CPU samples taken
// while the handler chain runs. Unmatched routes carry no route label.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range profilingSkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		labels := map[string]string{
			telemetry.ProfilingLabelMethod: c.Request.Method,
			telemetry.ProfilingLabelRoute:  c.FullPath(),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
