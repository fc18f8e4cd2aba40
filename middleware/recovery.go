package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var httpPanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_panics_total",
	Help: "Handler panics recovered, by route template",
}, []string{"path"})

// Recovery turns a handler panic into a 500 carrying the trace ID.
// Responses already written are left alone.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			path := c.FullPath()
			if path == "" {
				path = "unmatched"
			}
			httpPanics.WithLabelValues(path).Inc()
			log.Error("panic recovered",
				zap.Any("error", r),
				zap.String("trace_id", GetTraceID(c)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int64("user_id", GetUserID(c)),
				zap.Stack("stack"),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":    "internal server error",
				"trace_id": GetTraceID(c),
			})
		}()
		c.Next()
	}
}
