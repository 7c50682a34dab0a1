package middleware

import (
	"time"

	"github.com/bhandras/smln/internal/logger"
	"github.com/gin-gonic/gin"
)

// Logging logs one line per HTTP request. Server errors log at error level,
// client errors at warn and everything else at debug.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		switch {
		case status >= 500:
			logger.Errorf("[http] %s %s - %d (%v) from %s", c.Request.Method, path, status, latency, c.ClientIP())
		case status >= 400:
			logger.Warnf("[http] %s %s - %d (%v) from %s", c.Request.Method, path, status, latency, c.ClientIP())
		default:
			logger.Debugf("[http] %s %s - %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
