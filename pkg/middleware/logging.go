package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/usersearch/go-services/pkg/logger"
)

// RequestIDHeader is echoed back on every response. A caller-supplied value is
// kept, otherwise a random UUID is generated.
const RequestIDHeader = "X-Request-ID"

// RequestLogger writes one structured line per request. 5xx responses are
// logged at error level, 4xx at warn, the rest at info.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header(RequestIDHeader, reqID)
		c.Next()

		status := c.Writer.Status()
		lvl, minLevel := zerolog.InfoLevel, logger.LevelInfo
		switch {
		case status >= 500:
			lvl, minLevel = zerolog.ErrorLevel, logger.LevelError
		case status >= 400:
			lvl, minLevel = zerolog.WarnLevel, logger.LevelWarn
		}
		if !logger.Enabled(minLevel) {
			return
		}

		l := logger.Logger()
		ev := l.WithLevel(lvl).
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP())
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request completed")
	}
}
